package drive

// DefaultSteeringZero is the steering dead zone used by Mix.
const DefaultSteeringZero = 0.01

// Mix converts a throttle/steering pair (both [-1, 1]) into left/right
// throttle. Steering within ±zero drives straight. Steering left slows the
// left side by (1 + steering); steering right slows the right side by
// (1 - steering). The outer side keeps the full throttle.
func Mix(throttle, steering, zero float64) (left, right float64) {
	throttle = clamp(throttle, -1, 1)
	steering = clamp(steering, -1, 1)

	switch {
	case steering < -zero:
		return throttle * (1 + steering), throttle
	case steering > zero:
		return throttle, throttle * (1 - steering)
	default:
		return throttle, throttle
	}
}
