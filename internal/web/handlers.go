package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"net/http"
	"time"

	"github.com/cjeanneret/QuadDrive/internal/debug"
	"github.com/cjeanneret/QuadDrive/internal/logic/vehicle"
)

// maxBodyBytes bounds a drive command body.
const maxBodyBytes = 1 << 10

// Vehicle is the command side of the control loop. *vehicle.Loop implements it.
type Vehicle interface {
	Set(left, right float64)
	SetSteering(throttle, steering float64)
	Stop()
	Status() vehicle.Status
}

// DriveCommand is the body of POST /drive. Either left+right or
// throttle+steering must be set, never both.
type DriveCommand struct {
	Left     *float64 `json:"left,omitempty"`
	Right    *float64 `json:"right,omitempty"`
	Throttle *float64 `json:"throttle,omitempty"`
	Steering *float64 `json:"steering,omitempty"`
}

// RemoteConfig is what the page needs to draw its controls.
type RemoteConfig struct {
	MaxSpeed     float64  `json:"max_speed"`
	SteeringZero float64  `json:"steering_zero"`
	LoopHz       float64  `json:"loop_hz"`
	DeadmanMs    int      `json:"deadman_ms"`
	Motors       []string `json:"motors"`
}

// ValidateCommand checks that cmd names exactly one complete pair and that
// every value is finite and within [-1, 1].
func ValidateCommand(cmd DriveCommand) error {
	tank := cmd.Left != nil || cmd.Right != nil
	arcade := cmd.Throttle != nil || cmd.Steering != nil
	switch {
	case tank && arcade:
		return errors.New("use either left/right or throttle/steering, not both")
	case tank && (cmd.Left == nil || cmd.Right == nil):
		return errors.New("left and right must both be set")
	case arcade && (cmd.Throttle == nil || cmd.Steering == nil):
		return errors.New("throttle and steering must both be set")
	case !tank && !arcade:
		return errors.New("empty command")
	}
	for name, v := range map[string]*float64{
		"left": cmd.Left, "right": cmd.Right,
		"throttle": cmd.Throttle, "steering": cmd.Steering,
	} {
		if v == nil {
			continue
		}
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			return fmt.Errorf("%s must be a finite number", name)
		}
		if *v < -1 || *v > 1 {
			return fmt.Errorf("%s must be between -1 and 1", name)
		}
	}
	return nil
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Vehicle     Vehicle
	Config      RemoteConfig
	log         *debug.Logger
	staticFS    fs.FS
}

// NewHandlers creates handlers with the given dependencies.
// If v is nil, the drive endpoints return 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, v Vehicle, cfg RemoteConfig, staticFS fs.FS, log *debug.Logger) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Vehicle:     v,
		Config:      cfg,
		log:         log,
		staticFS:    staticFS,
	}
}

// HandleConfig returns the drive settings as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Config)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleDrive handles POST /drive. The command is picked up by the next
// control cycle.
func (h *Handlers) HandleDrive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var cmd DriveCommand
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cmd); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := ValidateCommand(cmd); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.Vehicle == nil {
		http.Error(w, "drive not configured", http.StatusServiceUnavailable)
		return
	}

	if cmd.Left != nil {
		h.Vehicle.Set(*cmd.Left, *cmd.Right)
		h.log.Live("web: left=%.2f right=%.2f", *cmd.Left, *cmd.Right)
	} else {
		h.Vehicle.SetSteering(*cmd.Throttle, *cmd.Steering)
		h.log.Live("web: throttle=%.2f steering=%.2f", *cmd.Throttle, *cmd.Steering)
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// HandleStop handles POST /stop.
func (h *Handlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Vehicle == nil {
		http.Error(w, "drive not configured", http.StatusServiceUnavailable)
		return
	}
	h.Vehicle.Stop()
	h.log.Info("web: stop requested")
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// HandleStatus returns the control loop snapshot.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if h.Vehicle == nil {
		http.Error(w, "drive not configured", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, h.Vehicle.Status())
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
