package i2c

import "sync"

// RegWrite is one register write seen by a MockDev.
type RegWrite struct {
	Reg   byte
	Value byte
}

// MockDev is an in-memory register file standing in for a device when no
// I2C adapter is present (development on a PC, -mock runs, tests).
// Reads return the last value written to the register, or zero.
type MockDev struct {
	// Err, when set, is returned by every access.
	Err error

	mu     sync.Mutex
	addr   uint16
	regs   map[byte]byte
	writes []RegWrite
	closed bool
}

// NewMockDev creates a mock device at addr.
func NewMockDev(addr uint16) *MockDev {
	return &MockDev{addr: addr, regs: make(map[byte]byte)}
}

func (m *MockDev) Addr() uint16 { return m.addr }

func (m *MockDev) ReadRegU8(reg byte) (byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	return m.regs[reg], nil
}

func (m *MockDev) WriteReg(reg, value byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.regs[reg] = value
	m.writes = append(m.writes, RegWrite{Reg: reg, Value: value})
	return nil
}

func (m *MockDev) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Reg returns the current value of a register.
func (m *MockDev) Reg(reg byte) byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.regs[reg]
}

// SetReg presets a register without recording a write.
func (m *MockDev) SetReg(reg, value byte) {
	m.mu.Lock()
	m.regs[reg] = value
	m.mu.Unlock()
}

// Writes returns a copy of all writes so far, in order.
func (m *MockDev) Writes() []RegWrite {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RegWrite, len(m.writes))
	copy(out, m.writes)
	return out
}

// ResetWrites forgets recorded writes, keeping register contents.
func (m *MockDev) ResetWrites() {
	m.mu.Lock()
	m.writes = nil
	m.mu.Unlock()
}

// Closed reports whether Close was called.
func (m *MockDev) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
