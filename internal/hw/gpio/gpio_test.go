package gpio

import (
	"bytes"
	"strings"
	"testing"

	"github.com/cjeanneret/QuadDrive/internal/debug"
)

func TestMockDriver_RemembersLevels(t *testing.T) {
	m := NewMockDriver(nil)
	if err := m.SetupPin(25, Output); err != nil {
		t.Fatalf("SetupPin: %v", err)
	}
	if err := m.WritePin(25, High); err != nil {
		t.Fatalf("WritePin: %v", err)
	}
	lvl, err := m.ReadPin(25)
	if err != nil {
		t.Fatalf("ReadPin: %v", err)
	}
	if lvl != High {
		t.Errorf("pin 25 = %v, want HIGH", lvl)
	}
	if lvl, _ := m.ReadPin(24); lvl != Low {
		t.Errorf("unwritten pin = %v, want LOW", lvl)
	}
}

func TestMockDriver_ZeroValueUsable(t *testing.T) {
	m := &MockDriver{}
	if err := m.WritePin(4, High); err != nil {
		t.Fatalf("WritePin: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestMockDriver_TracesAtLevel4(t *testing.T) {
	var buf bytes.Buffer
	m := NewMockDriver(debug.New(debug.LevelTrace, &buf))
	_ = m.WritePin(24, Low)
	if !strings.Contains(buf.String(), "pin=24") {
		t.Errorf("expected GPIO trace, got %q", buf.String())
	}
}

func TestNewDriver_Mock(t *testing.T) {
	d, err := NewDriver(BackendMock, nil)
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	if _, ok := d.(*MockDriver); !ok {
		t.Errorf("driver = %T, want *MockDriver", d)
	}
}

func TestNewDriver_Unknown(t *testing.T) {
	if _, err := NewDriver("sysfs", nil); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestLevel_String(t *testing.T) {
	if High.String() != "HIGH" || Low.String() != "LOW" {
		t.Errorf("String() = %q/%q", High.String(), Low.String())
	}
}
