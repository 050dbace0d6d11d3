// pkg/camera/mode.go
package camera

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Mode is the camera rig state.
type Mode int32

const (
	// Free lets the user orbit around the target.
	Free Mode = iota
	// Follow locks the camera to a pivot behind the target.
	Follow
)

// String returns the lowercase mode name.
func (m Mode) String() string {
	if m == Follow {
		return "follow"
	}
	return "free"
}

// ParseMode converts "free" or "follow" into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "free", "":
		return Free, nil
	case "follow":
		return Follow, nil
	default:
		return Free, fmt.Errorf("unknown camera mode %q", s)
	}
}

// ModeSignal is the externally owned desired mode, polled once per tick.
type ModeSignal interface {
	Mode() Mode
}

// ModeSwitch is a ModeSignal that UI and input code can flip from any goroutine.
type ModeSwitch struct {
	mode atomic.Int32
}

// NewModeSwitch creates a switch set to initial.
func NewModeSwitch(initial Mode) *ModeSwitch {
	s := &ModeSwitch{}
	s.Set(initial)
	return s
}

// Mode returns the desired mode.
func (s *ModeSwitch) Mode() Mode {
	return Mode(s.mode.Load())
}

// Set stores the desired mode.
func (s *ModeSwitch) Set(m Mode) {
	s.mode.Store(int32(m))
}

// Toggle flips between Free and Follow and returns the new mode.
func (s *ModeSwitch) Toggle() Mode {
	for {
		old := s.mode.Load()
		next := int32(Follow)
		if Mode(old) == Follow {
			next = int32(Free)
		}
		if s.mode.CompareAndSwap(old, next) {
			return Mode(next)
		}
	}
}

// Strategy selects how Follow mode chases the pivot.
type Strategy int

const (
	// Spring chases the pivot with a damped spring.
	Spring Strategy = iota
	// Lerp closes a fixed fraction of the gap each tick.
	Lerp
)

// String returns the lowercase strategy name.
func (s Strategy) String() string {
	if s == Lerp {
		return "lerp"
	}
	return "spring"
}

// ParseStrategy converts "spring" or "lerp" into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "spring", "":
		return Spring, nil
	case "lerp":
		return Lerp, nil
	default:
		return Spring, fmt.Errorf("unknown follow strategy %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
