// Package validation checks remote input before it reaches the simulation.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/opd-ai/go-flight/pkg/control"
)

const (
	MaxMessageSize   = 64 * 1024
	MaxActorNameLen  = 32
	DefaultInputRate = 120 // frames per second per session
)

// Rejection causes. Returned errors wrap one of these.
var (
	ErrTooLarge     = errors.New("message too large")
	ErrMalformed    = errors.New("malformed message")
	ErrRateLimited  = errors.New("rate limit exceeded")
	ErrInvalidName  = errors.New("invalid actor name")
	ErrInvalidInput = errors.New("invalid control input")
)

// MessageValidator checks raw frames for size, format and rate.
type MessageValidator struct {
	limiter *RateLimiter
	rate    int
	window  time.Duration
}

// NewMessageValidator allows rate frames per window for each session.
// Non-positive arguments fall back to DefaultInputRate per second.
func NewMessageValidator(rate int, window time.Duration) *MessageValidator {
	if rate <= 0 {
		rate = DefaultInputRate
	}
	if window <= 0 {
		window = time.Second
	}
	return &MessageValidator{
		limiter: NewRateLimiter(rate, window),
		rate:    rate,
		window:  window,
	}
}

// Close stops the rate limiter's sweeper.
func (v *MessageValidator) Close() {
	v.limiter.Close()
}

// Forget drops the rate limit state of a disconnected session.
func (v *MessageValidator) Forget(sessionID string) {
	v.limiter.Forget(sessionID)
}

// ValidateMessage checks a raw frame. Oversized and malformed frames do not
// spend the session's rate budget.
func (v *MessageValidator) ValidateMessage(data []byte, sessionID string) error {
	if len(data) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, len(data), MaxMessageSize)
	}
	if !json.Valid(data) {
		return fmt.Errorf("%w: not valid JSON", ErrMalformed)
	}
	if !v.limiter.Allow(sessionID) {
		return fmt.Errorf("%w: max %d frames per %s", ErrRateLimited, v.rate, v.window)
	}
	return nil
}

func nameError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidName, fmt.Sprintf(format, args...))
}

// nameRune reports whether r may appear in an actor name. Names are routing
// keys and log values, so punctuation is limited to - _ and .
func nameRune(r rune) bool {
	switch {
	case r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r)):
		return true
	case r == ' ', r == '-', r == '_', r == '.':
		return true
	}
	return false
}

// ValidateActorName returns name with surrounding whitespace trimmed.
func ValidateActorName(name string) (string, error) {
	if len(name) > MaxActorNameLen {
		return "", nameError("%d bytes (max %d)", len(name), MaxActorNameLen)
	}
	if !utf8.ValidString(name) {
		return "", nameError("not valid UTF-8")
	}

	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", nameError("empty")
	}
	for _, r := range trimmed {
		if unicode.IsControl(r) {
			return "", nameError("contains control characters")
		}
		if !nameRune(r) {
			return "", nameError("character %q not allowed", r)
		}
	}
	return trimmed, nil
}

// ValidateSessionID checks that a client session id is a UUID.
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid session id: %w", err)
	}
	return nil
}

// ValidateInputFrame checks a remote control intent before it is buffered.
// Axis values must be finite, rotation axes within [-1, 1] and thrust within [0, 1].
func ValidateInputFrame(actorID uint64, in control.ControlInput) error {
	if actorID == 0 {
		return fmt.Errorf("%w: frame has no actor id", ErrInvalidInput)
	}

	var err error
	switch in.Kind {
	case control.InputNone:
	case control.InputFlight:
		err = validateFlight(in)
	case control.InputDirect:
		err = validateDirect(in.Direct)
	default:
		err = fmt.Errorf("unknown input kind %d", in.Kind)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func validateFlight(in control.ControlInput) error {
	f := in.Flight
	axes := []struct {
		name     string
		value    *float64
		min, max float64
	}{
		{"thrust", f.Thrust, 0, 1},
		{"pitch", f.Pitch, -1, 1},
		{"yaw", f.Yaw, -1, 1},
		{"roll", f.Roll, -1, 1},
	}
	for _, a := range axes {
		if a.value == nil {
			continue
		}
		if err := checkAxis(a.name, *a.value, a.min, a.max); err != nil {
			return err
		}
	}
	return nil
}

func validateDirect(d control.DirectMovement) error {
	for i, v := range d.Vector {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("direct vector component %d is not finite", i)
		}
	}
	if d.Rotation == nil {
		return nil
	}
	for i, name := range [3]string{"pitch", "yaw", "roll"} {
		if err := checkAxis("direct "+name, d.Rotation[i], -1, 1); err != nil {
			return err
		}
	}
	return nil
}

func checkAxis(name string, v, min, max float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%s is not finite", name)
	}
	if v < min || v > max {
		return fmt.Errorf("%s out of range: %g (must be %g to %g)", name, v, min, max)
	}
	return nil
}
