// pkg/control/network.go
package control

import (
	"sort"
	"sync"
	"time"
)

// Network replay defaults.
const (
	DefaultInterpolationDelay = 100 * time.Millisecond
	DefaultInputBufferSize    = 10
)

// TimedInput is a control intent stamped with its arrival time.
type TimedInput struct {
	Timestamp time.Time
	Input     ControlInput
}

// NetworkController replays remote inputs after a fixed delay to absorb jitter.
// ReceiveInput may be called from connection goroutines while Update runs on the tick.
type NetworkController struct {
	BaseController

	mu       sync.Mutex
	buffer   []TimedInput
	capacity int
	delay    time.Duration
	current  ControlInput
	now      func() time.Time
}

// NewNetworkController creates a controller with the default delay and buffer size.
func NewNetworkController() *NetworkController {
	return &NetworkController{
		capacity: DefaultInputBufferSize,
		delay:    DefaultInterpolationDelay,
		current:  NoInput(),
		now:      time.Now,
	}
}

// SetClock replaces the time source. Used by tests and replays.
func (n *NetworkController) SetClock(now func() time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.now = now
}

// SetInterpolationDelay changes how far behind real time inputs are replayed.
func (n *NetworkController) SetInterpolationDelay(delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.delay = delay
}

// InterpolationDelay returns the replay delay.
func (n *NetworkController) InterpolationDelay() time.Duration {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.delay
}

// SetBufferSize changes the buffer capacity. Values below one are ignored.
func (n *NetworkController) SetBufferSize(size int) {
	if size < 1 {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.capacity = size
	n.trimLocked()
}

// ReceiveInput buffers an input stamped at timestamp. When the buffer is full the
// oldest entry is dropped.
func (n *NetworkController) ReceiveInput(in ControlInput, timestamp time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()

	i := sort.Search(len(n.buffer), func(i int) bool {
		return n.buffer[i].Timestamp.After(timestamp)
	})
	n.buffer = append(n.buffer, TimedInput{})
	copy(n.buffer[i+1:], n.buffer[i:])
	n.buffer[i] = TimedInput{Timestamp: timestamp, Input: in}
	n.trimLocked()
}

func (n *NetworkController) trimLocked() {
	if over := len(n.buffer) - n.capacity; over > 0 {
		n.buffer = append(n.buffer[:0], n.buffer[over:]...)
	}
}

// BufferedInputs returns the number of inputs waiting to be replayed.
func (n *NetworkController) BufferedInputs() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.buffer)
}

// Update replays the newest input older than now minus the delay and discards
// everything before it. Between remote updates the last replayed input is held.
func (n *NetworkController) Update(deltaTimeMs float64) ControlInput {
	if n.Pawn() == nil {
		return NoInput()
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	cutoff := n.now().Add(-n.delay)
	due := -1
	for i, ti := range n.buffer {
		if ti.Timestamp.After(cutoff) {
			break
		}
		due = i
	}
	if due >= 0 {
		n.current = n.buffer[due].Input
		n.buffer = append(n.buffer[:0], n.buffer[due+1:]...)
	}
	return n.current
}

// Unpossess clears the link and forgets any buffered or held input.
func (n *NetworkController) Unpossess() {
	n.BaseController.Unpossess()
	n.mu.Lock()
	defer n.mu.Unlock()
	n.buffer = nil
	n.current = NoInput()
}
