package chatclient

import (
	"sync"
	"time"
)

const typingClearAfter = 3 * time.Second

// TypingIndicator tracks which users are typing in a room on the receiving
// side. The gateway keeps no typing state, so each peer's indicator is
// cleared here after three seconds of silence.
type TypingIndicator struct {
	mu       sync.Mutex
	timeout  time.Duration
	timers   map[uint]*time.Timer
	onChange func(userID uint, isTyping bool)
}

// NewTypingIndicator constructs an indicator. onChange fires on every
// visible transition, including timeout-driven clears.
func NewTypingIndicator(onChange func(userID uint, isTyping bool)) *TypingIndicator {
	return &TypingIndicator{
		timeout:  typingClearAfter,
		timers:   make(map[uint]*time.Timer),
		onChange: onChange,
	}
}

// Observe feeds an inbound typing event into the indicator.
func (t *TypingIndicator) Observe(userID uint, isTyping bool) {
	t.mu.Lock()
	timer, active := t.timers[userID]

	if !isTyping {
		if active {
			timer.Stop()
			delete(t.timers, userID)
		}
		t.mu.Unlock()
		if active && t.onChange != nil {
			t.onChange(userID, false)
		}
		return
	}

	if active {
		timer.Reset(t.timeout)
		t.mu.Unlock()
		return
	}

	t.timers[userID] = time.AfterFunc(t.timeout, func() {
		t.expire(userID)
	})
	t.mu.Unlock()

	if t.onChange != nil {
		t.onChange(userID, true)
	}
}

// Typing reports whether a user is currently shown as typing.
func (t *TypingIndicator) Typing(userID uint) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, active := t.timers[userID]
	return active
}

// Stop cancels all pending clears without firing onChange.
func (t *TypingIndicator) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for userID, timer := range t.timers {
		timer.Stop()
		delete(t.timers, userID)
	}
}

func (t *TypingIndicator) expire(userID uint) {
	t.mu.Lock()
	_, active := t.timers[userID]
	delete(t.timers, userID)
	t.mu.Unlock()

	if active && t.onChange != nil {
		t.onChange(userID, false)
	}
}
