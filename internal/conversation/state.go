// ABOUTME: Conversation state: append-only message history plus processing and error flags
// ABOUTME: Read through State, mutated only through the Recorder handed to the dispatcher

package conversation

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Message is one entry of the conversation history.
type Message struct {
	ID         string
	Role       Role
	Content    string
	AgentLabel string // agent messages only
	SentAt     time.Time
}

// Snapshot is an immutable copy of the conversation state.
type Snapshot struct {
	Messages   []Message
	Processing bool
	LastError  string // empty when there is no error
	Draft      string // pending input restored by retry
	Version    uint64
}

// LastUserMessage scans backwards for the most recent user message.
func (s Snapshot) LastUserMessage() (Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i], true
		}
	}
	return Message{}, false
}

// State is the read side of a conversation.
type State struct {
	mu         sync.RWMutex
	messages   []Message
	processing bool
	lastError  string
	draft      string
	version    uint64

	bc     *SnapshotBroadcaster
	logger *slog.Logger
}

// Recorder is the only writer of a State.
type Recorder struct {
	s   *State
	now func() time.Time
}

// New creates an empty conversation and its single writer.
func New(logger *slog.Logger) (*State, *Recorder) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &State{
		bc:     NewSnapshotBroadcaster(logger),
		logger: logger.With("component", "conversation"),
	}
	return s, &Recorder{s: s, now: time.Now}
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Len returns the number of messages in the history.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Processing reports whether a submission is in flight.
func (s *State) Processing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.processing
}

// Subscribe returns a channel receiving a snapshot after every change,
// starting with the current one. The channel closes when ctx is cancelled
// or the State is closed.
func (s *State) Subscribe(ctx context.Context) <-chan Snapshot {
	// Holding the write lock orders the priming snapshot before any later publish.
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, id := s.bc.Subscribe(ctx)
	s.bc.publishTo(id, s.snapshotLocked())
	return ch
}

// Close closes every subscription.
func (s *State) Close() {
	s.bc.Close()
}

func (s *State) snapshotLocked() Snapshot {
	msgs := make([]Message, len(s.messages))
	copy(msgs, s.messages)
	return Snapshot{
		Messages:   msgs,
		Processing: s.processing,
		LastError:  s.lastError,
		Draft:      s.draft,
		Version:    s.version,
	}
}

// mutate applies fn under the write lock, bumps the version and publishes.
func (s *State) mutate(fn func()) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn()
	s.version++
	snap := s.snapshotLocked()
	s.bc.Publish(snap)
	return snap
}

// SetClock overrides the timestamp source for appended messages.
func (r *Recorder) SetClock(now func() time.Time) {
	r.now = now
}

// Append adds a message to the history. ID and SentAt are filled in when empty.
// Content is stored as given.
func (r *Recorder) Append(m Message) Message {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.SentAt.IsZero() {
		m.SentAt = r.now()
	}
	r.s.mutate(func() {
		r.s.messages = append(r.s.messages, m)
	})
	r.s.logger.Debug("message appended", "role", m.Role, "id", m.ID, "length", len(m.Content))
	return m
}

// Begin marks a submission in flight and clears any previous error.
func (r *Recorder) Begin() {
	r.s.mutate(func() {
		r.s.processing = true
		r.s.lastError = ""
	})
}

// Finish clears the in-flight flag and records errMsg (empty for success).
func (r *Recorder) Finish(errMsg string) {
	r.s.mutate(func() {
		r.s.processing = false
		r.s.lastError = errMsg
	})
	if errMsg != "" {
		r.s.logger.Debug("submission failed", "error", errMsg)
	}
}

// SetDraft replaces the pending input.
func (r *Recorder) SetDraft(text string) {
	r.s.mutate(func() {
		r.s.draft = text
	})
}

// ClearError removes the visible error without touching anything else.
func (r *Recorder) ClearError() {
	r.s.mutate(func() {
		r.s.lastError = ""
	})
}

// IsBlank reports whether text is empty after trimming whitespace.
func IsBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}
