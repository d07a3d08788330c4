package conversation

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrOrphanToolMessage indicates a tool message that answers no earlier
// tool call.
var ErrOrphanToolMessage = errors.New("tool message has no matching tool call")

// Store keeps transcripts per session id in memory.
type Store struct {
	mu       sync.Mutex
	sessions map[string][]Message
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{sessions: make(map[string][]Message)}
}

// Get returns a copy of the transcript for id. Unknown ids yield an empty
// transcript.
func (s *Store) Get(id string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.sessions[id])
}

// Append adds msgs to the transcript for id, creating it if needed.
func (s *Store) Append(id string, msgs ...Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = append(s.sessions[id], msgs...)
}

// Clear resets the transcript for id.
func (s *Store) Clear(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Len returns the number of messages stored for id.
func (s *Store) Len(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions[id])
}

// ValidateToolCalls checks that every tool message answers a tool call
// issued by an earlier agent message.
func ValidateToolCalls(msgs []Message) error {
	issued := make(map[string]bool)
	for i, m := range msgs {
		switch m.Role {
		case RoleAgent:
			for _, call := range m.ToolCalls {
				issued[call.ID] = true
			}
		case RoleTool:
			if !issued[m.ToolCallID] {
				return fmt.Errorf("message %d (call %q): %w", i, m.ToolCallID, ErrOrphanToolMessage)
			}
		}
	}
	return nil
}
