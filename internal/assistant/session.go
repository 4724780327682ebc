package assistant

import (
	"encoding/json"
	"fmt"
	"maps"
	"sync"
	"time"
)

// Interaction summarizes the last successful exchange.
type Interaction struct {
	Timestamp      time.Time  `json:"timestamp"`
	PromptType     PromptType `json:"prompt_type"`
	ResponseLength int        `json:"response_length"`
}

// SessionInfo is a snapshot of the client's session state.
type SessionInfo struct {
	ConversationID    string         `json:"conversation_id,omitempty"`
	LastInteraction   *Interaction   `json:"last_interaction"`
	UserPreferences   map[string]any `json:"user_preferences"`
	TotalInteractions int            `json:"total_interactions"`
	LastActivity      *time.Time     `json:"last_activity"`
}

// session is advisory state shared by all calls on one Client. Concurrent
// updates are last-write-wins.
type session struct {
	mu             sync.Mutex
	conversationID string
	last           *Interaction
	prefs          map[string]any
	interactions   int
}

func newSession() *session {
	return &session{prefs: make(map[string]any)}
}

func (s *session) id() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

func (s *session) record(p Prompt, resp Response, at time.Time) {
	length := 0
	if result, ok := resp["result"]; ok {
		length = resultLength(result)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cid, ok := resp["conversation_id"]; ok && cid != nil {
		if str, isStr := cid.(string); isStr {
			s.conversationID = str
		} else {
			s.conversationID = fmt.Sprint(cid)
		}
	}
	s.last = &Interaction{Timestamp: at, PromptType: p.Type, ResponseLength: length}
	s.interactions++
}

func resultLength(v any) int {
	if str, ok := v.(string); ok {
		return len([]rune(str))
	}
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(b)
}

func (s *session) snapshot() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := SessionInfo{
		ConversationID:    s.conversationID,
		UserPreferences:   maps.Clone(s.prefs),
		TotalInteractions: s.interactions,
	}
	if s.last != nil {
		last := *s.last
		info.LastInteraction = &last
		info.LastActivity = &last.Timestamp
	}
	return info
}

func (s *session) setPreference(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[key] = value
}

func (s *session) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversationID = ""
	s.last = nil
	s.prefs = make(map[string]any)
	s.interactions = 0
}
