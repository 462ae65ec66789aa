package chain

import (
	"sync"

	"mailchat/internal/models"
)

const (
	defaultMaxTurns  = 10
	defaultMaxTokens = 3000
)

// Memory keeps per-session conversation turns in process, bounded by a
// turn count and an estimated token budget. Oldest turns drop first; the
// newest turn is never truncated.
type Memory struct {
	mu        sync.Mutex
	sessions  map[string][]models.ConversationTurn
	maxTurns  int
	maxTokens int
}

// NewMemory builds a bounded session memory
func NewMemory(maxTurns, maxTokens int) *Memory {
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Memory{
		sessions:  make(map[string][]models.ConversationTurn),
		maxTurns:  maxTurns,
		maxTokens: maxTokens,
	}
}

// Recall returns a copy of the session's turns, oldest first
func (m *Memory) Recall(sessionID string) []models.ConversationTurn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ConversationTurn(nil), m.sessions[sessionID]...)
}

// Append records a turn and re-applies the bounds
func (m *Memory) Append(sessionID string, turn models.ConversationTurn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = m.bound(append(m.sessions[sessionID], turn))
}

// Seed replaces a session's turns, typically restored from the
// conversation store after a restart. Bounds apply.
func (m *Memory) Seed(sessionID string, turns []models.ConversationTurn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = m.bound(append([]models.ConversationTurn(nil), turns...))
}

// Forget drops a session's turns
func (m *Memory) Forget(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Memory) bound(turns []models.ConversationTurn) []models.ConversationTurn {
	if len(turns) > m.maxTurns {
		turns = turns[len(turns)-m.maxTurns:]
	}
	for len(turns) > 1 && totalTokens(turns) > m.maxTokens {
		turns = turns[1:]
	}
	return turns
}

func totalTokens(turns []models.ConversationTurn) int {
	total := 0
	for _, turn := range turns {
		total += estimateTokens(turn.Text)
	}
	return total
}

// estimateTokens approximates the model tokenizer at four characters per
// token, which overshoots slightly for English and keeps prompts safe
func estimateTokens(text string) int {
	return len(text)/4 + 1
}
