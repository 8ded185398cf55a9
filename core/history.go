package core

import "sync"

type HistoryRole string

const (
	HistoryRoleUser      HistoryRole = "user"
	HistoryRoleAssistant HistoryRole = "assistant"
)

type HistoryEntry struct {
	Role    HistoryRole `json:"role"`
	Content string      `json:"content"`
}

// History is the rolling conversation context fed to the prompt composer.
// Entries are appended only on successful turn completion — never for
// cancelled or failed turns.
type History struct {
	mu      sync.Mutex
	entries []HistoryEntry
}

func (h *History) Append(role HistoryRole, content string) {
	h.mu.Lock()
	h.entries = append(h.entries, HistoryEntry{Role: role, Content: content})
	h.mu.Unlock()
}

// AppendExchange records a completed user/assistant pair.
func (h *History) AppendExchange(user, assistant string) {
	h.mu.Lock()
	h.entries = append(h.entries,
		HistoryEntry{Role: HistoryRoleUser, Content: user},
		HistoryEntry{Role: HistoryRoleAssistant, Content: assistant},
	)
	h.mu.Unlock()
}

// Entries returns a snapshot of the history.
func (h *History) Entries() []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := make([]HistoryEntry, len(h.entries))
	copy(cp, h.entries)
	return cp
}

// Reset clears the history for an explicit "new conversation".
func (h *History) Reset() {
	h.mu.Lock()
	h.entries = nil
	h.mu.Unlock()
}
