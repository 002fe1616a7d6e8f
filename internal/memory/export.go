package memory

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// ExportDocument is the user-facing backup/download format. It round-trips
// through Import.
type ExportDocument struct {
	ExportDate         time.Time `json:"exportDate"`
	SessionID          string    `json:"sessionId"`
	TotalConversations int       `json:"totalConversations"`
	Conversations      []Turn    `json:"conversations"`
}

// Export serializes a session's turns, ordered by timestamp. An empty
// sessionID exports every cached turn.
func (c *Cache) Export(sessionID string) ([]byte, error) {
	c.mu.Lock()
	turns := make([]Turn, 0)
	for _, t := range c.turns {
		if sessionID != "" && t.SessionID != sessionID {
			continue
		}
		turns = append(turns, *t.Clone())
	}
	c.mu.Unlock()

	sort.Slice(turns, func(i, j int) bool {
		return turns[i].Timestamp.Before(turns[j].Timestamp)
	})

	doc := ExportDocument{
		ExportDate:         time.Now(),
		SessionID:          sessionID,
		TotalConversations: len(turns),
		Conversations:      turns,
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Import restores turns from an exported document, overwriting turns that
// share ids with cached ones. Returns the number of turns imported.
func (c *Cache) Import(data []byte) (int, error) {
	var doc ExportDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("parsing export document: %w", err)
	}
	if doc.TotalConversations != len(doc.Conversations) {
		return 0, fmt.Errorf("export document count mismatch: header says %d, found %d",
			doc.TotalConversations, len(doc.Conversations))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	imported := 0
	for i := range doc.Conversations {
		turn := doc.Conversations[i].Clone()
		if turn.ID == "" || turn.Question == "" {
			continue
		}
		if len(turn.Embedding) != c.vec.Dimension() {
			turn.Embedding = c.vec.Embed(turn.Question)
		}
		if _, exists := c.turns[turn.ID]; !exists {
			c.updateSessionLocked(turn)
		}
		c.turns[turn.ID] = turn
		c.persistTurn(turn)
		imported++
	}

	if len(c.turns) > c.cfg.MaxEntries {
		c.optimizeLocked()
	}
	CacheSize.Set(float64(len(c.turns)))
	return imported, nil
}
