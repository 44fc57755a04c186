package internal

import (
	"crypto/sha256"
	"encoding/hex"
)

// Deduplicator removes duplicate session records, e.g. a REPL prompt that
// was resubmitted and answered identically
type Deduplicator struct{}

// NewDeduplicator creates a new Deduplicator
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{}
}

// Deduplicate keeps the first record of each conversation, and of each
// distinct transcript among records that never got a conversation id
func (d *Deduplicator) Deduplicate(sessions []*Session) []*Session {
	seen := make(map[string]bool)
	var unique []*Session

	for _, session := range sessions {
		if session == nil {
			continue
		}
		key := "conv:" + session.ConversationID
		if session.ConversationID == "" {
			key = "hash:" + d.hashSessionContent(session)
		}
		if !seen[key] {
			seen[key] = true
			unique = append(unique, session)
		}
	}

	return unique
}

// hashSessionContent creates a content-based hash for a session
func (d *Deduplicator) hashSessionContent(session *Session) string {
	h := sha256.New()

	h.Write([]byte(session.Prompt))
	for _, msg := range session.Messages {
		h.Write([]byte(msg.Actor))
		h.Write([]byte(msg.Content))
	}
	h.Write([]byte(session.Error))

	return hex.EncodeToString(h.Sum(nil))
}
