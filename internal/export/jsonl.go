package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/universal-adapter/hubctl/internal"
)

// JSONLExporter exports sessions in JSONL format (one message per line)
type JSONLExporter struct{}

// Export writes one object per transcript message, each tagged with the
// session and conversation it belongs to
func (e *JSONLExporter) Export(session *internal.Session, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	for i, msg := range session.Messages {
		obj := map[string]interface{}{
			"session": session.ID,
			"seq":     i,
			"actor":   msg.Actor,
			"content": msg.Content,
		}
		if session.ConversationID != "" {
			obj["conversation_id"] = session.ConversationID
		}
		if msg.Timestamp != "" {
			obj["timestamp"] = msg.Timestamp
		}

		if err := enc.Encode(obj); err != nil {
			return fmt.Errorf("failed to encode message %d: %w", i, err)
		}
	}

	return nil
}

// Extension returns the file extension for this format
func (e *JSONLExporter) Extension() string {
	return "jsonl"
}
