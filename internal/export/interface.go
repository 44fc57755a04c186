package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/universal-adapter/hubctl/internal"
)

// Exporter defines the interface for all export formats
type Exporter interface {
	Export(session *internal.Session, w io.Writer) error
	Extension() string
}

// NewExporter creates a new exporter based on format
func NewExporter(format string) (Exporter, error) {
	switch format {
	case "jsonl":
		return &JSONLExporter{}, nil
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	case "json":
		return &JSONExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: jsonl, md, yaml, json)", format)
	}
}

// WriteFile exports session into dir as session_<id>.<ext> and returns
// the file path
func WriteFile(exporter Exporter, session *internal.Session, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", &internal.ExportError{Format: exporter.Extension(), Path: dir, Err: err}
	}

	path := filepath.Join(dir, fmt.Sprintf("session_%s.%s", session.ID, exporter.Extension()))
	file, err := os.Create(path)
	if err != nil {
		return "", &internal.ExportError{Format: exporter.Extension(), Path: path, Err: err}
	}
	defer func() { _ = file.Close() }()

	if err := exporter.Export(session, file); err != nil {
		return "", &internal.ExportError{Format: exporter.Extension(), Path: path, Err: err}
	}
	return path, nil
}
