package render

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/covid-tracker/internal/domain"
)

// FilePublisher publishes documents to a fixed path.
type FilePublisher struct {
	Path string
}

// Publish writes doc to p.Path.
func (p FilePublisher) Publish(doc Document) error {
	return Publish(p.Path, doc)
}

// Publish writes doc to path, replacing any existing file atomically. A path
// ending in .md receives the Markdown; anything else receives the HTML page.
func Publish(path string, doc Document) error {
	data := doc.HTML
	if strings.EqualFold(filepath.Ext(path), ".md") {
		data = doc.Markdown
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &domain.IOError{Op: "create publish directory", Path: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return &domain.IOError{Op: "create temp file", Path: path, Err: err}
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &domain.IOError{Op: "write", Path: tmp.Name(), Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &domain.IOError{Op: "close", Path: tmp.Name(), Err: err}
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return &domain.IOError{Op: "chmod", Path: tmp.Name(), Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return &domain.IOError{Op: "publish", Path: path, Err: err}
	}
	return nil
}
