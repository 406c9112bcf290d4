// Package settings persists the agent tool's openclaw.json document.
package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/loykin/clawpanel/internal/metrics"
)

// Document is the parsed configuration. Keys the panel does not know about are
// preserved on every rewrite; numbers are kept as json.Number.
type Document = map[string]any

const (
	dirName  = ".openclaw"
	fileName = "openclaw.json"
)

// DefaultPath returns $HOME/.openclaw/openclaw.json.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(dirName, fileName)
	}
	return filepath.Join(home, dirName, fileName)
}

// Store serializes writers within this process. Across processes the last
// rename wins.
type Store struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

func New(path string, logger *slog.Logger) *Store {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: path, logger: logger.With("component", "settings")}
}

func (s *Store) Path() string { return s.path }

// Load returns the document, or an empty one when the file is missing or unreadable.
func (s *Store) Load() Document {
	doc, err := s.LoadStrict()
	if err != nil {
		s.logger.Warn("config unreadable, using empty document", "path", s.path, "error", err)
		return Document{}
	}
	return doc
}

// LoadStrict is Load with read and parse failures reported. A missing file is not an error.
func (s *Store) LoadStrict() (Document, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Document{}, nil
		}
		return nil, fmt.Errorf("read config %s: %w", s.path, err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return Document{}, nil
	}
	return Parse(b)
}

// Parse decodes raw into a Document. Anything but a single JSON object is ErrConfigParse.
func Parse(raw []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: top level value must be an object", ErrConfigParse)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after object", ErrConfigParse)
	}
	return doc, nil
}

// Marshal renders doc the way Save writes it: two space indent, no HTML escaping.
func Marshal(doc Document) ([]byte, error) {
	if doc == nil {
		doc = Document{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save replaces the file with doc. The new content is written to a temporary file
// in the same directory and renamed over the target.
func (s *Store) Save(doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(doc)
}

func (s *Store) saveLocked(doc Document) error {
	err := s.writeAtomic(doc)
	metrics.IncConfigWrite(err == nil)
	if err != nil {
		s.logger.Error("config write failed", "path", s.path, "error", err)
		return &WriteError{Path: s.path, Err: err}
	}
	s.logger.Debug("config saved", "path", s.path)
	return nil
}

func (s *Store) writeAtomic(doc Document) error {
	data, err := Marshal(doc)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	mode := fs.FileMode(0o600)
	if fi, err := os.Stat(s.path); err == nil {
		mode = fi.Mode().Perm()
	}
	tmp, err := os.CreateTemp(dir, "."+fileName+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		cleanup()
		return err
	}
	return nil
}

// Update loads the document, applies fn and saves the result as one step with
// respect to other writers of this Store.
func (s *Store) Update(fn func(doc Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.Load()
	if err := fn(doc); err != nil {
		return err
	}
	return s.saveLocked(doc)
}

// SetField sets doc[section][key] = value. A missing or non-object section is
// replaced by a new object; sibling keys of an existing section are kept.
func (s *Store) SetField(section, key string, value any) error {
	if section == "" || key == "" {
		return errors.New("section and key are required")
	}
	return s.Update(func(doc Document) error {
		Section(doc, section)[key] = value
		return nil
	})
}

// Replace parses raw and saves it as the whole document. On a parse error the
// file is not touched.
func (s *Store) Replace(raw []byte) error {
	doc, err := Parse(raw)
	if err != nil {
		return err
	}
	return s.Save(doc)
}

// Section returns doc[name] as an object, installing an empty one when the key is
// absent or holds a non-object value.
func Section(doc Document, name string) map[string]any {
	if m, ok := doc[name].(map[string]any); ok {
		return m
	}
	m := map[string]any{}
	doc[name] = m
	return m
}
