package notebook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const metadataVersion = "1.0"

// maxCollisionSuffix bounds the "_N" suffixes tried for same-second notes.
const maxCollisionSuffix = 1000

// Local stores notes as files under <base>/notes/<notebook>/<section>/.
// A metadata.json registry at <base> is rewritten after every mutation.
// Concurrent writers against the same base directory from different
// processes are not coordinated; the last write of metadata.json wins.
type Local struct {
	base     string
	notesDir string
	format   Format
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.Mutex
	meta registry
}

type registry struct {
	Version   string                   `json:"version"`
	Created   string                   `json:"created"`
	NoteCount int                      `json:"note_count"`
	Notebooks map[string]notebookEntry `json:"notebooks"`
	Tags      []string                 `json:"tags"`
}

type notebookEntry struct {
	Name      string `json:"name"`
	Created   string `json:"created"`
	NoteCount int    `json:"note_count"`
	Path      string `json:"path"`
}

// NewLocal opens (or initializes) the note tree at base. A missing or
// unreadable metadata.json is replaced by fresh defaults.
func NewLocal(base string, format Format, logger *slog.Logger) (*Local, error) {
	l := &Local{
		base:     base,
		notesDir: filepath.Join(base, "notes"),
		format:   format,
		logger:   logger,
		now:      time.Now,
	}
	if err := os.MkdirAll(l.notesDir, 0o755); err != nil {
		return nil, fmt.Errorf("create notes dir: %w", err)
	}
	l.meta = l.loadRegistry()
	return l, nil
}

func (l *Local) Name() string { return "local" }

func (l *Local) metadataPath() string { return filepath.Join(l.base, "metadata.json") }

func (l *Local) loadRegistry() registry {
	data, err := os.ReadFile(l.metadataPath())
	if err == nil {
		var r registry
		if err := json.Unmarshal(data, &r); err == nil {
			if r.Notebooks == nil {
				r.Notebooks = make(map[string]notebookEntry)
			}
			if r.Tags == nil {
				r.Tags = []string{}
			}
			return r
		}
		l.logger.Warn("metadata.json unreadable, reinitializing", "path", l.metadataPath(), "error", err)
	} else if !errors.Is(err, fs.ErrNotExist) {
		l.logger.Warn("metadata.json unreadable, reinitializing", "path", l.metadataPath(), "error", err)
	}
	return registry{
		Version:   metadataVersion,
		Created:   l.now().Format(isoLayout),
		Notebooks: make(map[string]notebookEntry),
		Tags:      []string{},
	}
}

// saveRegistry must be called with mu held.
func (l *Local) saveRegistry() error {
	data, err := json.MarshalIndent(l.meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(l.metadataPath(), data, 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// GetOrCreateNotebook returns the notebook ID (its slug), creating the
// directory and registry entry on first use.
func (l *Local) GetOrCreateNotebook(ctx context.Context, name string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ensureNotebook(name)
}

func (l *Local) ensureNotebook(name string) (string, error) {
	id := Slug(name)
	dir := filepath.Join(l.notesDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create notebook %q: %w", name, err)
	}
	if _, ok := l.meta.Notebooks[id]; !ok {
		l.meta.Notebooks[id] = notebookEntry{
			Name:    name,
			Created: l.now().Format(isoLayout),
			Path:    dir,
		}
		if err := l.saveRegistry(); err != nil {
			return "", err
		}
		l.logger.Info("notebook created", "notebook", name, "path", dir)
	}
	return id, nil
}

// GetOrCreateSection returns the section ID within notebookID, creating its
// directory if needed.
func (l *Local) GetOrCreateSection(ctx context.Context, notebookID, name string) (string, error) {
	id := Slug(name)
	if err := os.MkdirAll(filepath.Join(l.notesDir, Slug(notebookID), id), 0o755); err != nil {
		return "", fmt.Errorf("create section %q: %w", name, err)
	}
	return id, nil
}

// CreateNote writes a note file and returns its path. The file name is
// <timestamp>_<title-slug>.<ext>; a note that would reuse an existing name
// gets a _2, _3, ... suffix instead of overwriting it.
func (l *Local) CreateNote(ctx context.Context, in NoteInput, notebook, section string, format Format) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if in.Created.IsZero() {
		in.Created = l.now()
	}

	var content string
	switch format {
	case FormatHTML:
		html, err := RenderHTML(in)
		if err != nil {
			return "", err
		}
		content = html
	default:
		format = FormatMarkdown
		content = RenderMarkdown(in)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	nbID, err := l.ensureNotebook(notebook)
	if err != nil {
		return "", err
	}
	secID, err := l.GetOrCreateSection(ctx, nbID, section)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(l.notesDir, nbID, secID)

	stem := in.Created.Format(fileLayout) + "_" + Slug(in.Title)
	path, err := writeExclusive(dir, stem, format.ext(), []byte(content))
	if err != nil {
		return "", err
	}

	entry := l.meta.Notebooks[nbID]
	entry.NoteCount++
	l.meta.Notebooks[nbID] = entry
	l.meta.NoteCount++
	if err := l.saveRegistry(); err != nil {
		// The note itself is durable; a stale count is recoverable.
		l.logger.Warn("failed to update metadata.json", "error", err)
	}

	l.logger.Info("note created", "title", in.Title, "path", path)
	return path, nil
}

func writeExclusive(dir, stem, ext string, content []byte) (string, error) {
	for n := 1; n <= maxCollisionSuffix; n++ {
		name := stem + ext
		if n > 1 {
			name = fmt.Sprintf("%s_%d%s", stem, n, ext)
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create note file: %w", err)
		}
		if _, err := f.Write(content); err != nil {
			f.Close()
			os.Remove(path)
			return "", fmt.Errorf("write note file: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("close note file: %w", err)
		}
		return path, nil
	}
	return "", fmt.Errorf("no free file name for %s%s", stem, ext)
}

func (l *Local) CreateTranscriptionNote(ctx context.Context, in NoteInput) (string, error) {
	return l.CreateNote(ctx, in, DefaultNotebook, DefaultSection, l.format)
}

func (l *Local) ListNotebooks(ctx context.Context) ([]Notebook, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Notebook, 0, len(l.meta.Notebooks))
	for id, e := range l.meta.Notebooks {
		created, _ := time.ParseInLocation(isoLayout, e.Created, time.Local)
		out = append(out, Notebook{
			ID:        id,
			Name:      e.Name,
			Created:   created,
			NoteCount: e.NoteCount,
			Path:      e.Path,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// walkNotes calls fn for every note file at <notes>/<notebook>/<section>/.
func (l *Local) walkNotes(fn func(notebook, section string, entry fs.DirEntry, path string) error) error {
	notebooks, err := os.ReadDir(l.notesDir)
	if err != nil {
		return fmt.Errorf("read notes dir: %w", err)
	}
	for _, nb := range notebooks {
		if !nb.IsDir() {
			continue
		}
		sections, err := os.ReadDir(filepath.Join(l.notesDir, nb.Name()))
		if err != nil {
			continue
		}
		for _, sec := range sections {
			if !sec.IsDir() {
				continue
			}
			secDir := filepath.Join(l.notesDir, nb.Name(), sec.Name())
			files, err := os.ReadDir(secDir)
			if err != nil {
				continue
			}
			for _, f := range files {
				if !f.Type().IsRegular() || !isNoteFile(f.Name()) {
					continue
				}
				if err := fn(nb.Name(), sec.Name(), f, filepath.Join(secDir, f.Name())); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func isNoteFile(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".md" || ext == ".html"
}

// Search returns notes whose content contains query, case-insensitively.
// Every note file is read on each call.
func (l *Local) Search(ctx context.Context, query string) ([]SearchMatch, error) {
	q := strings.ToLower(query)
	matches := []SearchMatch{}
	err := l.walkNotes(func(notebook, section string, entry fs.DirEntry, path string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		if !strings.Contains(strings.ToLower(string(data)), q) {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return nil
		}
		matches = append(matches, SearchMatch{
			Path:     path,
			Notebook: notebook,
			Section:  section,
			Filename: entry.Name(),
			Modified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// NoteContent returns the content of a note file inside the tree.
func (l *Local) NoteContent(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	root, err := filepath.Abs(l.notesDir)
	if err != nil {
		return "", fmt.Errorf("resolve notes dir: %w", err)
	}
	if rel, err := filepath.Rel(root, abs); err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", ErrNotFound
	}
	data, err := os.ReadFile(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read note: %w", err)
	}
	return string(data), nil
}

type Stats struct {
	TotalNotebooks int     `json:"total_notebooks"`
	TotalNotes     int     `json:"total_notes"`
	TotalSizeBytes int64   `json:"total_size_bytes"`
	TotalSizeMB    float64 `json:"total_size_mb"`
	BaseDirectory  string  `json:"base_directory"`
}

func (l *Local) Stats() (Stats, error) {
	l.mu.Lock()
	st := Stats{TotalNotebooks: len(l.meta.Notebooks), BaseDirectory: l.base}
	l.mu.Unlock()

	err := l.walkNotes(func(_, _ string, entry fs.DirEntry, _ string) error {
		info, err := entry.Info()
		if err != nil {
			return nil
		}
		st.TotalNotes++
		st.TotalSizeBytes += info.Size()
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	st.TotalSizeMB = math.Round(float64(st.TotalSizeBytes)/(1024*1024)*100) / 100
	return st, nil
}
