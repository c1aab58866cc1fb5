package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/afero"

	"github.com/xkilldash9x/uiprobe/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	sequencesFile = "action-cache.json"
	lessonsFile   = "lessons.json"
)

// FileBackend stores each memory list as one pretty-printed JSON array in dir.
type FileBackend struct {
	fs  afero.Fs
	dir string
}

// NewFileBackend returns a backend rooted at dir on fs. The directory is
// created lazily on the first save.
func NewFileBackend(fs afero.Fs, dir string) *FileBackend {
	return &FileBackend{fs: fs, dir: dir}
}

// Dir returns the directory holding the memory files.
func (b *FileBackend) Dir() string { return b.dir }

func (b *FileBackend) LoadSequences(_ context.Context) ([]schemas.CachedActionSequence, error) {
	var out []schemas.CachedActionSequence
	if err := b.readList(sequencesFile, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *FileBackend) SaveSequences(_ context.Context, sequences []schemas.CachedActionSequence) error {
	if sequences == nil {
		sequences = []schemas.CachedActionSequence{}
	}
	return b.writeList(sequencesFile, sequences)
}

func (b *FileBackend) LoadLessons(_ context.Context) ([]schemas.LessonLearned, error) {
	var out []schemas.LessonLearned
	if err := b.readList(lessonsFile, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *FileBackend) SaveLessons(_ context.Context, lessons []schemas.LessonLearned) error {
	if lessons == nil {
		lessons = []schemas.LessonLearned{}
	}
	return b.writeList(lessonsFile, lessons)
}

// readList decodes name into v. A missing file leaves v untouched.
func (b *FileBackend) readList(name string, v interface{}) error {
	data, err := afero.ReadFile(b.fs, filepath.Join(b.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return nil
}

// writeList writes v to a temp file next to name and renames it into place.
// A crash mid-write leaves the previous list intact.
func (b *FileBackend) writeList(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	if err := b.fs.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create memory directory: %w", err)
	}

	tmp, err := afero.TempFile(b.fs, b.dir, "."+name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = b.fs.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = b.fs.Remove(tmpName)
		return fmt.Errorf("failed to close temp file for %s: %w", name, err)
	}
	if err := b.fs.Rename(tmpName, filepath.Join(b.dir, name)); err != nil {
		_ = b.fs.Remove(tmpName)
		return fmt.Errorf("failed to move %s into place: %w", name, err)
	}
	return nil
}
