package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"codeberg.org/snonux/yomibackfill/internal/yomitan"
)

// ErrInvalidName is returned for file names that would escape the folder
var ErrInvalidName = errors.New("invalid media file name")

// Writer stores media files in one folder
type Writer struct {
	dir string
}

// NewWriter creates a writer for the media folder
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Dir returns the media folder
func (w *Writer) Dir() string {
	return w.dir
}

// WriteReferenced writes every file whose name occurs in value. It returns
// the number of files newly written; files that fail are reported in the
// joined error while the remaining files are still attempted.
func (w *Writer) WriteReferenced(value string, files []yomitan.MediaFile) (int, error) {
	written := 0
	var errs []error

	for _, f := range files {
		if f.AnkiFilename == "" || !strings.Contains(value, f.AnkiFilename) {
			continue
		}
		ok, err := w.Write(f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			written++
		}
	}

	return written, errors.Join(errs...)
}

// Write decodes and stores a single file. Existing files are left alone
// and reported as not written.
func (w *Writer) Write(f yomitan.MediaFile) (bool, error) {
	name := f.AnkiFilename
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return false, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	target := filepath.Join(w.dir, name)
	if _, err := os.Stat(target); err == nil {
		return false, nil
	}

	data, err := base64.StdEncoding.DecodeString(f.Content)
	if err != nil {
		return false, fmt.Errorf("failed to decode media file %s: %w", name, err)
	}

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return false, fmt.Errorf("failed to create media folder: %w", err)
	}

	// Renamed into place: a truncated file would count as existing later
	tmp, err := os.CreateTemp(w.dir, ".yomibackfill-*")
	if err != nil {
		return false, fmt.Errorf("failed to write media file %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return false, fmt.Errorf("failed to write media file %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("failed to write media file %s: %w", name, err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return false, fmt.Errorf("failed to write media file %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return false, fmt.Errorf("failed to write media file %s: %w", name, err)
	}

	return true, nil
}

// Exists reports whether a file is already in the media folder
func (w *Writer) Exists(name string) bool {
	_, err := os.Stat(filepath.Join(w.dir, name))
	return err == nil
}

// Path returns the full path of a media file name
func (w *Writer) Path(name string) string {
	return filepath.Join(w.dir, name)
}
