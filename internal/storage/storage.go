package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// maxNameBytes is NAME_MAX on the filesystems we run on.
const maxNameBytes = 255

var (
	ErrNotFound    = errors.New("file not found")
	ErrInvalidName = errors.New("invalid file name")
)

// DateExtractor supplies the capture date for a stored file.
type DateExtractor interface {
	TakenDate(path string) *string
}

// FilesystemStorage stores files flat under a single root directory
type FilesystemStorage struct {
	basePath  string // e.g., "./data"
	extractor DateExtractor
}

// NewFilesystemStorage creates basePath (and parents) when missing.
func NewFilesystemStorage(basePath string, extractor DateExtractor) (*FilesystemStorage, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root %s: %w", basePath, err)
	}
	return &FilesystemStorage{basePath: basePath, extractor: extractor}, nil
}

// SanitizeName reduces an uploaded name to a bare file name that stays
// inside the storage root. Directory parts are dropped; hidden names and
// names that reduce to nothing are rejected.
func SanitizeName(name string) (string, error) {
	name = strings.ReplaceAll(name, `\`, "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: contains NUL", ErrInvalidName)
	}
	if len(name) > maxNameBytes {
		return "", fmt.Errorf("%w: longer than %d bytes", ErrInvalidName, maxNameBytes)
	}
	return name, nil
}

// Path returns the on-disk location of a stored name.
func (fs *FilesystemStorage) Path(name string) (string, error) {
	clean, err := SanitizeName(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(fs.basePath, clean), nil
}

// Save writes content under name, or under the first free stem_N.ext
// variant when name is taken, and returns the name actually used.
//
// Content lands in a hidden temp file first and is published with a hard
// link, which fails instead of replacing an existing file. A reader never
// sees a partially written file under its final name.
func (fs *FilesystemStorage) Save(name string, content []byte) (string, error) {
	clean, err := SanitizeName(name)
	if err != nil {
		return "", err
	}

	tmpPath, err := fs.writeTemp(content)
	if err != nil {
		return "", err
	}
	defer os.Remove(tmpPath)

	stem, ext := splitName(clean)
	for i := 0; ; i++ {
		candidate := clean
		if i > 0 {
			candidate, err = suffixed(stem, "_"+strconv.Itoa(i)+ext)
			if err != nil {
				return "", err
			}
		}
		target := filepath.Join(fs.basePath, candidate)

		// Skip names already taken; the link below is what actually decides.
		if _, err := os.Lstat(target); err == nil {
			continue
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat %s: %w", candidate, err)
		}

		err := os.Link(tmpPath, target)
		if err == nil {
			return candidate, nil
		}
		if errors.Is(err, os.ErrExist) {
			// lost a race for this name, try the next suffix
			continue
		}
		return "", fmt.Errorf("publish %s: %w", candidate, err)
	}
}

func (fs *FilesystemStorage) writeTemp(content []byte) (string, error) {
	tmpPath := filepath.Join(fs.basePath, ".upload-"+uuid.NewString()+".tmp")

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return tmpPath, nil
}

// Open returns the stored file for reading. The caller closes it.
// Only exact stored names resolve; anything SanitizeName would rewrite is
// reported as not found.
func (fs *FilesystemStorage) Open(name string) (*os.File, os.FileInfo, error) {
	clean, err := SanitizeName(name)
	if err != nil || clean != name {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	path := filepath.Join(fs.basePath, clean)

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, nil, fmt.Errorf("open %s: %w", name, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat %s: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return f, info, nil
}

// suffixed appends suffix to stem, cutting the stem back to a rune
// boundary when the result would exceed maxNameBytes.
func suffixed(stem, suffix string) (string, error) {
	room := maxNameBytes - len(suffix)
	if room < 1 {
		return "", fmt.Errorf("%w: extension too long for a suffix", ErrInvalidName)
	}
	if len(stem) > room {
		stem = stem[:room]
		for len(stem) > 0 && !utf8.ValidString(stem) {
			stem = stem[:len(stem)-1]
		}
	}
	return stem + suffix, nil
}

// splitName splits at the last dot: "photo.jpg" -> ("photo", ".jpg"),
// "archive.tar.gz" -> ("archive.tar", ".gz"), "README" -> ("README", "").
func splitName(name string) (stem, ext string) {
	ext = filepath.Ext(name)
	return strings.TrimSuffix(name, ext), ext
}
