package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PaulBabatuyi/PhotoShare/internal/models"
)

// List returns a record for every regular file directly under the root,
// most recently modified first. Nothing is cached: each call re-reads the
// directory and re-extracts capture dates.
func (fs *FilesystemStorage) List() ([]models.FileRecord, error) {
	entries, err := os.ReadDir(fs.basePath)
	if err != nil {
		return nil, fmt.Errorf("read storage root: %w", err)
	}

	files := make([]models.FileRecord, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		// temp files from in-flight uploads are hidden
		if strings.HasPrefix(name, ".") || !entry.Type().IsRegular() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue // removed since ReadDir
			}
			return nil, fmt.Errorf("stat %s: %w", name, err)
		}

		rec := models.FileRecord{
			Filename:   name,
			SizeBytes:  info.Size(),
			UploadedAt: info.ModTime(),
		}
		if fs.extractor != nil {
			rec.TakenDate = fs.extractor.TakenDate(filepath.Join(fs.basePath, name))
		}
		files = append(files, rec)
	}

	sort.Slice(files, func(i, j int) bool {
		if !files[i].UploadedAt.Equal(files[j].UploadedAt) {
			return files[i].UploadedAt.After(files[j].UploadedAt)
		}
		return files[i].Filename < files[j].Filename
	})
	return files, nil
}

// Usage reports the number of stored files and their total size without
// touching file contents.
func (fs *FilesystemStorage) Usage() (count int, bytes int64, err error) {
	entries, err := os.ReadDir(fs.basePath)
	if err != nil {
		return 0, 0, fmt.Errorf("read storage root: %w", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") || !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		count++
		bytes += info.Size()
	}
	return count, bytes, nil
}
