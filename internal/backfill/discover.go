package backfill

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var audioExtensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".m4a":  true,
	".flac": true,
	".ogg":  true,
	".webm": true,
}

// IsAudioFile reports whether name has a supported audio extension.
func IsAudioFile(name string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(name))]
}

type audioFile struct {
	path     string
	modified time.Time
}

// discover walks dir for audio files modified inside [since, until]. Zero
// bounds are open. Files are returned oldest first.
func discover(dir string, since, until time.Time) ([]audioFile, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("backfill dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("backfill dir: %s is not a directory", dir)
	}

	var files []audioFile
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || !IsAudioFile(d.Name()) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		mod := fi.ModTime()
		if !since.IsZero() && mod.Before(since) {
			return nil
		}
		if !until.IsZero() && mod.After(until) {
			return nil
		}
		files = append(files, audioFile{path: path, modified: mod})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].modified.Equal(files[j].modified) {
			return files[i].path < files[j].path
		}
		return files[i].modified.Before(files[j].modified)
	})
	return files, nil
}

// Fingerprint returns the hex SHA-256 of the file content.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
