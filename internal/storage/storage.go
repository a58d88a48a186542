// Package storage owns the on-disk layout of uploaded media, converted audio,
// synthetic speech and reference scripts.
//
// Files are the source of truth: an upload exists as long as one of its
// files does. Every asset is keyed by an ID produced by [NewID]; IDs are
// validated before they touch a path.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no file exists for an ID.
	ErrNotFound = errors.New("storage: not found")

	// ErrInvalidID is returned for IDs that are not lowercase hex.
	ErrInvalidID = errors.New("storage: invalid id")
)

var idPattern = regexp.MustCompile(`^[0-9a-f]{1,64}$`)

// Dirs names the four storage areas.
type Dirs struct {
	Uploads string
	Audio   string
	TTS     string
	Scripts string
}

// DefaultDirs returns the layout rooted at root.
func DefaultDirs(root string) Dirs {
	return Dirs{
		Uploads: filepath.Join(root, "input_video"),
		Audio:   filepath.Join(root, "convert_audio"),
		TTS:     filepath.Join(root, "convert_tts"),
		Scripts: filepath.Join(root, "scripts"),
	}
}

// Layout resolves asset paths inside [Dirs].
type Layout struct {
	dirs Dirs
}

// New creates every directory in dirs and returns a Layout over them.
func New(dirs Dirs) (*Layout, error) {
	var errs []error
	for name, dir := range map[string]string{
		"uploads": dirs.Uploads,
		"audio":   dirs.Audio,
		"tts":     dirs.TTS,
		"scripts": dirs.Scripts,
	} {
		if dir == "" {
			errs = append(errs, fmt.Errorf("storage: %s directory is empty", name))
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			errs = append(errs, fmt.Errorf("storage: create %s directory: %w", name, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &Layout{dirs: dirs}, nil
}

// NewID returns a fresh asset ID: a random UUID as 32 hex characters.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ValidateID rejects IDs that could escape the storage directories.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// Dirs returns the configured directories.
func (l *Layout) Dirs() Dirs { return l.dirs }

// TTSDir is where synthetic readings are written.
func (l *Layout) TTSDir() string { return l.dirs.TTS }

// UploadPath returns the path of the original upload with extension ext
// (without the dot).
func (l *Layout) UploadPath(id, ext string) string {
	return filepath.Join(l.dirs.Uploads, id+"."+strings.ToLower(ext))
}

// AudioPath returns the converted WAV path for id.
func (l *Layout) AudioPath(id string) string {
	return filepath.Join(l.dirs.Audio, id+".wav")
}

// ScriptPath returns the reference script path for id.
func (l *Layout) ScriptPath(id string) string {
	return filepath.Join(l.dirs.Scripts, id+".txt")
}

// SaveUpload streams r to the upload path for id and returns that path.
func (l *Layout) SaveUpload(id, ext string, r io.Reader) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	path := l.UploadPath(id, ext)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("storage: create upload: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("storage: write upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("storage: close upload: %w", err)
	}
	return path, nil
}

// SaveScript writes the reference script for id.
func (l *Layout) SaveScript(id, text string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if err := os.WriteFile(l.ScriptPath(id), []byte(text), 0o644); err != nil {
		return fmt.Errorf("storage: save script: %w", err)
	}
	return nil
}

// LoadScript returns the script stored for id. ok is false when none exists.
func (l *Layout) LoadScript(id string) (text string, ok bool, err error) {
	if err := ValidateID(id); err != nil {
		return "", false, err
	}
	b, err := os.ReadFile(l.ScriptPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("storage: load script: %w", err)
	}
	return string(b), true, nil
}

// FindAudio returns the converted audio path for id or [ErrNotFound].
func (l *Layout) FindAudio(id string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	path := l.AudioPath(id)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: audio for %s", ErrNotFound, id)
		}
		return "", fmt.Errorf("storage: stat audio: %w", err)
	}
	return path, nil
}

// FindUpload returns the original upload for id or [ErrNotFound].
func (l *Layout) FindUpload(id string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	matches, err := filepath.Glob(filepath.Join(l.dirs.Uploads, id+".*"))
	if err != nil {
		return "", fmt.Errorf("storage: find upload: %w", err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: upload %s", ErrNotFound, id)
	}
	return matches[0], nil
}

// Remove deletes every file belonging to id in all four areas, including
// synthetic readings named "<id>_<suffix>.wav". It returns the number of
// files removed, or [ErrNotFound] when there were none.
func (l *Layout) Remove(id string) (int, error) {
	if err := ValidateID(id); err != nil {
		return 0, err
	}
	patterns := []string{
		filepath.Join(l.dirs.Uploads, id+".*"),
		filepath.Join(l.dirs.Audio, id+".*"),
		filepath.Join(l.dirs.Scripts, id+".*"),
		filepath.Join(l.dirs.TTS, id+"_*.wav"),
	}
	var (
		removed int
		errs    []error
	)
	for _, p := range patterns {
		matches, err := filepath.Glob(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, m := range matches {
			if err := os.Remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, fmt.Errorf("storage: remove %s: %w", filepath.Base(m), err))
				continue
			}
			removed++
		}
	}
	if err := errors.Join(errs...); err != nil {
		return removed, err
	}
	if removed == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return removed, nil
}

// CheckWritable creates and removes a probe file in every area.
func (l *Layout) CheckWritable() error {
	var errs []error
	for _, dir := range []string{l.dirs.Uploads, l.dirs.Audio, l.dirs.TTS, l.dirs.Scripts} {
		f, err := os.CreateTemp(dir, ".probe-*")
		if err != nil {
			errs = append(errs, fmt.Errorf("storage: %s not writable: %w", dir, err))
			continue
		}
		f.Close()
		os.Remove(f.Name())
	}
	return errors.Join(errs...)
}
