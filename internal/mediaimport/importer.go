// Package mediaimport converts uploaded media into the mono 16-bit WAV files
// the scoring pipeline works on, by running an external transcoder.
package mediaimport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mattn/go-shellwords"

	"github.com/MrWong99/speechscore/internal/apperr"
	"github.com/MrWong99/speechscore/internal/observe"
)

// DefaultCommand is the transcoder invocation. {input} and {output} are
// replaced with the source and destination paths.
const DefaultCommand = "ffmpeg -hide_banner -loglevel error -y -i {input} -vn -ac 1 -ar 16000 -c:a pcm_s16le {output}"

// Extensions lists the accepted upload formats.
var Extensions = []string{
	"webm", "mov", "avi", "mkv", "flac", "m4a", "mp3",
	"mp4", "mpeg", "mpga", "oga", "ogg", "wav",
}

// ErrUnsupportedFormat is returned for extensions outside [Extensions].
var ErrUnsupportedFormat = errors.New("mediaimport: unsupported file format")

// Ext returns the lower-cased extension of name without the dot, or an
// importing error when it is not accepted.
func Ext(name string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if !slices.Contains(Extensions, ext) {
		return "", apperr.Importing("validate", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext))
	}
	return ext, nil
}

// Importer runs the transcoder.
type Importer struct {
	args []string
}

// New parses command. An empty command selects [DefaultCommand].
func New(command string) (*Importer, error) {
	if strings.TrimSpace(command) == "" {
		command = DefaultCommand
	}
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("mediaimport: parse command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("mediaimport: command empty")
	}
	if !slices.Contains(args, "{input}") || !slices.Contains(args, "{output}") {
		return nil, errors.New("mediaimport: command must contain {input} and {output}")
	}
	return &Importer{args: args}, nil
}

// Binary returns the transcoder executable.
func (im *Importer) Binary() string { return im.args[0] }

// Check reports whether the transcoder binary can be found.
func (im *Importer) Check(_ context.Context) error {
	if _, err := exec.LookPath(im.args[0]); err != nil {
		return fmt.Errorf("mediaimport: %w", err)
	}
	return nil
}

// Convert transcodes src into dst. Failures are importing errors carrying
// the transcoder's stderr.
func (im *Importer) Convert(ctx context.Context, src, dst string) (err error) {
	ctx, span := observe.StartSpan(ctx, "mediaimport.convert")
	defer observe.EndSpan(span, &err)

	args := make([]string, len(im.args)-1)
	for i, a := range im.args[1:] {
		switch a {
		case "{input}":
			args[i] = src
		case "{output}":
			args[i] = dst
		default:
			args[i] = a
		}
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, im.args[0], args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		os.Remove(dst)
		return apperr.Importing("convert", fmt.Errorf("mediaimport: %s: %w", filepath.Base(src), err))
	}
	if fi, err := os.Stat(dst); err != nil || fi.Size() == 0 {
		return apperr.Importing("convert", fmt.Errorf("mediaimport: %s: transcoder produced no output", filepath.Base(src)))
	}
	observe.Logger(ctx).Debug("media converted", "src", filepath.Base(src), "dst", filepath.Base(dst))
	return nil
}
