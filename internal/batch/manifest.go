// Package batch scores many recordings listed in a spreadsheet and writes the
// results to another spreadsheet.
//
// The manifest's first sheet has a header row naming the columns audio_path
// (required), script and script_path (both optional). Relative paths are
// resolved against the manifest's directory.
package batch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/MrWong99/speechscore/internal/script"
)

// Manifest column names.
const (
	ColAudioPath  = "audio_path"
	ColScript     = "script"
	ColScriptPath = "script_path"
)

// Row is one manifest entry.
type Row struct {
	// Line is the 1-based spreadsheet row.
	Line       int
	AudioPath  string
	Script     string
	ScriptPath string
}

// ReadManifest parses the manifest at path. Rows without an audio path are
// skipped.
func ReadManifest(path string) ([]Row, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("batch: open manifest: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("batch: manifest has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("batch: read rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, errors.New("batch: manifest is empty")
	}

	cols := map[string]int{}
	for i, h := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	audioIdx, ok := cols[ColAudioPath]
	if !ok {
		return nil, fmt.Errorf("batch: manifest has no %q column", ColAudioPath)
	}
	cell := func(r []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(r) {
			return ""
		}
		return strings.TrimSpace(r[i])
	}

	base := filepath.Dir(path)
	var out []Row
	for i, r := range rows[1:] {
		if audioIdx >= len(r) || strings.TrimSpace(r[audioIdx]) == "" {
			continue
		}
		row := Row{
			Line:       i + 2,
			AudioPath:  resolve(base, cell(r, ColAudioPath)),
			Script:     cell(r, ColScript),
			ScriptPath: cell(r, ColScriptPath),
		}
		if row.ScriptPath != "" {
			row.ScriptPath = resolve(base, row.ScriptPath)
		}
		out = append(out, row)
	}
	return out, nil
}

func resolve(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// reference returns the row's script text: the inline script if present,
// otherwise the cleaned contents of ScriptPath, otherwise "".
func (r Row) reference() (string, error) {
	if r.Script != "" {
		return r.Script, nil
	}
	if r.ScriptPath == "" {
		return "", nil
	}
	f, err := os.Open(r.ScriptPath)
	if err != nil {
		return "", fmt.Errorf("batch: open script: %w", err)
	}
	defer f.Close()
	raw, err := script.Extract(r.ScriptPath, f)
	if err != nil {
		return "", err
	}
	return script.Clean(raw), nil
}
