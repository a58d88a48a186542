package batch

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/MrWong99/speechscore/internal/apperr"
)

// Output sheet names.
const (
	SheetSummary  = "summary"
	SheetSegments = "segments"
)

var (
	summaryHeader = []any{
		"line", "audio_path", "status", "audio_similarity", "original_speed", "tts_speed",
		"average_accuracy", "pronunciation_accuracy", "tts_file_path", "duration_s", "error_kind", "error",
	}
	segmentsHeader = []any{"line", "audio_path", "time_segment", "accuracy", "wpm"}
)

// WriteResults saves results as a workbook with a summary sheet (one row per
// input) and a segments sheet (one row per scored window).
func WriteResults(path string, results []Result) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("batch: rename sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetSegments); err != nil {
		return fmt.Errorf("batch: create sheet: %w", err)
	}
	if err := f.SetSheetRow(SheetSummary, "A1", &summaryHeader); err != nil {
		return fmt.Errorf("batch: write header: %w", err)
	}
	if err := f.SetSheetRow(SheetSegments, "A1", &segmentsHeader); err != nil {
		return fmt.Errorf("batch: write header: %w", err)
	}

	segLine := 2
	for i, res := range results {
		row := []any{res.Row.Line, res.Row.AudioPath}
		switch {
		case res.Err != nil:
			row = append(row, "failed", nil, nil, nil, nil, nil, nil,
				res.Duration.Seconds(), apperr.KindOf(res.Err).String(), res.Err.Error())
		case res.Report != nil:
			rep := res.Report
			row = append(row, "done", rep.AudioSimilarity, rep.OriginalSpeed, rep.TTSSpeed,
				rep.AverageAccuracy, rep.PronunciationAccuracy, rep.TTSFilePath,
				res.Duration.Seconds(), "", "")
		default:
			row = append(row, "skipped")
		}
		if err := setRow(f, SheetSummary, i+2, row); err != nil {
			return err
		}

		if res.Report == nil {
			continue
		}
		for j, acc := range res.Report.PronunciationScores {
			seg := []any{res.Row.Line, res.Row.AudioPath, acc.TimeSegment, acc.Accuracy, nil}
			if j < len(res.Report.WPMScores) {
				seg[4] = res.Report.WPMScores[j].WPM
			}
			if err := setRow(f, SheetSegments, segLine, seg); err != nil {
				return err
			}
			segLine++
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("batch: save %s: %w", path, err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, line int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, line)
	if err != nil {
		return fmt.Errorf("batch: cell name: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("batch: write %s row %d: %w", sheet, line, err)
	}
	return nil
}
