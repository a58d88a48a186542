package scoring

import "github.com/MrWong99/speechscore/internal/segment"

// Report is the outcome of one scoring run.
type Report struct {
	// AudioSimilarity is the MFCC cross-cosine mean between the user's
	// recording and the synthetic reading. Not bounded below by 0.
	AudioSimilarity float64 `json:"audio_similarity"`

	// OriginalSpeed is the user's speaking rate in words per minute.
	OriginalSpeed float64 `json:"original_speed"`

	// TTSSpeed is the synthetic reading's rate: speed ratio × average WPM.
	TTSSpeed float64 `json:"tts_speed"`

	// AverageAccuracy is the mean accuracy over the scored segments.
	AverageAccuracy float64 `json:"average_accuracy"`

	// PronunciationAccuracy is the whole-transcript match against the
	// reference.
	PronunciationAccuracy float64 `json:"pronunciation_accuracy"`

	// TTSFilePath is the retained synthetic reading.
	TTSFilePath string `json:"tts_file_path"`

	PronunciationScores []segment.AccuracyScore `json:"pronunciation_scores"`
	WPMScores           []segment.WPMScore      `json:"wpm_scores"`
}
