package scoring

// State is a step of the scoring pipeline.
type State int

const (
	StateSTTPending State = iota
	StateReferenceResolved
	StateSpeedComputed
	StateSynthPending
	StateLengthSynced
	StateSimilarityComputed
	StateSegmentsAnalyzed
	StateScriptMatchComputed
	StateDone
	StateFailed
)

// String returns the upper-case state name used in logs.
func (s State) String() string {
	switch s {
	case StateSTTPending:
		return "STT_PENDING"
	case StateReferenceResolved:
		return "REFERENCE_RESOLVED"
	case StateSpeedComputed:
		return "SPEED_COMPUTED"
	case StateSynthPending:
		return "SYNTH_PENDING"
	case StateLengthSynced:
		return "LENGTH_SYNCED"
	case StateSimilarityComputed:
		return "SIMILARITY_COMPUTED"
	case StateSegmentsAnalyzed:
		return "SEGMENTS_ANALYZED"
	case StateScriptMatchComputed:
		return "SCRIPT_MATCH_COMPUTED"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Source records where the reference text came from. It is logged, never
// returned to callers.
type Source int

const (
	// SourceScript is a caller-supplied script, used verbatim.
	SourceScript Source = iota
	// SourceLLM is the grammar-corrected transcript.
	SourceLLM
	// SourceTranscript is the raw transcript, used when correction failed.
	SourceTranscript
)

// String returns the source name.
func (s Source) String() string {
	switch s {
	case SourceScript:
		return "Script"
	case SourceLLM:
		return "LLM"
	case SourceTranscript:
		return "Transcript"
	default:
		return "Unknown"
	}
}

// Reference is the text a presentation is scored against: either
// [Provided] by the caller or [Absent].
type Reference struct {
	text     string
	provided bool
}

// Provided returns a caller-supplied reference. Blank text is treated as
// [Absent].
func Provided(text string) Reference {
	if isBlank(text) {
		return Absent()
	}
	return Reference{text: text, provided: true}
}

// Absent returns a reference that must be inferred from the recording.
func Absent() Reference {
	return Reference{}
}

// IsProvided reports whether the caller supplied the reference.
func (r Reference) IsProvided() bool { return r.provided }

// Text returns the provided text, or "" for [Absent].
func (r Reference) Text() string { return r.text }
