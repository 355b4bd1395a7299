package domain

// Outcome is the terminal state of a record. Every fetched record must
// reach exactly one outcome before its batch commits.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	// OutcomePredicted means the record passed the full pipeline and its
	// enrichment was published downstream.
	OutcomePredicted
	// OutcomeFiltered means the record's channel is outside the watch-set;
	// no external call was made.
	OutcomeFiltered
	// OutcomeDuplicate means the record was already processed in a previous
	// incarnation (at-least-once redelivery) and was not re-published.
	OutcomeDuplicate
	// OutcomeFailed means a stage failed permanently after retry exhaustion
	// or on invalid input.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomePredicted:
		return "predicted"
	case OutcomeFiltered:
		return "filtered"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the outcome accounts for the record.
func (o Outcome) Terminal() bool {
	return o != OutcomeUnknown
}

// Stage names a pipeline step for failure attribution.
type Stage string

const (
	StageDecode    Stage = "decode"
	StageTranslate Stage = "translate"
	StagePredict   Stage = "predict"
	StagePublish   Stage = "publish"
)

// Result reports the terminal outcome of one record.
type Result struct {
	Record   Record
	Outcome  Outcome
	Stage    Stage
	Err      error
	Attempts int
}
