package model

// OutcomeKind classifies the result of one pipeline stage.
type OutcomeKind int

const (
	// OutcomeSuccess means the stage produced data (possibly empty delta).
	OutcomeSuccess OutcomeKind = iota
	// OutcomeSoftFailure means the stage produced no usable data but the
	// pipeline may continue (e.g. "email not found").
	OutcomeSoftFailure
	// OutcomeHardFailure halts the pipeline for this run.
	OutcomeHardFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeSoftFailure:
		return "soft_failure"
	case OutcomeHardFailure:
		return "hard_failure"
	default:
		return "unknown"
	}
}

// StageOutcome is the tagged union a stage returns: exactly one of a
// success delta or a failure reason is meaningful, keyed by Kind.
type StageOutcome struct {
	Kind   OutcomeKind
	Delta  Enrichment
	Reason string
}

// StageSuccess returns a successful outcome carrying an enrichment delta.
func StageSuccess(delta Enrichment) StageOutcome {
	return StageOutcome{Kind: OutcomeSuccess, Delta: delta}
}

// StageSoftFailure returns a continue-without-data outcome.
func StageSoftFailure(reason string) StageOutcome {
	return StageOutcome{Kind: OutcomeSoftFailure, Reason: reason}
}

// StageHardFailure returns an unrecoverable outcome for this run.
func StageHardFailure(reason string) StageOutcome {
	return StageOutcome{Kind: OutcomeHardFailure, Reason: reason}
}
