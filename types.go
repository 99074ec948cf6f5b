package main

// CardOutcome represents the outcome of reconciling a single card
type CardOutcome string

const (
	OutcomeCreated CardOutcome = "created"
	OutcomeUpdated CardOutcome = "updated"
	OutcomeSkipped CardOutcome = "skipped"
)

// SyncResult summarizes what happened during a synchronization run
type SyncResult struct {
	Created int
	Updated int
	Skipped int
	Linked  int
}

func (r *SyncResult) record(outcome CardOutcome) {
	switch outcome {
	case OutcomeCreated:
		r.Created++
	case OutcomeUpdated:
		r.Updated++
	case OutcomeSkipped:
		r.Skipped++
	}
}
