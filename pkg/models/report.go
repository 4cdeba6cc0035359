package models

// RequestState tracks a FetchRequest through the pipeline.
type RequestState int

const (
	StateQueued RequestState = iota
	StateFetching
	StateExtracting
	StateEmitted
	StateDropped
	StateFailed
	StateFailedTerminal
)

func (s RequestState) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateFetching:
		return "fetching"
	case StateExtracting:
		return "extracting"
	case StateEmitted:
		return "emitted"
	case StateDropped:
		return "dropped"
	case StateFailed:
		return "failed"
	case StateFailedTerminal:
		return "failed-terminal"
	default:
		return "unknown"
	}
}

// RunReport is the end-of-run summary. Terminal failures are recorded here,
// never silently dropped.
type RunReport struct {
	Fetched                 int64            `json:"fetched"`
	Extracted               int64            `json:"extracted"`
	Deduped                 int64            `json:"deduped"`
	DroppedExtractionErrors int64            `json:"droppedExtractionErrors"`
	FailedTerminal          int64            `json:"failedTerminal"`
	Emitted                 int64            `json:"emitted"`
	KeywordFiltered         int64            `json:"keywordFiltered"`
	RobotsDenied            int64            `json:"robotsDenied"`
	SentimentPositive       int64            `json:"sentimentPositive,omitempty"`
	SentimentNegative       int64            `json:"sentimentNegative,omitempty"`
	SentimentNeutral        int64            `json:"sentimentNeutral,omitempty"`
	PerHostRequests         map[string]int64 `json:"perHostRequests,omitempty"`
}

// Add folds another report's counters into this one. Per-host counts are
// attached once at the end of a run, not merged here.
func (r *RunReport) Add(d RunReport) {
	r.Fetched += d.Fetched
	r.Extracted += d.Extracted
	r.Deduped += d.Deduped
	r.DroppedExtractionErrors += d.DroppedExtractionErrors
	r.FailedTerminal += d.FailedTerminal
	r.Emitted += d.Emitted
	r.KeywordFiltered += d.KeywordFiltered
	r.RobotsDenied += d.RobotsDenied
	r.SentimentPositive += d.SentimentPositive
	r.SentimentNegative += d.SentimentNegative
	r.SentimentNeutral += d.SentimentNeutral
}
