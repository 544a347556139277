package schemas

import "time"

// Record is the structured output of one successfully extracted task.
// Field values are strings, float64s, or ordered slices of either,
// depending on the schema field's transform and multiplicity.
type Record struct {
	ID          string         `json:"id"`
	TaskID      string         `json:"task_id"`
	ExtractedAt time.Time      `json:"extracted_at"`
	Fields      map[string]any `json:"fields"`

	// Downloads carries the URLs of fields marked for download, in field
	// order. They are fetched by the image sink, not serialized with the
	// record itself.
	Downloads []string `json:"-"`
}

// Outcome is the terminal state of a task within one pipeline run.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Event is the single terminal report the pipeline emits per task.
// Record is non-nil exactly when Outcome is OutcomeSucceeded; Err is
// non-nil exactly when Outcome is OutcomeFailed.
type Event struct {
	TaskID   string
	Outcome  Outcome
	Record   *Record
	Err      error
	Attempts int
}
