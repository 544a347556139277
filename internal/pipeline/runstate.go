package pipeline

import "sync/atomic"

// RunState carries the process-wide counters for one pipeline run. Counters
// are atomic because lanes complete tasks concurrently. A new run starts
// from a fresh RunState; counters are never reset in place.
type RunState struct {
	attempted atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	retried   atomic.Int64
}

// Summary is a point-in-time snapshot of the run counters.
type Summary struct {
	Attempted int64 `json:"attempted"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Retried   int64 `json:"retried"`
}

func (s *RunState) taskAttempted() { s.attempted.Add(1) }
func (s *RunState) taskSucceeded() { s.succeeded.Add(1) }
func (s *RunState) taskFailed()    { s.failed.Add(1) }
func (s *RunState) taskRetried()   { s.retried.Add(1) }

// Snapshot reads the current counter values.
func (s *RunState) Snapshot() Summary {
	return Summary{
		Attempted: s.attempted.Load(),
		Succeeded: s.succeeded.Load(),
		Failed:    s.failed.Load(),
		Retried:   s.retried.Load(),
	}
}
