package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageJobStart     Stage = "JOB_START"
	StagePageFetched  Stage = "PAGE_FETCHED"
	StageLinkChecked  Stage = "LINK_CHECKED"
	StageJobDone      Stage = "JOB_DONE"
	StageJobError     Stage = "JOB_ERROR"
	StageJobCancelled Stage = "JOB_CANCELLED"
)

// Outcome labels a checked link.
type Outcome string

// Link outcomes.
const (
	OutcomeOK      Outcome = "ok"
	OutcomeBroken  Outcome = "broken"
	OutcomeTimeout Outcome = "timeout"
	OutcomeError   Outcome = "error"
)

// Event captures a single unit of analysis progress.
type Event struct {
	// JobID is the analysis id.
	JobID string
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// Site is the link host, used as a metric label.
	Site string
	URL  string
	// Classification is internal or external for link events.
	Classification string
	Outcome        Outcome
	StatusCode     int
	// Dur is the link latency, or the job runtime for terminal stages.
	Dur  time.Duration
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == "" {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart, StagePageFetched, StageJobDone, StageJobError, StageJobCancelled:
	case StageLinkChecked:
		if e.URL == "" {
			return errors.New("link event requires url")
		}
		if e.Outcome == "" {
			return errors.New("link event requires outcome")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// Terminal reports whether the event closes a job.
func (e Event) Terminal() bool {
	return e.Stage == StageJobDone || e.Stage == StageJobError || e.Stage == StageJobCancelled
}
