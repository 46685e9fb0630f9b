package domain

import (
	"fmt"
	"strings"
	"time"
)

// JobState represents the processing state of a job.
type JobState string

const (
	StatePending    JobState = "pending"
	StateProcessing JobState = "processing"
	StateSucceeded  JobState = "succeeded"
	StateFailed     JobState = "failed"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s JobState) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// CanTransitionTo enforces the job state machine edges.
func (s JobState) CanTransitionTo(next JobState) bool {
	switch s {
	case StatePending:
		return next == StateProcessing
	case StateProcessing:
		return next == StateSucceeded || next == StateFailed
	default:
		return false
	}
}

// Predecessors returns the states from which next may be entered.
func Predecessors(next JobState) []JobState {
	var out []JobState
	for _, s := range []JobState{StatePending, StateProcessing, StateSucceeded, StateFailed} {
		if s.CanTransitionTo(next) {
			out = append(out, s)
		}
	}
	return out
}

// Format is the requested output container.
type Format string

const (
	FormatAudio Format = "audio"
	FormatVideo Format = "video"
)

// ParseFormat validates a submitted format. The container names mp3 and mp4
// are accepted as aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "audio", "mp3":
		return FormatAudio, nil
	case "video", "mp4":
		return FormatVideo, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidFormat, s)
}

// Job represents one submitted conversion request.
type Job struct {
	ID        string
	SourceURL string
	Format    Format
	State     JobState
	Artifact  string
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Apply moves the job to next. The payload is the artifact filename for
// StateSucceeded and the error detail for StateFailed.
func (j *Job) Apply(next JobState, payload string, now time.Time) error {
	if err := CheckTransition(j.State, next, payload); err != nil {
		return err
	}
	j.State = next
	switch next {
	case StateSucceeded:
		j.Artifact = payload
	case StateFailed:
		j.Error = payload
	}
	j.UpdatedAt = now
	return nil
}

// CheckTransition validates a transition without applying it.
func CheckTransition(from, to JobState, payload string) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if to.IsTerminal() && payload == "" {
		return fmt.Errorf("%w: %s requires a payload", ErrInvalidTransition, to)
	}
	return nil
}

// Expired reports whether the job is older than maxAge at now.
func (j *Job) Expired(maxAge time.Duration, now time.Time) bool {
	return now.Sub(j.CreatedAt) > maxAge
}
