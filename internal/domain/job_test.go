package domain

import (
	"errors"
	"math/rand"
	"testing"
	"time"
)

func TestJobState_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from JobState
		to   JobState
		want bool
	}{
		{StatePending, StateProcessing, true},
		{StatePending, StateSucceeded, false},
		{StatePending, StateFailed, false},
		{StatePending, StatePending, false},
		{StateProcessing, StateSucceeded, true},
		{StateProcessing, StateFailed, true},
		{StateProcessing, StatePending, false},
		{StateProcessing, StateProcessing, false},
		{StateSucceeded, StateFailed, false},
		{StateSucceeded, StateProcessing, false},
		{StateFailed, StateSucceeded, false},
		{StateFailed, StatePending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPredecessors(t *testing.T) {
	if got := Predecessors(StateProcessing); len(got) != 1 || got[0] != StatePending {
		t.Errorf("Predecessors(processing) = %v, want [pending]", got)
	}
	if got := Predecessors(StateFailed); len(got) != 1 || got[0] != StateProcessing {
		t.Errorf("Predecessors(failed) = %v, want [processing]", got)
	}
	if got := Predecessors(StatePending); len(got) != 0 {
		t.Errorf("Predecessors(pending) = %v, want none", got)
	}
}

func TestJob_Apply_RandomSequences(t *testing.T) {
	states := []JobState{StatePending, StateProcessing, StateSucceeded, StateFailed}
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		job := Job{ID: "j", State: StatePending}
		for step := 0; step < 6; step++ {
			from := job.State
			next := states[rng.Intn(len(states))]
			payload := ""
			if rng.Intn(4) > 0 {
				payload = "x"
			}

			err := job.Apply(next, payload, time.Now())
			legal := from.CanTransitionTo(next) && (!next.IsTerminal() || payload != "")

			if legal && err != nil {
				t.Fatalf("Apply(%s -> %s) error = %v, want nil", from, next, err)
			}
			if !legal {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("Apply(%s -> %s) error = %v, want ErrInvalidTransition", from, next, err)
				}
				if job.State != from {
					t.Fatalf("state changed on rejected transition: %s -> %s", from, job.State)
				}
			}
			if from.IsTerminal() && job.State != from {
				t.Fatalf("terminal state %s regressed to %s", from, job.State)
			}
		}
	}
}

func TestJob_Apply_Payload(t *testing.T) {
	job := Job{State: StatePending}
	now := time.Now()

	if err := job.Apply(StateProcessing, "", now); err != nil {
		t.Fatalf("Apply(processing) error = %v", err)
	}
	if err := job.Apply(StateSucceeded, "abc_song.mp3", now); err != nil {
		t.Fatalf("Apply(succeeded) error = %v", err)
	}
	if job.Artifact != "abc_song.mp3" {
		t.Errorf("Artifact = %q, want %q", job.Artifact, "abc_song.mp3")
	}
	if job.Error != "" {
		t.Errorf("Error = %q, want empty", job.Error)
	}
	if !job.UpdatedAt.Equal(now) {
		t.Errorf("UpdatedAt = %v, want %v", job.UpdatedAt, now)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"audio", FormatAudio, false},
		{"video", FormatVideo, false},
		{"mp3", FormatAudio, false},
		{"MP4", FormatVideo, false},
		{" audio ", FormatAudio, false},
		{"flac", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidFormat) {
				t.Errorf("ParseFormat() error = %v, want ErrInvalidFormat", err)
			}
			if got != tt.want {
				t.Errorf("ParseFormat() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestJob_Expired(t *testing.T) {
	now := time.Now()
	job := Job{CreatedAt: now.Add(-2 * time.Hour)}

	if !job.Expired(time.Hour, now) {
		t.Error("Expired(1h) = false, want true")
	}
	if job.Expired(3*time.Hour, now) {
		t.Error("Expired(3h) = true, want false")
	}
}

func TestKindOf(t *testing.T) {
	if KindOf(FormatAudio) != KindAudio {
		t.Errorf("KindOf(audio) = %q", KindOf(FormatAudio))
	}
	if KindOf(FormatVideo) != KindVideo {
		t.Errorf("KindOf(video) = %q", KindOf(FormatVideo))
	}
}
