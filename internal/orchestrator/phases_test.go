package orchestrator

import (
	"errors"
	"slices"
	"testing"
)

func TestParseTarget(t *testing.T) {
	tests := []struct {
		in   string
		want Target
	}{
		{"build", TargetBuild},
		{" Docker ", TargetDocker},
		{"validate", TargetAll},
		{"all", TargetAll},
		{"monitoring", TargetMonitoring},
	}
	for _, tt := range tests {
		got, err := ParseTarget(tt.in)
		if err != nil {
			t.Errorf("ParseTarget(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTarget(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}

	if _, err := ParseTarget("deploy"); !errors.Is(err, ErrUnknownTarget) {
		t.Errorf("expected ErrUnknownTarget, got %v", err)
	}
}

func TestTargetPhases(t *testing.T) {
	if got := TargetAll.Phases(); !slices.Equal(got, Phases) {
		t.Errorf("all should select every phase, got %v", got)
	}
	want := []string{PhaseDependencies, PhaseProjectReferences, PhaseCompilation}
	if got := TargetBuild.Phases(); !slices.Equal(got, want) {
		t.Errorf("build: expected %v, got %v", want, got)
	}

	// The returned slice is a copy.
	p := TargetBuild.Phases()
	p[0] = "mutated"
	if TargetBuild.Phases()[0] != PhaseDependencies {
		t.Error("Phases returned shared storage")
	}
}

func TestSelected(t *testing.T) {
	got := selected([]Target{TargetDocker, TargetTest})
	if len(got) != 2 || !got[PhaseDocker] || !got[PhaseTesting] {
		t.Errorf("unexpected selection %v", got)
	}
}

func TestResolvable(t *testing.T) {
	for _, name := range Phases {
		want := name != PhaseTesting && name != PhaseMonitoring
		if got := resolvable(name); got != want {
			t.Errorf("resolvable(%s) = %v, want %v", name, got, want)
		}
	}
}

func TestEventEmitter_DropsWhenFull(t *testing.T) {
	e := NewEventEmitter(1)
	e.Emit(Event{Type: EventRunStarted})
	e.Emit(Event{Type: EventRunDone})

	if e.DroppedCount() != 1 {
		t.Errorf("expected 1 dropped event, got %d", e.DroppedCount())
	}
	ev := <-e.Events()
	if ev.Type != EventRunStarted || ev.Timestamp.IsZero() {
		t.Errorf("unexpected event %+v", ev)
	}

	e.Close()
	e.Close()
}
