package workflow

import (
	"context"
	"testing"

	"transphire/internal/health"
	"transphire/internal/stage"
	"transphire/internal/testsupport"
)

func healthWorker(t *testing.T, reachable bool) (*worker, *PipelineContext) {
	t.Helper()
	cfg := newTestConfig(t, testsupport.WithStages(motionStages()...))
	cfg.Paths.HDDDir = ""
	p := &PipelineContext{
		Config: cfg,
		Clock:  newFakeClock(),
		Probe:  health.ProbeFunc(func(string) bool { return reachable }),
		events: make(chan Event, 64),
	}
	rt := &StageRuntime{Name: "Motion", Kind: stage.KindTransform, State: stage.NewState("Motion", 1), Active: true}
	p.Stages = map[string]*StageRuntime{rt.Name: rt}
	return newWorker(p, rt, 1, nil), p
}

func TestLostFlagWithoutPathIsCleared(t *testing.T) {
	w, _ := healthWorker(t, false)
	w.rt.State.SetLost(stage.DepHDD, true)

	if !w.checkConnection(context.Background()) {
		t.Fatal("a dependency with no configured root must not hold the stage")
	}
	if lost := w.rt.State.Lost(); len(lost) != 0 {
		t.Fatalf("expected no lost dependencies, got %v", lost)
	}
}

func TestLostFlagStaysWhileRootUnreachable(t *testing.T) {
	w, p := healthWorker(t, false)
	w.rt.State.SetLost(stage.DepProject, true)

	if w.checkConnection(context.Background()) {
		t.Fatal("unreachable project must hold the stage")
	}
	if lost := w.rt.State.Lost(); len(lost) != 1 || lost[0] != stage.DepProject {
		t.Fatalf("expected project still lost, got %v", lost)
	}
	ev := <-p.events
	if ev.Kind != EventStatus || ev.Status != StatusLostConnection {
		t.Fatalf("expected a lost-connection report, got %+v", ev)
	}
}

func TestLostFlagClearsOnceRootAnswers(t *testing.T) {
	w, _ := healthWorker(t, true)
	w.rt.State.SetLost(stage.DepProject, true)

	if !w.checkConnection(context.Background()) {
		t.Fatal("reachable project must release the stage")
	}
	if lost := w.rt.State.Lost(); len(lost) != 0 {
		t.Fatalf("expected project cleared, got %v", lost)
	}
}
