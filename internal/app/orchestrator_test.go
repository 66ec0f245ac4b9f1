package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/raysh454/iro/internal/app"
	"github.com/raysh454/iro/internal/history"
)

// drain collects every event until the job's channel closes.
func drain(t *testing.T, o *app.Orchestrator, jobID string) []app.JobEvent {
	t.Helper()
	ch, ok := o.Events(jobID)
	if !ok {
		t.Fatalf("no events for job %s", jobID)
	}
	var events []app.JobEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("job %s did not finish", jobID)
		}
	}
}

func TestOrchestrator_TransformJob(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.login(t)
	f.addAndUpload(t, "a.png", "b.png")
	f.backend.TransformDelay = 20 * time.Millisecond

	sel := f.app.Images.NewSelection()
	sel.Toggle("grayscale", "")

	job, err := f.app.Orchestrator.StartTransformJob(context.Background(), sel)
	if err != nil {
		t.Fatalf("StartTransformJob: %v", err)
	}
	events := drain(t, f.app.Orchestrator, job.ID)

	if events[0].Status != app.JobPending || events[1].Status != app.JobRunning {
		t.Errorf("expected pending then running, got %+v", events[:2])
	}
	last := events[len(events)-1]
	if last.Type != app.JobEventResult || last.Status != app.JobDone {
		t.Errorf("expected a final result event, got %+v", last)
	}
	sawProgress := false
	for _, ev := range events {
		if ev.Type == app.JobEventProgress && ev.Progress != nil {
			sawProgress = true
		}
		if ev.JobID != job.ID {
			t.Errorf("event for the wrong job: %+v", ev)
		}
	}
	if !sawProgress {
		t.Error("expected progress events")
	}

	got := f.app.Orchestrator.GetJob(job.ID)
	if got.Status != app.JobDone || got.Batch == nil || got.Batch.ImageCount != 2 || got.EndedAt.IsZero() {
		t.Errorf("unexpected job snapshot %+v", got)
	}
}

func TestOrchestrator_OneTransformAtATime(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.login(t)
	f.addAndUpload(t, "a.png")
	f.backend.TransformDelay = 200 * time.Millisecond

	sel := f.app.Images.NewSelection()
	sel.Toggle("grayscale", "")

	job, err := f.app.Orchestrator.StartTransformJob(context.Background(), sel)
	if err != nil {
		t.Fatalf("StartTransformJob: %v", err)
	}
	if _, err := f.app.Orchestrator.StartTransformJob(context.Background(), sel); !errors.Is(err, app.ErrJobRunning) {
		t.Errorf("expected ErrJobRunning, got %v", err)
	}
	drain(t, f.app.Orchestrator, job.ID)

	next, err := f.app.Orchestrator.StartTransformJob(context.Background(), sel)
	if err != nil {
		t.Fatalf("a new job should start once the first ends: %v", err)
	}
	drain(t, f.app.Orchestrator, next.ID)
}

func TestOrchestrator_CancelTransform(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.login(t)
	f.addAndUpload(t, "a.png")
	f.backend.TransformDelay = 2 * time.Second

	sel := f.app.Images.NewSelection()
	sel.Toggle("grayscale", "")
	job, err := f.app.Orchestrator.StartTransformJob(context.Background(), sel)
	if err != nil {
		t.Fatalf("StartTransformJob: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if !f.app.Orchestrator.CancelJob(job.ID) {
		t.Fatal("CancelJob should find the running job")
	}
	drain(t, f.app.Orchestrator, job.ID)

	if got := f.app.Orchestrator.GetJob(job.ID); got.Status != app.JobCanceled {
		t.Errorf("expected canceled, got %+v", got)
	}
	if f.app.Orchestrator.CancelJob(job.ID) {
		t.Error("a finished job cannot be canceled")
	}
}

func TestOrchestrator_InvalidSelection(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	if _, err := f.app.Orchestrator.StartTransformJob(context.Background(), nil); !errors.Is(err, app.ErrInvalidSelection) {
		t.Errorf("expected ErrInvalidSelection, got %v", err)
	}
	if f.app.Orchestrator.GetJob("missing") != nil {
		t.Error("unknown job ids return nil")
	}
}

func TestOrchestrator_DeleteImageJob(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.login(t)
	seed(f)
	_ = f.app.History.Load(context.Background())
	f.backend.FailDelete(3)

	if _, err := f.app.Orchestrator.StartDeleteImageJob(context.Background(), 999); !errors.Is(err, history.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}

	job, err := f.app.Orchestrator.StartDeleteImageJob(context.Background(), 100)
	if err != nil {
		t.Fatalf("StartDeleteImageJob: %v", err)
	}
	drain(t, f.app.Orchestrator, job.ID)

	got := f.app.Orchestrator.GetJob(job.ID)
	if got.Status != app.JobFailed || len(got.Deleted) != 2 || got.Failed != 1 || got.ImageID != 100 {
		t.Errorf("unexpected job %+v", got)
	}
}

func TestOrchestrator_PrunesFinishedJobs(t *testing.T) {
	t.Parallel()
	f := newFixtureWith(t, func(cfg *app.Config) { cfg.JobRetention = time.Millisecond })
	f.login(t)
	seed(f)
	_ = f.app.History.Load(context.Background())

	first, err := f.app.Orchestrator.StartDeleteImageJob(context.Background(), 200)
	if err != nil {
		t.Fatalf("StartDeleteImageJob: %v", err)
	}
	drain(t, f.app.Orchestrator, first.ID)
	if f.app.Orchestrator.GetJob(first.ID) == nil {
		t.Fatal("a just-finished job should still be queryable")
	}
	time.Sleep(10 * time.Millisecond)

	_ = f.app.History.Load(context.Background())
	second, err := f.app.Orchestrator.StartDeleteImageJob(context.Background(), 100)
	if err != nil {
		t.Fatalf("StartDeleteImageJob: %v", err)
	}
	if f.app.Orchestrator.GetJob(first.ID) != nil {
		t.Error("a job ended longer ago than the retention should be forgotten")
	}
	drain(t, f.app.Orchestrator, second.ID)
	if f.app.Orchestrator.GetJob(second.ID) == nil {
		t.Error("the running job must not be pruned")
	}
}
