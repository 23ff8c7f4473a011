package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/nao1215/privpath/internal/model"
)

// mockStep is a test helper that implements the Step interface.
type mockStep struct {
	name      string
	doFunc    func(ctx context.Context, ev *model.Evidence) error
	callCount int
}

// Do implements Step.Do.
func (m *mockStep) Do(ctx context.Context, ev *model.Evidence) error {
	m.callCount++
	if m.doFunc != nil {
		return m.doFunc(ctx, ev)
	}
	return nil
}

// Name implements Step.Name.
func (m *mockStep) Name() string {
	return m.name
}

func newTestEvidence() *model.Evidence {
	return model.NewEvidence("aiplatform.googleapis.com", []string{"aiplatform.googleapis.com"})
}

// TestPipelineNew tests the Pipeline constructor.
func TestPipelineNew(t *testing.T) {
	t.Parallel()

	t.Run("creates pipeline with default settings", func(t *testing.T) {
		t.Parallel()

		p := New()

		if p == nil {
			t.Fatal("expected non-nil pipeline")
		}
		if p.StepCount() != 0 {
			t.Errorf("expected 0 steps, got %d", p.StepCount())
		}
	})

	t.Run("applies WithContinueOnError option", func(t *testing.T) {
		t.Parallel()

		p := New(WithContinueOnError(true))

		if !p.continueOnError {
			t.Error("expected continueOnError to be true")
		}
	})
}

// TestPipelineAddStep tests adding steps to the pipeline.
func TestPipelineAddStep(t *testing.T) {
	t.Parallel()

	t.Run("adds multiple steps with AddSteps", func(t *testing.T) {
		t.Parallel()

		p := New()
		p.AddSteps(&mockStep{name: "step-1"}, &mockStep{name: "step-2"}, &mockStep{name: "step-3"})

		if p.StepCount() != 3 {
			t.Errorf("expected 3 steps, got %d", p.StepCount())
		}
	})

	t.Run("maintains step order", func(t *testing.T) {
		t.Parallel()

		p := New()
		p.AddStep(&mockStep{name: "first"})
		p.AddStep(&mockStep{name: "second"})
		p.AddStep(&mockStep{name: "third"})

		expected := []string{"first", "second", "third"}
		for i, name := range p.StepNames() {
			if name != expected[i] {
				t.Errorf("step %d: got %q, expected %q", i, name, expected[i])
			}
		}
	})
}

// TestPipelineExecute tests pipeline execution.
func TestPipelineExecute(t *testing.T) {
	t.Parallel()

	t.Run("executes all steps in order", func(t *testing.T) {
		t.Parallel()

		executionOrder := make([]string, 0)
		record := func(name string) func(context.Context, *model.Evidence) error {
			return func(_ context.Context, _ *model.Evidence) error {
				executionOrder = append(executionOrder, name)
				return nil
			}
		}

		p := New()
		p.AddSteps(
			&mockStep{name: "step-1", doFunc: record("step-1")},
			&mockStep{name: "step-2", doFunc: record("step-2")},
		)

		ev := newTestEvidence()
		if err := p.Execute(context.Background(), ev); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(executionOrder) != 2 || executionOrder[0] != "step-1" || executionOrder[1] != "step-2" {
			t.Errorf("wrong execution order: %v", executionOrder)
		}
		if StepSummary(ev) != "step-1 -> step-2" {
			t.Errorf("unexpected summary %q", StepSummary(ev))
		}
	})

	t.Run("stops on first error by default", func(t *testing.T) {
		t.Parallel()

		expectedErr := errors.New("step failed")
		second := &mockStep{name: "should-not-run"}

		p := New()
		p.AddSteps(
			&mockStep{name: "failing-step", doFunc: func(_ context.Context, _ *model.Evidence) error {
				return expectedErr
			}},
			second,
		)

		err := p.Execute(context.Background(), newTestEvidence())

		if !errors.Is(err, expectedErr) {
			t.Errorf("expected error %v, got %v", expectedErr, err)
		}
		if second.callCount != 0 {
			t.Error("second step should not have been called")
		}
	})

	t.Run("continues on error when configured", func(t *testing.T) {
		t.Parallel()

		second := &mockStep{name: "should-run"}

		p := New(WithContinueOnError(true))
		p.AddSteps(
			&mockStep{name: "failing-step", doFunc: func(_ context.Context, _ *model.Evidence) error {
				return errors.New("step failed")
			}},
			second,
		)

		ev := newTestEvidence()
		if err := p.Execute(context.Background(), ev); err != nil {
			t.Errorf("expected nil error with continueOnError, got %v", err)
		}
		if second.callCount != 1 {
			t.Error("second step should have been called")
		}
		if len(ev.StepErrors) != 1 || ev.StepErrors[0] != "failing-step: step failed" {
			t.Errorf("unexpected step errors: %v", ev.StepErrors)
		}
		if len(ev.PerformedSteps) != 2 {
			t.Errorf("expected 2 performed steps, got %v", ev.PerformedSteps)
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		step := &mockStep{name: "should-not-run"}
		p := New()
		p.AddStep(step)

		ev := newTestEvidence()
		err := p.Execute(ctx, ev)

		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if step.callCount != 0 {
			t.Error("step should not have been called")
		}
		if !ev.Cancelled {
			t.Error("evidence should be marked cancelled")
		}
	})
}

// TestPipelineStepNames tests the StepNames method.
func TestPipelineStepNames(t *testing.T) {
	t.Parallel()

	if names := New().StepNames(); len(names) != 0 {
		t.Errorf("expected empty slice, got %v", names)
	}
}
