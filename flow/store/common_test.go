package store

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

type testPayload map[string]any

// testRunStore exercises the RunStore contract against any backend.
func testRunStore(t *testing.T, s RunStore[testPayload]) {
	ctx := context.Background()

	t.Run("steps round trip in order", func(t *testing.T) {
		for i, state := range []string{"a", "b", "c"} {
			payload := testPayload{"state": state, "step": float64(i + 1)}
			if err := s.SaveStep(ctx, "run-1", i+1, state, payload); err != nil {
				t.Fatalf("SaveStep failed: %v", err)
			}
		}

		steps, err := s.ListSteps(ctx, "run-1")
		if err != nil {
			t.Fatalf("ListSteps failed: %v", err)
		}
		if len(steps) != 3 {
			t.Fatalf("steps = %d, want 3", len(steps))
		}
		for i, want := range []string{"a", "b", "c"} {
			if steps[i].Step != i+1 || steps[i].State != want {
				t.Errorf("step %d = %+v", i, steps[i])
			}
			if got, _ := steps[i].Payload["state"].(string); got != want {
				t.Errorf("step %d payload = %v", i, steps[i].Payload)
			}
		}
	})

	t.Run("rewriting a step replaces it", func(t *testing.T) {
		if err := s.SaveStep(ctx, "run-2", 1, "a", testPayload{"v": "old"}); err != nil {
			t.Fatalf("SaveStep failed: %v", err)
		}
		if err := s.SaveStep(ctx, "run-2", 1, "a", testPayload{"v": "new"}); err != nil {
			t.Fatalf("SaveStep failed: %v", err)
		}

		steps, err := s.ListSteps(ctx, "run-2")
		if err != nil {
			t.Fatalf("ListSteps failed: %v", err)
		}
		if len(steps) != 1 {
			t.Fatalf("steps = %d, want 1", len(steps))
		}
		if got, _ := steps[0].Payload["v"].(string); got != "new" {
			t.Errorf("payload = %v, want replaced value", steps[0].Payload)
		}
	})

	t.Run("run record round trip", func(t *testing.T) {
		rec := RunRecord[testPayload]{
			RunID:        "run-3",
			Status:       "failed",
			Trace:        []string{"a", "b"},
			Steps:        2,
			FinalPayload: testPayload{"answer": "partial"},
			Err:          "agent at state \"b\" failed",
		}
		if err := s.SaveRun(ctx, rec); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}

		loaded, err := s.LoadRun(ctx, "run-3")
		if err != nil {
			t.Fatalf("LoadRun failed: %v", err)
		}
		if loaded.Status != rec.Status || loaded.Steps != rec.Steps || loaded.Err != rec.Err {
			t.Errorf("loaded = %+v, want %+v", loaded, rec)
		}
		if !reflect.DeepEqual(loaded.Trace, rec.Trace) {
			t.Errorf("trace = %v, want %v", loaded.Trace, rec.Trace)
		}
		if got, _ := loaded.FinalPayload["answer"].(string); got != "partial" {
			t.Errorf("payload = %v", loaded.FinalPayload)
		}
	})

	t.Run("unknown run returns ErrNotFound", func(t *testing.T) {
		if _, err := s.LoadRun(ctx, "no-such-run"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("unknown run has empty step list", func(t *testing.T) {
		steps, err := s.ListSteps(ctx, "no-such-run")
		if err != nil {
			t.Fatalf("ListSteps failed: %v", err)
		}
		if len(steps) != 0 {
			t.Errorf("steps = %v, want empty", steps)
		}
	})
}
