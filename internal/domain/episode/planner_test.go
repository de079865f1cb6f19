package episode

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/domain/pathway"
	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/platform/apperr"
)

func plannedEpisode(t *testing.T, env *testEnv) (*Episode, []*Step) {
	t.Helper()
	ctx := context.Background()
	e := env.openEpisode(t)
	p := threeStepPathway(env, t)
	if err := env.svc.AddPathway(ctx, e.ID, p.ID); err != nil {
		t.Fatalf("add pathway: %v", err)
	}
	steps, err := env.svc.Steps(ctx, e.ID)
	if err != nil {
		t.Fatalf("list steps: %v", err)
	}
	return e, steps
}

func TestSkipAndUnskip(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	e, steps := plannedEpisode(t, env)

	st, err := env.svc.Skip(ctx, e.ID, steps[0].ID, "patient declined")
	if err != nil {
		t.Fatalf("skip: %v", err)
	}
	if st.Status != StepSkipped || st.SkipReason == nil || *st.SkipReason != "patient declined" {
		t.Fatalf("unexpected step after skip: %+v", st)
	}

	st, err = env.svc.Unskip(ctx, e.ID, steps[0].ID)
	if err != nil {
		t.Fatalf("unskip: %v", err)
	}
	if st.Status != StepPending || st.SkipReason != nil {
		t.Fatalf("unexpected step after unskip: %+v", st)
	}
}

func TestSkipWithoutReasonGetsDefault(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	e, steps := plannedEpisode(t, env)

	st, err := env.svc.Skip(ctx, e.ID, steps[0].ID, "")
	if err != nil {
		t.Fatalf("skip: %v", err)
	}
	if st.SkipReason == nil || *st.SkipReason != defaultSkipReason {
		t.Fatalf("expected default skip reason, got %v", st.SkipReason)
	}
}

func TestInvalidStepTransitions(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	e, steps := plannedEpisode(t, env)

	// Completing a pending step skips the scheduled stage.
	if _, err := env.svc.Complete(ctx, e.ID, steps[0].ID); !apperr.IsCode(err, apperr.CodeInvalidStepMove) {
		t.Fatalf("complete pending: expected INVALID_STEP_TRANSITION, got %v", err)
	}

	// Unskipping a step that is not skipped.
	if _, err := env.svc.Unskip(ctx, e.ID, steps[0].ID); !apperr.IsCode(err, apperr.CodeInvalidStepMove) {
		t.Fatalf("unskip pending: expected INVALID_STEP_TRANSITION, got %v", err)
	}

	// Completed is terminal.
	appt := uuid.New()
	if _, err := env.svc.MarkScheduled(ctx, steps[1].ID, appt); err != nil {
		t.Fatalf("mark scheduled: %v", err)
	}
	if _, err := env.svc.Complete(ctx, e.ID, steps[1].ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := env.svc.Skip(ctx, e.ID, steps[1].ID, "late change"); !apperr.IsCode(err, apperr.CodeInvalidStepMove) {
		t.Fatalf("skip completed: expected INVALID_STEP_TRANSITION, got %v", err)
	}
}

func TestMarkScheduledAndBackToPending(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	_, steps := plannedEpisode(t, env)
	appt := uuid.New()

	st, err := env.svc.MarkScheduled(ctx, steps[0].ID, appt)
	if err != nil {
		t.Fatalf("mark scheduled: %v", err)
	}
	if st.Status != StepScheduled || st.AppointmentID == nil || *st.AppointmentID != appt {
		t.Fatalf("unexpected step after scheduling: %+v", st)
	}

	st, err = env.svc.MarkPending(ctx, steps[0].ID)
	if err != nil {
		t.Fatalf("mark pending: %v", err)
	}
	if st.Status != StepPending || st.AppointmentID != nil {
		t.Fatalf("unexpected step after revert: %+v", st)
	}
}

func TestDeleteStepPacksSequence(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	e, steps := plannedEpisode(t, env)

	if err := env.svc.DeleteStep(ctx, e.ID, steps[1].ID); err != nil {
		t.Fatalf("delete step: %v", err)
	}
	after, _ := env.svc.Steps(ctx, e.ID)
	if len(after) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(after))
	}
	for i, st := range after {
		if st.Seq != i {
			t.Errorf("step %d has seq %d", i, st.Seq)
		}
	}
	if after[0].ID != steps[0].ID || after[1].ID != steps[2].ID {
		t.Error("surviving steps lost their relative order")
	}
}

func TestDeleteScheduledStepRejected(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	e, steps := plannedEpisode(t, env)

	if _, err := env.svc.MarkScheduled(ctx, steps[0].ID, uuid.New()); err != nil {
		t.Fatalf("mark scheduled: %v", err)
	}
	err := env.svc.DeleteStep(ctx, e.ID, steps[0].ID)
	if !apperr.IsCode(err, apperr.CodeInvalidStepMove) {
		t.Fatalf("expected INVALID_STEP_TRANSITION, got %v", err)
	}
}

func TestReorderValidatesExactSet(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	e, steps := plannedEpisode(t, env)

	// Reversing the plan is allowed.
	reversed := []uuid.UUID{steps[2].ID, steps[1].ID, steps[0].ID}
	if err := env.svc.Reorder(ctx, e.ID, reversed); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	after, _ := env.svc.Steps(ctx, e.ID)
	for i, id := range reversed {
		if after[i].ID != id {
			t.Errorf("position %d holds wrong step", i)
		}
		if after[i].Seq != i {
			t.Errorf("position %d has seq %d", i, after[i].Seq)
		}
	}

	// Short list, unknown id, and duplicate id are all rejected.
	cases := [][]uuid.UUID{
		{steps[0].ID, steps[1].ID},
		{steps[0].ID, steps[1].ID, uuid.New()},
		{steps[0].ID, steps[1].ID, steps[1].ID},
	}
	for i, ids := range cases {
		if err := env.svc.Reorder(ctx, e.ID, ids); !apperr.IsCode(err, apperr.CodeValidation) {
			t.Errorf("case %d: expected VALIDATION, got %v", i, err)
		}
	}
}

func TestInsertCatalogStep(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	e, steps := plannedEpisode(t, env)

	st, err := env.svc.InsertCatalogStep(ctx, e.ID, "fitting")
	if err != nil {
		t.Fatalf("insert catalog step: %v", err)
	}
	if st.Code != "fitting" || st.Seq != len(steps) || st.Status != StepPending {
		t.Fatalf("unexpected inserted step: %+v", st)
	}

	if _, err := env.svc.InsertCatalogStep(ctx, e.ID, "no-such-code"); !apperr.IsCode(err, apperr.CodeValidation) {
		t.Fatalf("expected VALIDATION for unknown code, got %v", err)
	}
}

func TestInsertFreeTextStep(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	e, steps := plannedEpisode(t, env)

	st, err := env.svc.InsertFreeTextStep(ctx, e.ID, "extra polish", pathway.PoolWork, 25)
	if err != nil {
		t.Fatalf("insert free-text step: %v", err)
	}
	if st.Code != "adhoc" || st.Label != "extra polish" || st.Seq != len(steps) {
		t.Fatalf("unexpected inserted step: %+v", st)
	}

	if _, err := env.svc.InsertFreeTextStep(ctx, e.ID, "too short", pathway.PoolWork, MinStepDurationMinutes-1); !apperr.IsCode(err, apperr.CodeValidation) {
		t.Fatalf("expected VALIDATION below duration floor, got %v", err)
	}
	if _, err := env.svc.InsertFreeTextStep(ctx, e.ID, "", pathway.PoolWork, 30); !apperr.IsCode(err, apperr.CodeValidation) {
		t.Fatalf("expected VALIDATION for empty label, got %v", err)
	}
	if _, err := env.svc.InsertFreeTextStep(ctx, e.ID, "bad pool", pathway.Pool("triage"), 30); !apperr.IsCode(err, apperr.CodeValidation) {
		t.Fatalf("expected VALIDATION for invalid pool, got %v", err)
	}
}

func TestNextPending(t *testing.T) {
	a := &Step{ID: uuid.New(), Status: StepSkipped, Seq: 0}
	b := &Step{ID: uuid.New(), Status: StepScheduled, Seq: 1}
	c := &Step{ID: uuid.New(), Status: StepPending, Seq: 2}

	if got := NextPending([]*Step{a, b, c}); got == nil || got.ID != b.ID {
		t.Errorf("scheduled step should still hold the next position")
	}
	if got := NextPending([]*Step{a}); got != nil {
		t.Errorf("exhausted plan should return nil, got %+v", got)
	}
}
