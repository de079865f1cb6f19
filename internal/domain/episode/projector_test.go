package episode

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/domain/pathway"
)

func intentByPool(intents []*Intent, pool pathway.Pool) *Intent {
	for _, in := range intents {
		if in.Pool == pool {
			return in
		}
	}
	return nil
}

func TestReprojectRequiresProvider(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	e := env.openEpisode(t)
	p := threeStepPathway(env, t)

	if err := env.svc.AddPathway(ctx, e.ID, p.ID); err != nil {
		t.Fatalf("add pathway: %v", err)
	}
	open, _ := env.svc.OpenIntents(ctx, e.ID)
	if len(open) != 0 {
		t.Fatalf("no provider assigned, expected no intents, got %d", len(open))
	}

	provider := uuid.New()
	if _, err := env.svc.AssignProvider(ctx, e.ID, &provider); err != nil {
		t.Fatalf("assign provider: %v", err)
	}
	open, _ = env.svc.OpenIntents(ctx, e.ID)
	if len(open) != 2 {
		t.Fatalf("expected one intent per pool (consult, work), got %d", len(open))
	}

	// Unassigning cancels the projection again.
	if _, err := env.svc.AssignProvider(ctx, e.ID, nil); err != nil {
		t.Fatalf("unassign provider: %v", err)
	}
	open, _ = env.svc.OpenIntents(ctx, e.ID)
	if len(open) != 0 {
		t.Fatalf("expected intents cancelled after unassign, got %d", len(open))
	}
}

func TestReprojectPointsAtEarliestPendingStep(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	e := env.openEpisode(t)
	p := threeStepPathway(env, t)
	provider := uuid.New()

	if err := env.svc.AddPathway(ctx, e.ID, p.ID); err != nil {
		t.Fatalf("add pathway: %v", err)
	}
	if _, err := env.svc.AssignProvider(ctx, e.ID, &provider); err != nil {
		t.Fatalf("assign provider: %v", err)
	}

	steps, _ := env.svc.Steps(ctx, e.ID)
	open, _ := env.svc.OpenIntents(ctx, e.ID)

	work := intentByPool(open, pathway.PoolWork)
	if work == nil || work.StepID != steps[1].ID {
		t.Fatalf("work intent should point at the first work step")
	}
	consult := intentByPool(open, pathway.PoolConsult)
	if consult == nil || consult.StepID != steps[0].ID {
		t.Fatalf("consult intent should point at the consult step")
	}

	// Skipping the first work step moves the work intent to the next one.
	if _, err := env.svc.Skip(ctx, e.ID, steps[1].ID, "not needed"); err != nil {
		t.Fatalf("skip: %v", err)
	}
	open, _ = env.svc.OpenIntents(ctx, e.ID)
	work = intentByPool(open, pathway.PoolWork)
	if work == nil || work.StepID != steps[2].ID {
		t.Fatalf("work intent should follow the earliest pending work step")
	}
}

func TestReprojectIsIdempotent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	e := env.openEpisode(t)
	p := threeStepPathway(env, t)
	provider := uuid.New()

	if err := env.svc.AddPathway(ctx, e.ID, p.ID); err != nil {
		t.Fatalf("add pathway: %v", err)
	}
	if _, err := env.svc.AssignProvider(ctx, e.ID, &provider); err != nil {
		t.Fatalf("assign provider: %v", err)
	}
	before, _ := env.svc.OpenIntents(ctx, e.ID)

	if err := env.svc.Reproject(ctx, e.ID); err != nil {
		t.Fatalf("reproject: %v", err)
	}
	after, _ := env.svc.OpenIntents(ctx, e.ID)
	if len(after) != len(before) {
		t.Fatalf("intent count changed from %d to %d", len(before), len(after))
	}
	for _, in := range before {
		kept := intentByPool(after, in.Pool)
		if kept == nil || kept.ID != in.ID {
			t.Errorf("matching open intent for pool %s should be kept, not replaced", in.Pool)
		}
	}
}

func TestReprojectCancelsWhenPlanExhausted(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	e := env.openEpisode(t)
	p := env.addPathway(t,
		pathway.StepTemplate{Code: "impression", Label: "Impression", Pool: pathway.PoolWork, DurationMinutes: 60},
	)
	provider := uuid.New()

	if err := env.svc.AddPathway(ctx, e.ID, p.ID); err != nil {
		t.Fatalf("add pathway: %v", err)
	}
	if _, err := env.svc.AssignProvider(ctx, e.ID, &provider); err != nil {
		t.Fatalf("assign provider: %v", err)
	}
	steps, _ := env.svc.Steps(ctx, e.ID)
	if _, err := env.svc.Skip(ctx, e.ID, steps[0].ID, "done elsewhere"); err != nil {
		t.Fatalf("skip: %v", err)
	}

	open, _ := env.svc.OpenIntents(ctx, e.ID)
	if len(open) != 0 {
		t.Fatalf("expected no intents for exhausted plan, got %d", len(open))
	}

	// Unskipping brings the intent back.
	if _, err := env.svc.Unskip(ctx, e.ID, steps[0].ID); err != nil {
		t.Fatalf("unskip: %v", err)
	}
	open, _ = env.svc.OpenIntents(ctx, e.ID)
	if len(open) != 1 {
		t.Fatalf("expected intent restored after unskip, got %d", len(open))
	}
}
