package episode

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/domain/pathway"
)

// -- Mock repositories --

type mockEpisodeRepo struct {
	episodes map[uuid.UUID]*Episode
}

func newMockEpisodeRepo() *mockEpisodeRepo {
	return &mockEpisodeRepo{episodes: make(map[uuid.UUID]*Episode)}
}

func (m *mockEpisodeRepo) Create(_ context.Context, e *Episode) error {
	e.ID = uuid.New()
	e.Status = StatusOpen
	e.CreatedAt = time.Now()
	e.UpdatedAt = time.Now()
	m.episodes[e.ID] = e
	return nil
}

func (m *mockEpisodeRepo) GetByID(_ context.Context, id uuid.UUID) (*Episode, error) {
	e, ok := m.episodes[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	cp := *e
	return &cp, nil
}

func (m *mockEpisodeRepo) LockForUpdate(ctx context.Context, id uuid.UUID) (*Episode, error) {
	return m.GetByID(ctx, id)
}

func (m *mockEpisodeRepo) Update(_ context.Context, e *Episode) error {
	if _, ok := m.episodes[e.ID]; !ok {
		return fmt.Errorf("not found")
	}
	e.UpdatedAt = time.Now()
	cp := *e
	m.episodes[e.ID] = &cp
	return nil
}

func (m *mockEpisodeRepo) UpdateIf(_ context.Context, e *Episode, expected int) (bool, error) {
	stored, ok := m.episodes[e.ID]
	if !ok {
		return false, fmt.Errorf("not found")
	}
	if stored.SnapshotVersion != expected {
		return false, nil
	}
	e.SnapshotVersion = expected + 1
	cp := *e
	m.episodes[e.ID] = &cp
	return true, nil
}

func (m *mockEpisodeRepo) List(_ context.Context, patientID *uuid.UUID, status string, limit, offset int) ([]*Episode, int, error) {
	var items []*Episode
	for _, e := range m.episodes {
		if patientID != nil && e.PatientID != *patientID {
			continue
		}
		if status != "" && e.Status != status {
			continue
		}
		cp := *e
		items = append(items, &cp)
	}
	return items, len(items), nil
}

type mockLinkRepo struct {
	links map[uuid.UUID]*PathwayLink
}

func newMockLinkRepo() *mockLinkRepo {
	return &mockLinkRepo{links: make(map[uuid.UUID]*PathwayLink)}
}

func (m *mockLinkRepo) Create(_ context.Context, l *PathwayLink) error {
	l.ID = uuid.New()
	cp := *l
	m.links[l.ID] = &cp
	return nil
}

func (m *mockLinkRepo) GetByID(_ context.Context, id uuid.UUID) (*PathwayLink, error) {
	l, ok := m.links[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	cp := *l
	return &cp, nil
}

func (m *mockLinkRepo) ListByEpisode(_ context.Context, episodeID uuid.UUID) ([]*PathwayLink, error) {
	var items []*PathwayLink
	for _, l := range m.links {
		if l.EpisodeID == episodeID {
			cp := *l
			items = append(items, &cp)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Ordinal < items[j].Ordinal })
	return items, nil
}

func (m *mockLinkRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.links, id)
	return nil
}

func (m *mockLinkRepo) Resequence(_ context.Context, episodeID uuid.UUID, orderedIDs []uuid.UUID) error {
	for i, id := range orderedIDs {
		if l, ok := m.links[id]; ok && l.EpisodeID == episodeID {
			l.Ordinal = i
		}
	}
	return nil
}

type mockStepRepo struct {
	steps map[uuid.UUID]*Step
	// failOn makes the named operation fail, for atomicity tests.
	failOn string
}

func newMockStepRepo() *mockStepRepo {
	return &mockStepRepo{steps: make(map[uuid.UUID]*Step)}
}

func (m *mockStepRepo) Create(_ context.Context, st *Step) error {
	if m.failOn == "create" {
		return fmt.Errorf("create failed")
	}
	st.ID = uuid.New()
	st.CreatedAt = time.Now()
	st.UpdatedAt = time.Now()
	cp := *st
	m.steps[st.ID] = &cp
	return nil
}

func (m *mockStepRepo) GetByID(_ context.Context, id uuid.UUID) (*Step, error) {
	st, ok := m.steps[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	cp := *st
	return &cp, nil
}

func (m *mockStepRepo) ListByEpisode(_ context.Context, episodeID uuid.UUID) ([]*Step, error) {
	var items []*Step
	for _, st := range m.steps {
		if st.EpisodeID == episodeID {
			cp := *st
			items = append(items, &cp)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Seq < items[j].Seq })
	return items, nil
}

func (m *mockStepRepo) Update(_ context.Context, st *Step) error {
	if _, ok := m.steps[st.ID]; !ok {
		return fmt.Errorf("not found")
	}
	st.UpdatedAt = time.Now()
	cp := *st
	m.steps[st.ID] = &cp
	return nil
}

func (m *mockStepRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.steps, id)
	return nil
}

func (m *mockStepRepo) Resequence(_ context.Context, episodeID uuid.UUID, orderedIDs []uuid.UUID) error {
	for i, id := range orderedIDs {
		if st, ok := m.steps[id]; ok && st.EpisodeID == episodeID {
			st.Seq = i
		}
	}
	return nil
}

func (m *mockStepRepo) DeleteBySourceLink(_ context.Context, linkID uuid.UUID) (int, error) {
	count := 0
	for id, st := range m.steps {
		if st.SourceLinkID != nil && *st.SourceLinkID == linkID {
			delete(m.steps, id)
			count++
		}
	}
	return count, nil
}

type mockIntentRepo struct {
	intents map[uuid.UUID]*Intent
}

func newMockIntentRepo() *mockIntentRepo {
	return &mockIntentRepo{intents: make(map[uuid.UUID]*Intent)}
}

func (m *mockIntentRepo) Create(_ context.Context, in *Intent) error {
	in.ID = uuid.New()
	in.State = IntentOpen
	in.CreatedAt = time.Now()
	in.UpdatedAt = time.Now()
	cp := *in
	m.intents[in.ID] = &cp
	return nil
}

func (m *mockIntentRepo) GetByID(_ context.Context, id uuid.UUID) (*Intent, error) {
	in, ok := m.intents[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	cp := *in
	return &cp, nil
}

func (m *mockIntentRepo) OpenByEpisode(_ context.Context, episodeID uuid.UUID) ([]*Intent, error) {
	var items []*Intent
	for _, in := range m.intents {
		if in.EpisodeID == episodeID && in.State == IntentOpen {
			cp := *in
			items = append(items, &cp)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Pool < items[j].Pool })
	return items, nil
}

func (m *mockIntentRepo) OpenByEpisodeAndPool(_ context.Context, episodeID uuid.UUID, pool pathway.Pool) (*Intent, error) {
	for _, in := range m.intents {
		if in.EpisodeID == episodeID && in.Pool == pool && in.State == IntentOpen {
			cp := *in
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("not found")
}

func (m *mockIntentRepo) Update(_ context.Context, in *Intent) error {
	if _, ok := m.intents[in.ID]; !ok {
		return fmt.Errorf("not found")
	}
	in.UpdatedAt = time.Now()
	cp := *in
	m.intents[in.ID] = &cp
	return nil
}

func (m *mockIntentRepo) CancelOpenByEpisode(_ context.Context, episodeID uuid.UUID) (int, error) {
	count := 0
	for _, in := range m.intents {
		if in.EpisodeID == episodeID && in.State == IntentOpen {
			in.State = IntentCancelled
			count++
		}
	}
	return count, nil
}

type mockPathwayRepo struct {
	pathways map[uuid.UUID]*pathway.Pathway
}

func newMockPathwayRepo() *mockPathwayRepo {
	return &mockPathwayRepo{pathways: make(map[uuid.UUID]*pathway.Pathway)}
}

func (m *mockPathwayRepo) Create(_ context.Context, p *pathway.Pathway) error {
	p.ID = uuid.New()
	m.pathways[p.ID] = p
	return nil
}

func (m *mockPathwayRepo) GetByID(_ context.Context, id uuid.UUID) (*pathway.Pathway, error) {
	p, ok := m.pathways[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return p, nil
}

func (m *mockPathwayRepo) UpdateIf(_ context.Context, p *pathway.Pathway, _ time.Time) (bool, error) {
	m.pathways[p.ID] = p
	return true, nil
}

func (m *mockPathwayRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.pathways, id)
	return nil
}

func (m *mockPathwayRepo) List(_ context.Context, _, _ int) ([]*pathway.Pathway, int, error) {
	var items []*pathway.Pathway
	for _, p := range m.pathways {
		items = append(items, p)
	}
	return items, len(items), nil
}

func (m *mockPathwayRepo) ReferenceCount(_ context.Context, _ uuid.UUID) (int, error) {
	return 0, nil
}

// passthroughTx runs the unit directly; mocks have no transactions.
func passthroughTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type testEnv struct {
	svc      *Service
	episodes *mockEpisodeRepo
	links    *mockLinkRepo
	steps    *mockStepRepo
	intents  *mockIntentRepo
	pathways *mockPathwayRepo
}

func newTestEnv() *testEnv {
	env := &testEnv{
		episodes: newMockEpisodeRepo(),
		links:    newMockLinkRepo(),
		steps:    newMockStepRepo(),
		intents:  newMockIntentRepo(),
		pathways: newMockPathwayRepo(),
	}
	env.svc = NewService(env.episodes, env.links, env.steps, env.intents,
		env.pathways, passthroughTx, nil, zerolog.Nop())
	return env
}

func (env *testEnv) openEpisode(t interface{ Fatalf(string, ...interface{}) }) *Episode {
	e := &Episode{PatientID: uuid.New(), Reason: "rehabilitation"}
	if err := env.svc.Open(context.Background(), e); err != nil {
		t.Fatalf("open episode: %v", err)
	}
	return e
}

func (env *testEnv) addPathway(t interface{ Fatalf(string, ...interface{}) }, steps ...pathway.StepTemplate) *pathway.Pathway {
	reason := "rehab"
	p := &pathway.Pathway{Name: "test pathway", ReasonCode: &reason, Steps: steps}
	if err := env.pathways.Create(context.Background(), p); err != nil {
		t.Fatalf("create pathway: %v", err)
	}
	return p
}
