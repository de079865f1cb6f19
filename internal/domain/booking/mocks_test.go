package booking

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/domain/episode"
	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/domain/overrideaudit"
	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/domain/pathway"
	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/domain/slot"
	"github.com/janoskonig/maxillofacialisrehabilitacio-sub003/internal/platform/auth"
)

// -- Mock repositories --

type mockApptRepo struct {
	appts map[uuid.UUID]*Appointment
	// failOn makes the named operation fail, for atomicity tests.
	failOn string
}

func newMockApptRepo() *mockApptRepo {
	return &mockApptRepo{appts: make(map[uuid.UUID]*Appointment)}
}

func (m *mockApptRepo) Create(_ context.Context, a *Appointment) error {
	if m.failOn == "create" {
		return fmt.Errorf("create failed")
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = time.Now()
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *mockApptRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := m.appts[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	cp := *a
	return &cp, nil
}

func (m *mockApptRepo) GetBySlot(_ context.Context, slotID uuid.UUID) (*Appointment, error) {
	for _, a := range m.appts {
		if a.SlotID == slotID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("not found")
}

func (m *mockApptRepo) Update(_ context.Context, a *Appointment) error {
	if _, ok := m.appts[a.ID]; !ok {
		return fmt.Errorf("not found")
	}
	a.UpdatedAt = time.Now()
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *mockApptRepo) CountActiveFutureWork(_ context.Context, episodeID uuid.UUID, now time.Time) (int, error) {
	count := 0
	for _, a := range m.appts {
		if a.EpisodeID != nil && *a.EpisodeID == episodeID &&
			a.Pool == pathway.PoolWork && a.Status == StatusActive &&
			a.StartTime.After(now) && !a.RequiresPrecommit {
			count++
		}
	}
	return count, nil
}

func (m *mockApptRepo) ListByEpisode(_ context.Context, episodeID uuid.UUID, _, _ int) ([]*Appointment, int, error) {
	var items []*Appointment
	for _, a := range m.appts {
		if a.EpisodeID != nil && *a.EpisodeID == episodeID {
			cp := *a
			items = append(items, &cp)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].StartTime.Before(items[j].StartTime) })
	return items, len(items), nil
}

func (m *mockApptRepo) ListByPatient(_ context.Context, patientID uuid.UUID, _, _ int) ([]*Appointment, int, error) {
	var items []*Appointment
	for _, a := range m.appts {
		if a.PatientID == patientID {
			cp := *a
			items = append(items, &cp)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].StartTime.Before(items[j].StartTime) })
	return items, len(items), nil
}

type mockSlotRepo struct {
	slots map[uuid.UUID]*slot.TimeSlot
}

func newMockSlotRepo() *mockSlotRepo {
	return &mockSlotRepo{slots: make(map[uuid.UUID]*slot.TimeSlot)}
}

func (m *mockSlotRepo) Create(_ context.Context, s *slot.TimeSlot) error {
	s.ID = uuid.New()
	if s.State == "" {
		s.State = slot.StateFree
	}
	if s.Source == "" {
		s.Source = slot.SourceLocal
	}
	cp := *s
	m.slots[s.ID] = &cp
	return nil
}

func (m *mockSlotRepo) GetByID(_ context.Context, id uuid.UUID) (*slot.TimeSlot, error) {
	s, ok := m.slots[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	cp := *s
	return &cp, nil
}

func (m *mockSlotRepo) LockForUpdate(ctx context.Context, id uuid.UUID) (*slot.TimeSlot, error) {
	return m.GetByID(ctx, id)
}

func (m *mockSlotRepo) Update(_ context.Context, s *slot.TimeSlot) error {
	if _, ok := m.slots[s.ID]; !ok {
		return fmt.Errorf("not found")
	}
	cp := *s
	m.slots[s.ID] = &cp
	return nil
}

func (m *mockSlotRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.slots, id)
	return nil
}

func (m *mockSlotRepo) List(_ context.Context, f slot.ListFilter, _, _ int) ([]*slot.TimeSlot, int, error) {
	var items []*slot.TimeSlot
	for _, s := range m.slots {
		if f.ProviderID != nil && s.ProviderID != *f.ProviderID {
			continue
		}
		if f.FreeOnly && !s.IsFree() {
			continue
		}
		cp := *s
		items = append(items, &cp)
	}
	return items, len(items), nil
}

type mockEpisodeRepo struct {
	episodes map[uuid.UUID]*episode.Episode
}

func newMockEpisodeRepo() *mockEpisodeRepo {
	return &mockEpisodeRepo{episodes: make(map[uuid.UUID]*episode.Episode)}
}

func (m *mockEpisodeRepo) Create(_ context.Context, e *episode.Episode) error {
	e.ID = uuid.New()
	e.Status = episode.StatusOpen
	m.episodes[e.ID] = e
	return nil
}

func (m *mockEpisodeRepo) GetByID(_ context.Context, id uuid.UUID) (*episode.Episode, error) {
	e, ok := m.episodes[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	cp := *e
	return &cp, nil
}

func (m *mockEpisodeRepo) LockForUpdate(ctx context.Context, id uuid.UUID) (*episode.Episode, error) {
	return m.GetByID(ctx, id)
}

func (m *mockEpisodeRepo) Update(_ context.Context, e *episode.Episode) error {
	if _, ok := m.episodes[e.ID]; !ok {
		return fmt.Errorf("not found")
	}
	cp := *e
	m.episodes[e.ID] = &cp
	return nil
}

func (m *mockEpisodeRepo) UpdateIf(_ context.Context, e *episode.Episode, expected int) (bool, error) {
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

func (m *mockEpisodeRepo) List(_ context.Context, _ *uuid.UUID, _ string, _, _ int) ([]*episode.Episode, int, error) {
	return nil, 0, nil
}

type mockLinkRepo struct {
	links map[uuid.UUID]*episode.PathwayLink
}

func newMockLinkRepo() *mockLinkRepo {
	return &mockLinkRepo{links: make(map[uuid.UUID]*episode.PathwayLink)}
}

func (m *mockLinkRepo) Create(_ context.Context, l *episode.PathwayLink) error {
	l.ID = uuid.New()
	cp := *l
	m.links[l.ID] = &cp
	return nil
}

func (m *mockLinkRepo) GetByID(_ context.Context, id uuid.UUID) (*episode.PathwayLink, error) {
	l, ok := m.links[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	cp := *l
	return &cp, nil
}

func (m *mockLinkRepo) ListByEpisode(_ context.Context, episodeID uuid.UUID) ([]*episode.PathwayLink, error) {
	var items []*episode.PathwayLink
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
	steps map[uuid.UUID]*episode.Step
}

func newMockStepRepo() *mockStepRepo {
	return &mockStepRepo{steps: make(map[uuid.UUID]*episode.Step)}
}

func (m *mockStepRepo) Create(_ context.Context, st *episode.Step) error {
	st.ID = uuid.New()
	cp := *st
	m.steps[st.ID] = &cp
	return nil
}

func (m *mockStepRepo) GetByID(_ context.Context, id uuid.UUID) (*episode.Step, error) {
	st, ok := m.steps[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	cp := *st
	return &cp, nil
}

func (m *mockStepRepo) ListByEpisode(_ context.Context, episodeID uuid.UUID) ([]*episode.Step, error) {
	var items []*episode.Step
	for _, st := range m.steps {
		if st.EpisodeID == episodeID {
			cp := *st
			items = append(items, &cp)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Seq < items[j].Seq })
	return items, nil
}

func (m *mockStepRepo) Update(_ context.Context, st *episode.Step) error {
	if _, ok := m.steps[st.ID]; !ok {
		return fmt.Errorf("not found")
	}
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
	intents map[uuid.UUID]*episode.Intent
}

func newMockIntentRepo() *mockIntentRepo {
	return &mockIntentRepo{intents: make(map[uuid.UUID]*episode.Intent)}
}

func (m *mockIntentRepo) Create(_ context.Context, in *episode.Intent) error {
	in.ID = uuid.New()
	in.State = episode.IntentOpen
	cp := *in
	m.intents[in.ID] = &cp
	return nil
}

func (m *mockIntentRepo) GetByID(_ context.Context, id uuid.UUID) (*episode.Intent, error) {
	in, ok := m.intents[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	cp := *in
	return &cp, nil
}

func (m *mockIntentRepo) OpenByEpisode(_ context.Context, episodeID uuid.UUID) ([]*episode.Intent, error) {
	var items []*episode.Intent
	for _, in := range m.intents {
		if in.EpisodeID == episodeID && in.State == episode.IntentOpen {
			cp := *in
			items = append(items, &cp)
		}
	}
	return items, nil
}

func (m *mockIntentRepo) OpenByEpisodeAndPool(_ context.Context, episodeID uuid.UUID, pool pathway.Pool) (*episode.Intent, error) {
	for _, in := range m.intents {
		if in.EpisodeID == episodeID && in.Pool == pool && in.State == episode.IntentOpen {
			cp := *in
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("not found")
}

func (m *mockIntentRepo) Update(_ context.Context, in *episode.Intent) error {
	if _, ok := m.intents[in.ID]; !ok {
		return fmt.Errorf("not found")
	}
	cp := *in
	m.intents[in.ID] = &cp
	return nil
}

func (m *mockIntentRepo) CancelOpenByEpisode(_ context.Context, episodeID uuid.UUID) (int, error) {
	count := 0
	for _, in := range m.intents {
		if in.EpisodeID == episodeID && in.State == episode.IntentOpen {
			in.State = episode.IntentCancelled
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
	return nil, 0, nil
}

func (m *mockPathwayRepo) ReferenceCount(_ context.Context, _ uuid.UUID) (int, error) {
	return 0, nil
}

type mockAuditRepo struct {
	entries []*overrideaudit.Entry
}

func (m *mockAuditRepo) Create(_ context.Context, e *overrideaudit.Entry) error {
	e.ID = uuid.New()
	e.CreatedAt = time.Now()
	cp := *e
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *mockAuditRepo) ListByEpisode(_ context.Context, episodeID uuid.UUID, _, _ int) ([]*overrideaudit.Entry, int, error) {
	var items []*overrideaudit.Entry
	for _, e := range m.entries {
		if e.EpisodeID == episodeID {
			cp := *e
			items = append(items, &cp)
		}
	}
	return items, len(items), nil
}

func passthroughTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type bookingEnv struct {
	svc      *Service
	appts    *mockApptRepo
	slots    *mockSlotRepo
	episodes *mockEpisodeRepo
	links    *mockLinkRepo
	steps    *mockStepRepo
	intents  *mockIntentRepo
	pathways *mockPathwayRepo
	audit    *mockAuditRepo
}

func newBookingEnv(cfg Config) *bookingEnv {
	env := &bookingEnv{
		appts:    newMockApptRepo(),
		slots:    newMockSlotRepo(),
		episodes: newMockEpisodeRepo(),
		links:    newMockLinkRepo(),
		steps:    newMockStepRepo(),
		intents:  newMockIntentRepo(),
		pathways: newMockPathwayRepo(),
		audit:    &mockAuditRepo{},
	}
	env.svc = NewService(env.appts, env.slots, env.episodes, env.links,
		env.steps, env.intents, env.pathways, env.audit, passthroughTx,
		nil, cfg, zerolog.Nop())
	return env
}

// freeSlot seeds a free future slot for the given provider.
func (env *bookingEnv) freeSlot(t *testing.T, providerID uuid.UUID, startIn time.Duration) *slot.TimeSlot {
	t.Helper()
	s := &slot.TimeSlot{
		ProviderID:      providerID,
		StartTime:       time.Now().Add(startIn),
		DurationMinutes: 60,
	}
	if err := env.slots.Create(context.Background(), s); err != nil {
		t.Fatalf("seed slot: %v", err)
	}
	return s
}

// linkedEpisode seeds an open episode with one linked pathway, its
// expanded steps, and the provider assigned.
func (env *bookingEnv) linkedEpisode(t *testing.T, providerID uuid.UUID, templates ...pathway.StepTemplate) (*episode.Episode, []*episode.Step) {
	t.Helper()
	ctx := context.Background()

	if len(templates) == 0 {
		templates = []pathway.StepTemplate{
			{Code: "impression", Label: "Impression", Pool: pathway.PoolWork, DurationMinutes: 60},
			{Code: "fitting", Label: "Fitting", Pool: pathway.PoolWork, DurationMinutes: 45},
		}
	}
	reason := "rehab"
	p := &pathway.Pathway{Name: "test pathway", ReasonCode: &reason, Steps: templates}
	if err := env.pathways.Create(ctx, p); err != nil {
		t.Fatalf("seed pathway: %v", err)
	}

	e := &episode.Episode{PatientID: uuid.New(), Reason: "rehabilitation", ProviderID: &providerID}
	if err := env.episodes.Create(ctx, e); err != nil {
		t.Fatalf("seed episode: %v", err)
	}
	e.PathwayID = &p.ID
	if err := env.episodes.Update(ctx, e); err != nil {
		t.Fatalf("seed episode pathway: %v", err)
	}

	link := &episode.PathwayLink{EpisodeID: e.ID, PathwayID: p.ID, Ordinal: 0}
	if err := env.links.Create(ctx, link); err != nil {
		t.Fatalf("seed link: %v", err)
	}
	var steps []*episode.Step
	for i, tpl := range templates {
		linkID := link.ID
		st := &episode.Step{
			EpisodeID:       e.ID,
			Code:            tpl.Code,
			Label:           tpl.Label,
			SourceLinkID:    &linkID,
			Pool:            tpl.Pool,
			DurationMinutes: tpl.DurationMinutes,
			Status:          episode.StepPending,
			Seq:             i,
		}
		if err := env.steps.Create(ctx, st); err != nil {
			t.Fatalf("seed step: %v", err)
		}
		steps = append(steps, st)
	}
	return e, steps
}

func providerActor(id uuid.UUID) auth.Actor {
	return auth.Actor{ID: id, Name: "Dr. Provider", Roles: []string{auth.RoleProvider}}
}

func adminActor() auth.Actor {
	return auth.Actor{ID: uuid.New(), Name: "Admin", Roles: []string{auth.RoleAdmin}}
}
