package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/alexnthnz/alert-fanout/internal/channels"
	"github.com/alexnthnz/alert-fanout/internal/delivery"
	"github.com/alexnthnz/alert-fanout/internal/queue"
	"github.com/alexnthnz/alert-fanout/internal/recipient"
	"github.com/alexnthnz/alert-fanout/internal/worker"
)

type fakeRepo struct {
	mu       sync.Mutex
	nextID   int64
	records  map[int64]*Record
	zones    map[int64]*Zone
	inserted []*Record
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{nextID: 100, records: map[int64]*Record{}, zones: map[int64]*Zone{}}
}

func (f *fakeRepo) Insert(_ context.Context, rec *Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	rec.ID = f.nextID
	rec.CreatedAt = time.Now()
	f.records[rec.ID] = rec
	f.inserted = append(f.inserted, rec)
	return nil
}

func (f *fakeRepo) Get(_ context.Context, id int64) (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (f *fakeRepo) Transition(_ context.Context, id int64, next Status, actor int64) (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !rec.Status.CanTransition(next) {
		return nil, ErrInvalidTransition
	}
	rec.Status = next
	if next == StatusAcknowledged {
		rec.AcknowledgedBy = &actor
	} else {
		rec.ResolvedBy = &actor
	}
	return rec, nil
}

func (f *fakeRepo) GetZone(_ context.Context, id int64) (*Zone, error) {
	z, ok := f.zones[id]
	if !ok {
		return nil, ErrNotFound
	}
	return z, nil
}

type fakeDirectory struct {
	mu      sync.Mutex
	users   map[int64]recipient.Recipient
	results [][]recipient.Recipient
	filters []string
	args    [][]any
}

func (f *fakeDirectory) Lookup(_ context.Context, id int64) (*recipient.Recipient, error) {
	r, ok := f.users[id]
	if !ok {
		return nil, recipient.ErrNotFound
	}
	return &r, nil
}

func (f *fakeDirectory) Resolve(_ context.Context, filter recipient.Filter) ([]recipient.Recipient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	where, args := filter.SQL(1)
	f.filters = append(f.filters, where)
	f.args = append(f.args, args)
	if len(f.results) == 0 {
		return []recipient.Recipient{}, nil
	}
	out := f.results[0]
	f.results = f.results[1:]
	return out, nil
}

func (f *fakeDirectory) Broad(predicates ...recipient.Predicate) recipient.Filter {
	return recipient.Policy{}.Broad(predicates...)
}

type deliverCall struct {
	ids  []int64
	msg  channels.Message
	rate int
}

type fakeDeliverer struct {
	mu      sync.Mutex
	fail    map[int64]bool
	calls   []deliverCall
	failAll bool
}

func (f *fakeDeliverer) DeliverMany(_ context.Context, ids []int64, msg channels.Message, rate int) []delivery.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, deliverCall{ids: ids, msg: msg, rate: rate})
	results := make([]delivery.Result, len(ids))
	for i, id := range ids {
		ok := !f.failAll && !f.fail[id]
		results[i] = delivery.Result{RecipientID: id, Success: ok}
	}
	return results
}

func (f *fakeDeliverer) DefaultRateLimit() int { return 100 }

type fakeBroadcaster struct {
	mu     sync.Mutex
	topics []string
	msgs   []channels.Message
	err    error
}

func (f *fakeBroadcaster) Broadcast(_ context.Context, topic string, msg channels.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	f.msgs = append(f.msgs, msg)
	if f.err != nil {
		return "", f.err
	}
	return "projects/p/messages/1", nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []queue.AlertEvent
}

func (f *fakeEvents) PublishAlertEvent(_ context.Context, ev queue.AlertEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

type fakeClaimer struct {
	claimed map[int64]bool
}

func (f *fakeClaimer) ClaimAlert(_ context.Context, id int64, _ time.Duration) (bool, error) {
	if f.claimed[id] {
		return false, nil
	}
	f.claimed[id] = true
	return true, nil
}

// inlineTasks runs submitted tasks synchronously
type inlineTasks struct{}

func (inlineTasks) SubmitDetached(task worker.Task) error {
	task(context.Background())
	return nil
}

type fixture struct {
	repo   *fakeRepo
	dir    *fakeDirectory
	del    *fakeDeliverer
	topics *fakeBroadcaster
	events *fakeEvents
	claims *fakeClaimer
	svc    *Service
}

func newFixture() *fixture {
	return newFixtureWithTasks(inlineTasks{})
}

func newFixtureWithTasks(tasks Submitter) *fixture {
	f := &fixture{
		repo:   newFakeRepo(),
		dir:    &fakeDirectory{users: map[int64]recipient.Recipient{}},
		del:    &fakeDeliverer{fail: map[int64]bool{}},
		topics: &fakeBroadcaster{},
		events: &fakeEvents{},
		claims: &fakeClaimer{claimed: map[int64]bool{}},
	}
	f.svc = NewService(Deps{
		Repo:       f.repo,
		Recipients: f.dir,
		Delivery:   f.del,
		Topics:     f.topics,
		Events:     f.events,
		Claims:     f.claims,
		Tasks:      tasks,
		Logger:     zap.NewNop(),
	}, Options{FallbackTopic: "alerts", EmergencyRateLimit: 1000})
	return f
}

func ptr[T any](v T) *T { return &v }

func people(ids ...int64) []recipient.Recipient {
	out := make([]recipient.Recipient, 0, len(ids))
	for _, id := range ids {
		out = append(out, recipient.Recipient{ID: id, FCMToken: "t"})
	}
	return out
}

func TestStatusCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusActive, StatusAcknowledged, true},
		{StatusActive, StatusResolved, true},
		{StatusAcknowledged, StatusResolved, true},
		{StatusAcknowledged, StatusActive, false},
		{StatusAcknowledged, StatusAcknowledged, false},
		{StatusResolved, StatusActive, false},
		{StatusResolved, StatusAcknowledged, false},
		{StatusResolved, StatusResolved, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Create(context.Background(), CreateRequest{Message: "no category"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Create(context.Background(), CreateRequest{Category: "x", Message: "m", Severity: "extreme"})
	require.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, f.repo.inserted)
}

func TestCreate_DefaultsAndTargetUser(t *testing.T) {
	f := newFixture()

	out, err := f.svc.Create(context.Background(), CreateRequest{Category: "medical", Message: "check in", UserID: ptr(int64(7))})
	require.NoError(t, err)

	assert.Equal(t, SeverityMedium, out.Record.Severity)
	assert.Equal(t, StatusActive, out.Record.Status)
	assert.Equal(t, SourceService, out.Record.Source)
	assert.NotZero(t, out.Record.ID)

	require.Len(t, f.del.calls, 1)
	assert.Equal(t, []int64{7}, f.del.calls[0].ids)
	assert.Equal(t, out.Record.ID, f.del.calls[0].msg.Data["alertId"])
	assert.Equal(t, delivery.Summary{Targeted: 1, Delivered: 1}, out.Delivery.Summary)
	assert.Nil(t, out.Delivery.Broadcast)
	assert.Empty(t, f.topics.topics)

	require.Len(t, f.events.events, 1)
	assert.Equal(t, queue.EventAlertCreated, f.events.events[0].Kind)
}

func TestCreate_TargetUnitUsesBroadFilter(t *testing.T) {
	f := newFixture()
	f.dir.results = [][]recipient.Recipient{people(3, 4)}

	out, err := f.svc.Create(context.Background(), CreateRequest{Category: "weather", Message: "storm", Unit: ptr("alpha")})
	require.NoError(t, err)

	require.Len(t, f.dir.filters, 1)
	assert.Contains(t, f.dir.filters[0], "unit = $1")
	assert.Contains(t, f.dir.filters[0], "fcm_token")
	assert.Equal(t, []int64{3, 4}, f.del.calls[0].ids)
	assert.Equal(t, 2, out.Delivery.Delivered)
}

func TestCreate_NoTargetBroadcasts(t *testing.T) {
	f := newFixture()

	out, err := f.svc.Create(context.Background(), CreateRequest{Category: "general", Message: "drill at 1400"})
	require.NoError(t, err)

	assert.Empty(t, f.del.calls)
	require.NotNil(t, out.Delivery.Broadcast)
	assert.True(t, out.Delivery.Broadcast.Success)
	assert.Equal(t, []string{"alerts"}, f.topics.topics)
}

func TestCreate_AllFailedFallsBackToTopicOnce(t *testing.T) {
	f := newFixture()
	f.del.failAll = true
	f.dir.results = [][]recipient.Recipient{people(1, 2, 3)}

	out, err := f.svc.Create(context.Background(), CreateRequest{Category: "weather", Message: "storm", Unit: ptr("alpha")})
	require.NoError(t, err)

	assert.Equal(t, 3, out.Delivery.Failed)
	require.NotNil(t, out.Delivery.Broadcast)
	assert.Equal(t, "all_failed", out.Delivery.Broadcast.Reason)
	assert.Len(t, f.topics.topics, 1)
}

func TestCreate_PartialFailureDoesNotBroadcast(t *testing.T) {
	f := newFixture()
	f.del.fail[2] = true
	f.dir.results = [][]recipient.Recipient{people(1, 2)}

	out, err := f.svc.Create(context.Background(), CreateRequest{Category: "weather", Message: "storm", Unit: ptr("alpha")})
	require.NoError(t, err)

	assert.Equal(t, delivery.Summary{Targeted: 2, Delivered: 1, Failed: 1}, out.Delivery.Summary)
	assert.Nil(t, out.Delivery.Broadcast)
	assert.Empty(t, f.topics.topics)
}

func TestCreate_BroadcastFailureReported(t *testing.T) {
	f := newFixture()
	f.topics.err = errors.New("topic unavailable")

	out, err := f.svc.Create(context.Background(), CreateRequest{Category: "general", Message: "m"})
	require.NoError(t, err)
	require.NotNil(t, out.Delivery.Broadcast)
	assert.False(t, out.Delivery.Broadcast.Success)
	assert.Contains(t, out.Delivery.Broadcast.Error, "topic unavailable")
}

func TestCreate_EmergencyCategoryUsesEmergencyRouting(t *testing.T) {
	f := newFixture()
	f.dir.results = [][]recipient.Recipient{people(10, 11)}

	out, err := f.svc.Create(context.Background(), CreateRequest{
		Category:  TypeEmergency,
		Message:   "evacuate",
		Severity:  SeverityCritical,
		CreatedBy: ptr(int64(10)),
	})
	require.NoError(t, err)

	require.Len(t, f.dir.filters, 1)
	assert.Contains(t, f.dir.filters[0], "role = ANY")
	require.Len(t, f.del.calls, 1)
	assert.Equal(t, []int64{11}, f.del.calls[0].ids, "creator excluded")
	assert.Equal(t, 1000, f.del.calls[0].rate)
	assert.Equal(t, 1000, out.Delivery.RateLimit)
}

func TestZoneBreach(t *testing.T) {
	f := newFixture()
	f.repo.zones[5] = &Zone{ID: 5, Name: "Sector 5", ZoneType: "restricted"}
	f.dir.users[20] = recipient.Recipient{ID: 20, Username: "pvt.jones", Role: recipient.RoleSoldier, Unit: "alpha"}
	f.dir.results = [][]recipient.Recipient{people(30, 31)}

	out, err := f.svc.ZoneBreach(context.Background(), ZoneBreachRequest{
		ZoneID:     5,
		UserID:     20,
		BreachType: "entered",
		Latitude:   ptr(34.05),
		Longitude:  ptr(-118.25),
	})
	require.NoError(t, err)

	assert.Equal(t, TypeZoneBreach, out.Record.Type)
	assert.Equal(t, SeverityHigh, out.Record.Severity)
	assert.Equal(t, "Zone Breach Alert - Sector 5", out.Record.Title)
	assert.Equal(t, "pvt.jones has entered Sector 5 (restricted)", out.Record.Message)
	require.Len(t, f.repo.inserted, 1, "record persisted before fan-out")

	require.Len(t, f.dir.filters, 1)
	where := f.dir.filters[0]
	assert.Contains(t, where, "role = ANY")
	assert.Contains(t, where, "unit = ")
	assert.Contains(t, where, "NOT (id = ANY")

	require.Len(t, f.del.calls, 1)
	msg := f.del.calls[0].msg
	assert.Equal(t, channels.TypeZoneBreach, msg.Type())
	assert.Equal(t, "entered", msg.Data["breachType"])
	assert.Equal(t, "alpha", msg.Data["userUnit"])
	assert.Equal(t, 2, out.Delivery.Delivered)
}

func TestZoneBreach_UnknownZoneOrUser(t *testing.T) {
	f := newFixture()
	f.repo.zones[5] = &Zone{ID: 5, Name: "Sector 5"}

	_, err := f.svc.ZoneBreach(context.Background(), ZoneBreachRequest{ZoneID: 9, UserID: 20, BreachType: "entered"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.ZoneBreach(context.Background(), ZoneBreachRequest{ZoneID: 5, UserID: 20, BreachType: "entered"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, f.repo.inserted)
}

func TestZoneBreach_NoLeadersStillPersists(t *testing.T) {
	f := newFixture()
	f.repo.zones[5] = &Zone{ID: 5, Name: "Sector 5"}
	f.dir.users[20] = recipient.Recipient{ID: 20, Username: "pvt.jones", Unit: "alpha"}

	out, err := f.svc.ZoneBreach(context.Background(), ZoneBreachRequest{ZoneID: 5, UserID: 20, BreachType: "exited"})
	require.NoError(t, err)
	assert.Len(t, f.repo.inserted, 1)
	assert.Zero(t, out.Delivery.Targeted)
	assert.Empty(t, f.del.calls)
}

func TestEmergency_UnionOfUsersAndUnitsExcludesCreator(t *testing.T) {
	f := newFixture()
	f.dir.results = [][]recipient.Recipient{people(2, 3, 4)}

	out, err := f.svc.Emergency(context.Background(), EmergencyRequest{
		Title:         "Fire",
		Message:       "Building 4",
		Severity:      SeverityCritical,
		AffectedUsers: []int64{1, 2, 9},
		AffectedUnits: []string{"alpha", "bravo"},
		CreatedBy:     ptr(int64(9)),
	})
	require.NoError(t, err)

	require.Len(t, f.del.calls, 1)
	assert.ElementsMatch(t, []int64{1, 2, 3, 4}, f.del.calls[0].ids)
	assert.Equal(t, 1000, f.del.calls[0].rate)
	assert.Equal(t, "EMERGENCY: Fire", f.del.calls[0].msg.Title)
	assert.Equal(t, "urgent", f.del.calls[0].msg.Data["priority"])
	assert.Equal(t, 4, out.Delivery.Targeted)
}

func TestEmergency_UnitsWithoutMembersFallBackToLeaders(t *testing.T) {
	f := newFixture()
	f.dir.results = [][]recipient.Recipient{{}, people(50, 51)}

	out, err := f.svc.Emergency(context.Background(), EmergencyRequest{
		Title:         "Fire",
		Message:       "Building 4",
		AffectedUnits: []string{"delta"},
		CreatedBy:     ptr(int64(51)),
	})
	require.NoError(t, err)

	require.Len(t, f.dir.filters, 2)
	assert.Contains(t, f.dir.filters[0], "unit = $1")
	assert.Contains(t, f.dir.filters[1], "role = ANY")
	require.Len(t, f.del.calls, 1)
	assert.Equal(t, []int64{50}, f.del.calls[0].ids)
	assert.Nil(t, out.Delivery.Broadcast)
}

func TestEmergency_CriticalAllFailedBroadcastsOnce(t *testing.T) {
	f := newFixture()
	f.dir.results = [][]recipient.Recipient{people(1, 2, 3)}
	f.del.failAll = true

	out, err := f.svc.Create(context.Background(), CreateRequest{
		Category: TypeEmergency,
		Message:  "fire",
		Severity: SeverityCritical,
	})
	require.NoError(t, err)

	assert.Equal(t, SeverityCritical, out.Record.Severity)
	assert.Equal(t, 1000, f.del.calls[0].rate)
	assert.Equal(t, delivery.Summary{Targeted: 3, Failed: 3}, out.Delivery.Summary)
	require.NotNil(t, out.Delivery.Broadcast)
	assert.Equal(t, "all_failed", out.Delivery.Broadcast.Reason)
	assert.Equal(t, []string{"alerts"}, f.topics.topics)
}

func TestEmergency_NonCriticalUsesDefaultRate(t *testing.T) {
	f := newFixture()

	out, err := f.svc.Emergency(context.Background(), EmergencyRequest{
		Title:         "Flood",
		Message:       "Low ground",
		AffectedUsers: []int64{1},
	})
	require.NoError(t, err)
	assert.Equal(t, SeverityHigh, out.Record.Severity)
	assert.Equal(t, 100, f.del.calls[0].rate)
	assert.Equal(t, "high", f.del.calls[0].msg.Data["priority"])
}

func TestEmergency_NoRecipientsBroadcasts(t *testing.T) {
	f := newFixture()

	out, err := f.svc.Emergency(context.Background(), EmergencyRequest{Title: "Fire", Message: "m"})
	require.NoError(t, err)
	assert.Empty(t, f.del.calls)
	require.NotNil(t, out.Delivery.Broadcast)
	assert.Equal(t, "no_recipients", out.Delivery.Broadcast.Reason)
	assert.Len(t, f.topics.topics, 1)
}

func TestAcknowledgeAndResolve(t *testing.T) {
	f := newFixture()
	out, err := f.svc.Create(context.Background(), CreateRequest{Category: "medical", Message: "m", UserID: ptr(int64(7))})
	require.NoError(t, err)
	id := out.Record.ID

	rec, err := f.svc.Acknowledge(context.Background(), id, 3)
	require.NoError(t, err)
	assert.Equal(t, StatusAcknowledged, rec.Status)
	assert.Equal(t, int64(3), *rec.AcknowledgedBy)

	_, err = f.svc.Acknowledge(context.Background(), id, 3)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	rec, err = f.svc.Resolve(context.Background(), id, 4)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, rec.Status)

	_, err = f.svc.Resolve(context.Background(), id, 4)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.Acknowledge(context.Background(), 999, 3)
	assert.ErrorIs(t, err, ErrNotFound)

	// create + two side notifications to the target user
	require.Len(t, f.del.calls, 3)
	assert.Equal(t, []int64{7}, f.del.calls[1].ids)
	assert.Equal(t, "acknowledged", f.del.calls[1].msg.Data["status"])

	kinds := make([]string, 0, len(f.events.events))
	for _, ev := range f.events.events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []string{queue.EventAlertCreated, queue.EventAlertAcknowledged, queue.EventAlertResolved}, kinds)
}

func TestResolve_SideNotificationFailureDoesNotFail(t *testing.T) {
	f := newFixture()
	f.repo.records[1] = &Record{ID: 1, Type: "medical", Title: "t", Status: StatusActive, CreatedBy: ptr(int64(5))}
	f.del.failAll = true

	rec, err := f.svc.Resolve(context.Background(), 1, 8)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, rec.Status)
	require.Len(t, f.del.calls, 1)
	assert.Equal(t, []int64{5}, f.del.calls[0].ids, "creator notified")
}

func TestResolve_UnitAlertNotifiesUnit(t *testing.T) {
	f := newFixture()
	f.repo.records[7] = &Record{ID: 7, Type: "perimeter", Title: "Fence", Status: StatusActive, Unit: ptr("Alpha")}
	f.dir.results = [][]recipient.Recipient{people(11, 12)}
	f.del.failAll = true

	rec, err := f.svc.Resolve(context.Background(), 7, 3)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, rec.Status)
	assert.Equal(t, int64(3), *rec.ResolvedBy)

	require.Len(t, f.dir.filters, 1)
	assert.Contains(t, f.dir.filters[0], "unit = $1")
	assert.Contains(t, f.dir.filters[0], "NOT (id = ANY")
	assert.Equal(t, "Alpha", f.dir.args[0][0])
	require.Len(t, f.del.calls, 1)
	assert.Equal(t, []int64{11, 12}, f.del.calls[0].ids)
}

func TestHandleInserted_RunsOnBusyPool(t *testing.T) {
	pool, err := worker.NewPool(context.Background(), 1, zap.NewNop())
	require.NoError(t, err)
	defer pool.Shutdown()
	f := newFixtureWithTasks(pool)

	payload := []byte(`{"id": 9, "alert_type": "medical", "message": "m", "user_id": 5, "source": "mobile"}`)
	done := make(chan error, 1)
	require.NoError(t, pool.SubmitDetached(func(ctx context.Context) {
		done <- f.svc.HandleInserted(ctx, payload)
	}))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("HandleInserted blocked while holding the only worker")
	}
	assert.Equal(t, []int64{5}, f.del.calls[0].ids)
	f.events.mu.Lock()
	defer f.events.mu.Unlock()
	assert.Len(t, f.events.events, 1, "event published on the calling worker")
}

func TestHandleInserted(t *testing.T) {
	f := newFixture()
	f.dir.results = [][]recipient.Recipient{people(40, 41)}

	payload := []byte(`{"id": 77, "alert_type": "medical", "title": "Injury", "message": "Man down",
		"severity": "high", "status": "active", "unit": "bravo", "source": "mobile"}`)
	require.NoError(t, f.svc.HandleInserted(context.Background(), payload))

	require.Len(t, f.del.calls, 1)
	assert.Equal(t, []int64{40, 41}, f.del.calls[0].ids)
	assert.Equal(t, int64(77), f.del.calls[0].msg.Data["alertId"])
	assert.Contains(t, f.dir.filters[0], "unit = $1")

	// a second replica sees the same notification
	require.NoError(t, f.svc.HandleInserted(context.Background(), payload))
	assert.Len(t, f.del.calls, 1)
}

func TestHandleInserted_SkipsOwnRows(t *testing.T) {
	f := newFixture()

	payload := []byte(`{"id": 78, "alert_type": "medical", "message": "m", "user_id": 3, "source": "service"}`)
	require.NoError(t, f.svc.HandleInserted(context.Background(), payload))
	assert.Empty(t, f.del.calls)
	assert.Empty(t, f.topics.topics)
}

func TestHandleInserted_NoTargetGoesToLeaders(t *testing.T) {
	f := newFixture()

	payload := []byte(`{"id": 79, "alert_type": "perimeter", "message": "fence cut"}`)
	require.NoError(t, f.svc.HandleInserted(context.Background(), payload))

	require.Len(t, f.dir.filters, 1)
	assert.Contains(t, f.dir.filters[0], "role = ANY")
	assert.Equal(t, []string{"alerts"}, f.topics.topics, "no leaders, broadcast instead")
}

func TestHandleInserted_BadPayload(t *testing.T) {
	f := newFixture()
	assert.Error(t, f.svc.HandleInserted(context.Background(), []byte("{")))
}
