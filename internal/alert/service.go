package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/alexnthnz/alert-fanout/internal/channels"
	"github.com/alexnthnz/alert-fanout/internal/delivery"
	"github.com/alexnthnz/alert-fanout/internal/monitoring"
	"github.com/alexnthnz/alert-fanout/internal/queue"
	"github.com/alexnthnz/alert-fanout/internal/recipient"
	"github.com/alexnthnz/alert-fanout/internal/worker"
)

// Repository persists alerts and reads zones
type Repository interface {
	Insert(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id int64) (*Record, error)
	Transition(ctx context.Context, id int64, next Status, actor int64) (*Record, error)
	GetZone(ctx context.Context, id int64) (*Zone, error)
}

// Directory resolves recipients
type Directory interface {
	Lookup(ctx context.Context, id int64) (*recipient.Recipient, error)
	Resolve(ctx context.Context, filter recipient.Filter) ([]recipient.Recipient, error)
	Broad(predicates ...recipient.Predicate) recipient.Filter
}

// Deliverer sends messages to recipients
type Deliverer interface {
	DeliverMany(ctx context.Context, ids []int64, msg channels.Message, rateLimit int) []delivery.Result
	DefaultRateLimit() int
}

// Broadcaster sends a message to a topic
type Broadcaster interface {
	Broadcast(ctx context.Context, topic string, msg channels.Message) (string, error)
}

// EventPublisher publishes lifecycle events
type EventPublisher interface {
	PublishAlertEvent(ctx context.Context, ev queue.AlertEvent) error
}

// Claimer grants one replica the right to process an inserted alert
type Claimer interface {
	ClaimAlert(ctx context.Context, alertID int64, ttl time.Duration) (bool, error)
}

// Submitter runs best-effort work off the request path
type Submitter interface {
	SubmitDetached(task worker.Task) error
}

// Deps are the collaborators of a Service. Events and Claims may be nil.
type Deps struct {
	Repo       Repository
	Recipients Directory
	Delivery   Deliverer
	Topics     Broadcaster
	Events     EventPublisher
	Claims     Claimer
	Tasks      Submitter
	Metrics    *monitoring.Metrics
	Logger     *zap.Logger
}

// Options tune routing
type Options struct {
	FallbackTopic      string
	EmergencyRateLimit int
	ClaimTTL           time.Duration
}

// Service produces alerts and fans them out
type Service struct {
	repo       Repository
	recipients Directory
	delivery   Deliverer
	topics     Broadcaster
	events     EventPublisher
	claims     Claimer
	tasks      Submitter
	metrics    *monitoring.Metrics
	logger     *zap.Logger
	validate   *validator.Validate
	opts       Options
}

// NewService creates a new alert service
func NewService(deps Deps, opts Options) *Service {
	if opts.FallbackTopic == "" {
		opts.FallbackTopic = "alerts"
	}
	if opts.EmergencyRateLimit <= 0 {
		opts.EmergencyRateLimit = 1000
	}
	if opts.ClaimTTL <= 0 {
		opts.ClaimTTL = 10 * time.Minute
	}
	return &Service{
		repo:       deps.Repo,
		recipients: deps.Recipients,
		delivery:   deps.Delivery,
		topics:     deps.Topics,
		events:     deps.Events,
		claims:     deps.Claims,
		tasks:      deps.Tasks,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		validate:   validator.New(),
		opts:       opts,
	}
}

// Get retrieves an alert by id
func (s *Service) Get(ctx context.Context, id int64) (*Record, error) {
	return s.repo.Get(ctx, id)
}

// Create persists a manually created alert and notifies its audience: the
// target user, else the target unit, else the fallback topic. Emergencies
// follow the emergency routing rules.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Outcome, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	rec := &Record{
		Type:      req.Category,
		Title:     req.Title,
		Message:   req.Message,
		Severity:  req.Severity,
		Status:    StatusActive,
		UserID:    req.UserID,
		Unit:      req.Unit,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Source:    SourceService,
		CreatedBy: req.CreatedBy,
	}
	if rec.Severity == "" {
		rec.Severity = SeverityMedium
	}
	if rec.Title == "" {
		rec.Title = defaultTitle(rec.Type)
	}
	if req.UserID != nil {
		rec.AffectedUsers = []int64{*req.UserID}
	}
	if req.Unit != nil && *req.Unit != "" {
		rec.AffectedUnits = []string{*req.Unit}
	}

	if err := s.insert(ctx, rec); err != nil {
		return nil, err
	}

	msg := messageFor(rec)
	start := time.Now()
	var out Delivery

	switch {
	case rec.Type == TypeEmergency:
		out = s.emergencyFanOut(ctx, rec, msg)
	case rec.UserID != nil:
		out = s.fanOut(ctx, []int64{*rec.UserID}, msg, 0)
	case rec.Unit != nil && *rec.Unit != "":
		ids, err := s.resolveIDs(ctx, s.recipients.Broad(recipient.InUnit(*rec.Unit)))
		if err != nil {
			s.logger.Error("Failed to resolve unit recipients", zap.Int64("alert_id", rec.ID), zap.Error(err))
		}
		out = s.fanOut(ctx, ids, msg, 0)
	default:
		out = Delivery{Broadcast: s.broadcast(ctx, msg, "no_target")}
	}

	s.metrics.RecordFanOut("api", time.Since(start).Seconds())
	s.publish(ctx, queue.EventAlertCreated, rec, rec.CreatedBy, out.Summary)
	return &Outcome{Record: rec, Delivery: out}, nil
}

// ZoneBreach records a boundary crossing by a user and notifies the
// commanders, supervisors and security staff of their unit.
func (s *Service) ZoneBreach(ctx context.Context, req ZoneBreachRequest) (*Outcome, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	zone, err := s.repo.GetZone(ctx, req.ZoneID)
	if err != nil {
		return nil, err
	}
	actor, err := s.recipients.Lookup(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, recipient.ErrNotFound) {
			return nil, fmt.Errorf("user %d: %w", req.UserID, ErrNotFound)
		}
		return nil, err
	}

	title := fmt.Sprintf("Zone Breach Alert - %s", zone.Name)
	body := fmt.Sprintf("%s has %s %s (%s)", actor.Username, req.BreachType, zone.Name, zone.ZoneType)

	rec := &Record{
		Type:          TypeZoneBreach,
		Title:         title,
		Message:       body,
		Severity:      SeverityHigh,
		Status:        StatusActive,
		ZoneID:        &zone.ID,
		AffectedUsers: []int64{actor.ID},
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		Source:        SourceService,
		CreatedBy:     &actor.ID,
	}
	if actor.Unit != "" {
		unit := actor.Unit
		rec.Unit = &unit
		rec.AffectedUnits = []string{unit}
	}

	if err := s.insert(ctx, rec); err != nil {
		return nil, err
	}

	data := map[string]any{
		"type":       channels.TypeZoneBreach,
		"category":   TypeZoneBreach,
		"priority":   "high",
		"alertId":    rec.ID,
		"zoneId":     zone.ID,
		"userId":     actor.ID,
		"breachType": req.BreachType,
		"zoneName":   zone.Name,
		"zoneType":   zone.ZoneType,
		"username":   actor.Username,
		"userRole":   string(actor.Role),
		"userUnit":   actor.Unit,
	}
	if req.Latitude != nil {
		data["latitude"] = *req.Latitude
	}
	if req.Longitude != nil {
		data["longitude"] = *req.Longitude
	}
	msg := channels.NewMessage(title, body, data)

	start := time.Now()
	var ids []int64
	if actor.Unit != "" {
		ids, err = s.resolveIDs(ctx, s.recipients.Broad(
			recipient.RoleIn(recipient.RoleCommander, recipient.RoleSupervisor, recipient.RoleSecurity),
			recipient.InUnit(actor.Unit),
			recipient.ExcludeIDs(actor.ID),
		))
		if err != nil {
			s.logger.Error("Failed to resolve zone breach recipients", zap.Int64("alert_id", rec.ID), zap.Error(err))
		}
	}
	out := s.fanOut(ctx, ids, msg, 0)

	s.metrics.RecordFanOut("zone_breach", time.Since(start).Seconds())
	s.publish(ctx, queue.EventAlertCreated, rec, &actor.ID, out.Summary)
	s.logger.Info("Zone breach alert sent",
		zap.Int64("alert_id", rec.ID),
		zap.Int64("zone_id", zone.ID),
		zap.Int64("user_id", actor.ID),
		zap.Int("delivered", out.Delivered),
		zap.Int("targeted", out.Targeted),
	)
	return &Outcome{Record: rec, Delivery: out}, nil
}

// Emergency raises an emergency alert
func (s *Service) Emergency(ctx context.Context, req EmergencyRequest) (*Outcome, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	rec := &Record{
		Type:          TypeEmergency,
		Title:         req.Title,
		Message:       req.Message,
		Severity:      req.Severity,
		Status:        StatusActive,
		AffectedUnits: req.AffectedUnits,
		AffectedUsers: req.AffectedUsers,
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		Source:        SourceService,
		CreatedBy:     req.CreatedBy,
	}
	if rec.Severity == "" {
		rec.Severity = SeverityHigh
	}

	if err := s.insert(ctx, rec); err != nil {
		return nil, err
	}

	start := time.Now()
	out := s.emergencyFanOut(ctx, rec, messageFor(rec))
	s.metrics.RecordFanOut("emergency", time.Since(start).Seconds())
	s.publish(ctx, queue.EventAlertCreated, rec, rec.CreatedBy, out.Summary)
	return &Outcome{Record: rec, Delivery: out}, nil
}

// emergencyFanOut targets affected users and members of affected units, or
// every commander and supervisor when neither is given. The creator is
// never notified of their own emergency.
func (s *Service) emergencyFanOut(ctx context.Context, rec *Record, msg channels.Message) Delivery {
	var exclude []int64
	if rec.CreatedBy != nil {
		exclude = append(exclude, *rec.CreatedBy)
	}

	seen := make(map[int64]bool)
	var ids []int64
	add := func(id int64) {
		if seen[id] || slices.Contains(exclude, id) {
			return
		}
		seen[id] = true
		ids = append(ids, id)
	}

	for _, id := range rec.AffectedUsers {
		add(id)
	}
	if len(rec.AffectedUnits) > 0 {
		members, err := s.resolveIDs(ctx, s.recipients.Broad(
			recipient.InUnits(rec.AffectedUnits...),
			recipient.ExcludeIDs(exclude...),
		))
		if err != nil {
			s.logger.Error("Failed to resolve emergency units", zap.Int64("alert_id", rec.ID), zap.Error(err))
		}
		for _, id := range members {
			add(id)
		}
	}
	if len(ids) == 0 {
		leaders, err := s.resolveIDs(ctx, s.recipients.Broad(
			recipient.RoleIn(recipient.RoleCommander, recipient.RoleSupervisor),
			recipient.ExcludeIDs(exclude...),
		))
		if err != nil {
			s.logger.Error("Failed to resolve emergency leaders", zap.Int64("alert_id", rec.ID), zap.Error(err))
		}
		for _, id := range leaders {
			add(id)
		}
	}

	rate := 0
	if rec.Severity == SeverityCritical {
		rate = s.opts.EmergencyRateLimit
	}
	out := s.fanOut(ctx, ids, msg, rate)
	if out.Targeted == 0 && out.Broadcast == nil {
		out.Broadcast = s.broadcast(ctx, msg, "no_recipients")
	}
	return out
}

// Acknowledge moves an active alert to acknowledged
func (s *Service) Acknowledge(ctx context.Context, id, actor int64) (*Record, error) {
	return s.transition(ctx, id, StatusAcknowledged, actor, queue.EventAlertAcknowledged)
}

// Resolve moves an active or acknowledged alert to resolved
func (s *Service) Resolve(ctx context.Context, id, actor int64) (*Record, error) {
	return s.transition(ctx, id, StatusResolved, actor, queue.EventAlertResolved)
}

func (s *Service) transition(ctx context.Context, id int64, next Status, actor int64, kind string) (*Record, error) {
	rec, err := s.repo.Transition(ctx, id, next, actor)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Alert status changed",
		zap.Int64("alert_id", rec.ID),
		zap.String("status", string(rec.Status)),
		zap.Int64("actor_id", actor),
	)
	s.publish(ctx, kind, rec, &actor, delivery.Summary{})
	s.bestEffort(ctx, "status_notification", func(ctx context.Context) error {
		return s.notifyStatusChange(ctx, rec, actor)
	})
	return rec, nil
}

// notifyStatusChange tells the alert's audience that its status changed:
// the target user, else the target unit, else the creator.
func (s *Service) notifyStatusChange(ctx context.Context, rec *Record, actor int64) error {
	var ids []int64
	switch {
	case rec.UserID != nil:
		ids = []int64{*rec.UserID}
	case rec.Unit != nil && *rec.Unit != "":
		var err error
		ids, err = s.resolveIDs(ctx, s.recipients.Broad(recipient.InUnit(*rec.Unit), recipient.ExcludeIDs(actor)))
		if err != nil {
			return err
		}
	case rec.CreatedBy != nil && *rec.CreatedBy != actor:
		ids = []int64{*rec.CreatedBy}
	}
	if len(ids) == 0 {
		return nil
	}

	title := fmt.Sprintf("Alert %s", rec.Status)
	body := fmt.Sprintf("%s was %s", rec.Title, rec.Status)
	msg := channels.NewMessage(title, body, map[string]any{
		"type":     channels.TypeAlert,
		"category": rec.Type,
		"alertId":  rec.ID,
		"status":   string(rec.Status),
		"priority": "normal",
	})

	results := s.delivery.DeliverMany(ctx, ids, msg, 0)
	if sum := delivery.Summarize(results); sum.Delivered == 0 {
		return fmt.Errorf("status notification for alert %d reached none of %d recipients", rec.ID, sum.Targeted)
	}
	return nil
}

// insertedRow is the payload of the insert notification
type insertedRow struct {
	ID        int64    `json:"id"`
	AlertType string   `json:"alert_type"`
	Title     string   `json:"title"`
	Message   string   `json:"message"`
	Severity  Severity `json:"severity"`
	Status    Status   `json:"status"`
	UserID    *int64   `json:"user_id"`
	Unit      *string  `json:"unit"`
	ZoneID    *int64   `json:"zone_id"`
	CreatedBy *int64   `json:"created_by"`
	Source    *string  `json:"source"`
}

// HandleInserted fans out an alert inserted directly into the database by
// another writer. Rows written by this service are skipped, as are rows
// already claimed by another replica.
func (s *Service) HandleInserted(ctx context.Context, payload []byte) error {
	var row insertedRow
	if err := json.Unmarshal(payload, &row); err != nil {
		return fmt.Errorf("failed to decode inserted alert: %w", err)
	}
	if row.Source != nil && *row.Source == SourceService {
		return nil
	}

	if s.claims != nil {
		claimed, err := s.claims.ClaimAlert(ctx, row.ID, s.opts.ClaimTTL)
		if err != nil {
			s.logger.Warn("Alert claim unavailable, processing anyway", zap.Int64("alert_id", row.ID), zap.Error(err))
		} else if !claimed {
			s.logger.Debug("Alert already claimed", zap.Int64("alert_id", row.ID))
			return nil
		}
	}

	rec := &Record{
		ID:        row.ID,
		Type:      row.AlertType,
		Title:     row.Title,
		Message:   row.Message,
		Severity:  row.Severity,
		Status:    row.Status,
		UserID:    row.UserID,
		Unit:      row.Unit,
		ZoneID:    row.ZoneID,
		CreatedBy: row.CreatedBy,
	}
	if rec.Severity == "" {
		rec.Severity = SeverityMedium
	}
	if rec.Title == "" {
		rec.Title = defaultTitle(rec.Type)
	}
	msg := messageFor(rec)

	var filter recipient.Filter
	var ids []int64
	switch {
	case rec.UserID != nil:
		ids = []int64{*rec.UserID}
	case rec.Unit != nil && *rec.Unit != "":
		filter = s.recipients.Broad(recipient.InUnit(*rec.Unit))
	default:
		filter = s.recipients.Broad(recipient.RoleIn(recipient.RoleCommander, recipient.RoleSupervisor))
	}
	if ids == nil {
		var err error
		ids, err = s.resolveIDs(ctx, filter)
		if err != nil {
			return fmt.Errorf("failed to resolve recipients for alert %d: %w", rec.ID, err)
		}
	}

	start := time.Now()
	out := s.fanOut(ctx, ids, msg, 0)
	if out.Targeted == 0 && out.Broadcast == nil {
		out.Broadcast = s.broadcast(ctx, msg, "no_recipients")
	}
	s.metrics.RecordFanOut("listener", time.Since(start).Seconds())
	s.metrics.RecordAlertCreated(rec.Type, string(rec.Severity))
	s.publish(ctx, queue.EventAlertCreated, rec, rec.CreatedBy, out.Summary)

	s.logger.Info("Processed inserted alert",
		zap.Int64("alert_id", rec.ID),
		zap.Int("delivered", out.Delivered),
		zap.Int("targeted", out.Targeted),
	)
	return nil
}

// fanOut delivers to ids and broadcasts to the fallback topic when at least
// one recipient was targeted and none was reached.
func (s *Service) fanOut(ctx context.Context, ids []int64, msg channels.Message, rate int) Delivery {
	if len(ids) == 0 {
		return Delivery{}
	}
	if rate <= 0 {
		rate = s.delivery.DefaultRateLimit()
	}

	results := s.delivery.DeliverMany(ctx, ids, msg, rate)
	out := Delivery{
		Summary:   delivery.Summarize(results),
		RateLimit: rate,
		Results:   results,
	}
	if out.Delivered == 0 {
		out.Broadcast = s.broadcast(ctx, msg, "all_failed")
	}
	return out
}

func (s *Service) broadcast(ctx context.Context, msg channels.Message, reason string) *Broadcast {
	b := &Broadcast{Topic: s.opts.FallbackTopic, Reason: reason}
	if s.topics == nil {
		b.Error = "topic broadcast unavailable"
		s.metrics.RecordBroadcast(reason, "failed")
		return b
	}

	id, err := s.topics.Broadcast(ctx, s.opts.FallbackTopic, msg)
	if err != nil {
		b.Error = err.Error()
		s.metrics.RecordBroadcast(reason, "failed")
		s.logger.Error("Topic broadcast failed", zap.String("topic", b.Topic), zap.String("reason", reason), zap.Error(err))
		return b
	}
	b.Success = true
	b.MessageID = id
	s.metrics.RecordBroadcast(reason, "sent")
	s.logger.Info("Topic broadcast sent", zap.String("topic", b.Topic), zap.String("reason", reason))
	return b
}

func (s *Service) insert(ctx context.Context, rec *Record) error {
	if err := s.repo.Insert(ctx, rec); err != nil {
		return err
	}
	s.metrics.RecordAlertCreated(rec.Type, string(rec.Severity))
	return nil
}

func (s *Service) resolveIDs(ctx context.Context, filter recipient.Filter) ([]int64, error) {
	recipients, err := s.recipients.Resolve(ctx, filter)
	if err != nil {
		return nil, err
	}
	return recipient.IDs(recipients), nil
}

// publish emits a lifecycle event in the background
func (s *Service) publish(ctx context.Context, kind string, rec *Record, actor *int64, sum delivery.Summary) {
	if s.events == nil {
		return
	}
	ev := queue.AlertEvent{
		Kind:      kind,
		AlertID:   rec.ID,
		AlertType: rec.Type,
		Severity:  string(rec.Severity),
		Status:    string(rec.Status),
		ActorID:   actor,
		Targeted:  sum.Targeted,
		Delivered: sum.Delivered,
	}
	if rec.Unit != nil {
		ev.Unit = *rec.Unit
	}
	s.bestEffort(ctx, "publish_event", func(ctx context.Context) error {
		return s.events.PublishAlertEvent(ctx, ev)
	})
}

// bestEffort runs fn on the worker pool and logs its failure. When every
// worker is busy fn runs on the calling goroutine instead, detached from
// ctx cancellation, so a task already on the pool never waits for a slot.
func (s *Service) bestEffort(ctx context.Context, name string, fn func(ctx context.Context) error) {
	if s.tasks == nil {
		return
	}
	task := func(ctx context.Context) {
		if err := fn(ctx); err != nil {
			s.logger.Warn("Best-effort task failed", zap.String("task", name), zap.Error(err))
		}
	}
	err := s.tasks.SubmitDetached(task)
	if errors.Is(err, worker.ErrPoolOverloaded) {
		task(context.WithoutCancel(ctx))
		return
	}
	if err != nil {
		s.logger.Warn("Failed to schedule best-effort task", zap.String("task", name), zap.Error(err))
	}
}

func messageFor(rec *Record) channels.Message {
	msgType := channels.TypeAlert
	priority := "normal"
	title := rec.Title
	switch rec.Type {
	case TypeZoneBreach:
		msgType = channels.TypeZoneBreach
		priority = "high"
	case TypeEmergency:
		msgType = channels.TypeEmergency
		priority = "high"
		if rec.Severity == SeverityCritical {
			priority = "urgent"
		}
		title = "EMERGENCY: " + rec.Title
	default:
		if rec.Severity == SeverityHigh || rec.Severity == SeverityCritical {
			priority = "high"
		}
	}

	data := map[string]any{
		"type":     msgType,
		"category": rec.Type,
		"alertId":  rec.ID,
		"severity": string(rec.Severity),
		"priority": priority,
	}
	if rec.Unit != nil {
		data["unit"] = *rec.Unit
	}
	if rec.ZoneID != nil {
		data["zoneId"] = *rec.ZoneID
	}
	if rec.Latitude != nil {
		data["latitude"] = *rec.Latitude
	}
	if rec.Longitude != nil {
		data["longitude"] = *rec.Longitude
	}
	if len(rec.AffectedUnits) > 0 {
		data["affectedUnits"] = rec.AffectedUnits
	}
	return channels.NewMessage(title, rec.Message, data)
}

func defaultTitle(alertType string) string {
	return fmt.Sprintf("New %s alert", alertType)
}
