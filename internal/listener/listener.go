// Package listener keeps a dedicated PostgreSQL connection subscribed to the
// alert insert channel and hands each notification payload to a handler.
package listener

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/alexnthnz/alert-fanout/internal/config"
	"github.com/alexnthnz/alert-fanout/internal/monitoring"
	"github.com/alexnthnz/alert-fanout/internal/worker"
)

// ErrGaveUp is returned by Run once the reconnect budget is exhausted
var ErrGaveUp = errors.New("listener gave up reconnecting")

// State of the listener connection
type State int32

const (
	StateDisconnected State = iota
	StateListening
)

func (s State) String() string {
	if s == StateListening {
		return "listening"
	}
	return "disconnected"
}

// Conn is the part of *pgx.Conn the listener uses
type Conn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// Dialer opens a new listener connection
type Dialer func(ctx context.Context) (Conn, error)

// Handler processes one notification payload
type Handler func(ctx context.Context, payload []byte) error

// Submitter runs handlers off the receive loop
type Submitter interface {
	SubmitDetached(task worker.Task) error
}

// PgxDialer dials dsn with pgx
func PgxDialer(dsn string) Dialer {
	return func(ctx context.Context) (Conn, error) {
		conn, err := pgx.Connect(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

var channelName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

const defaultMaxAttempts = 10

// Supervisor owns the listener connection and reconnects it on failure
type Supervisor struct {
	dial        Dialer
	channel     string
	handler     Handler
	tasks       Submitter
	metrics     *monitoring.Metrics
	logger      *zap.Logger
	delay       time.Duration
	maxAttempts int

	state atomic.Int32
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a supervisor. tasks may be nil, in which case handlers run
// inline on the receive loop.
func New(
	dial Dialer,
	cfg config.ListenerConfig,
	handler Handler,
	tasks Submitter,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) (*Supervisor, error) {
	if !channelName.MatchString(cfg.Channel) {
		return nil, fmt.Errorf("invalid listener channel name %q", cfg.Channel)
	}
	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}
	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Supervisor{
		dial:        dial,
		channel:     cfg.Channel,
		handler:     handler,
		tasks:       tasks,
		metrics:     metrics,
		logger:      logger,
		delay:       delay,
		maxAttempts: maxAttempts,
		sleep:       sleepContext,
	}, nil
}

// State returns the current connection state
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

func (s *Supervisor) setState(st State) {
	s.state.Store(int32(st))
	s.metrics.SetListening(st == StateListening)
}

// ensureTrigger installs the insert trigger that publishes each new alert
// row as JSON on the listener channel. It is safe to run repeatedly.
func (s *Supervisor) ensureTrigger(ctx context.Context, conn Conn) error {
	if _, err := conn.Exec(ctx, triggerSQL(s.channel)); err != nil {
		return fmt.Errorf("failed to install alert trigger: %w", err)
	}
	return nil
}

func triggerSQL(channel string) string {
	return fmt.Sprintf(`
CREATE OR REPLACE FUNCTION notify_%[1]s() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify('%[1]s', row_to_json(NEW)::text);
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DO $$
BEGIN
	IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = '%[1]s_trigger') THEN
		CREATE TRIGGER %[1]s_trigger
			AFTER INSERT ON alerts
			FOR EACH ROW EXECUTE FUNCTION notify_%[1]s();
	END IF;
END
$$;`, channel)
}

// Run listens until ctx is cancelled. Every connection first installs the
// insert trigger, then issues LISTEN. After a failure Run waits the reconnect
// delay and dials again; the attempt counter resets on every successful
// LISTEN. Run returns ErrGaveUp once the attempt budget of consecutive
// failures is spent.
func (s *Supervisor) Run(ctx context.Context) error {
	attempts := 0
	for {
		err := s.session(ctx, &attempts)
		s.setState(StateDisconnected)
		if ctx.Err() != nil {
			s.logger.Info("Alert listener stopped")
			return nil
		}

		attempts++
		if attempts >= s.maxAttempts {
			s.logger.Error("Alert listener giving up",
				zap.Int("attempts", attempts),
				zap.Error(err),
			)
			return fmt.Errorf("%w after %d attempts: %v", ErrGaveUp, attempts, err)
		}

		s.logger.Warn("Alert listener disconnected, reconnecting",
			zap.Int("attempt", attempts),
			zap.Duration("delay", s.delay),
			zap.Error(err),
		)
		s.metrics.RecordReconnect()
		if err := s.sleep(ctx, s.delay); err != nil {
			s.logger.Info("Alert listener stopped")
			return nil
		}
	}
}

// session holds one connection until it fails or ctx ends
func (s *Supervisor) session(ctx context.Context, attempts *int) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close(context.Background())

	if err := s.ensureTrigger(ctx, conn); err != nil {
		return err
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{s.channel}.Sanitize()); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.channel, err)
	}

	*attempts = 0
	s.setState(StateListening)
	s.logger.Info("Listening for alert inserts", zap.String("channel", s.channel))

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("failed waiting for notification: %w", err)
		}
		s.dispatch(ctx, []byte(n.Payload))
	}
}

func (s *Supervisor) dispatch(ctx context.Context, payload []byte) {
	run := func(ctx context.Context) {
		if err := s.handler(ctx, payload); err != nil {
			s.logger.Error("Failed to handle alert notification", zap.Error(err))
		}
	}
	if s.tasks == nil {
		run(ctx)
		return
	}
	err := s.tasks.SubmitDetached(run)
	if err == nil {
		return
	}
	if !errors.Is(err, worker.ErrPoolOverloaded) {
		s.logger.Warn("Worker pool unavailable, handling inline", zap.Error(err))
	}
	run(ctx)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
