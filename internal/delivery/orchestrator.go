package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/alexnthnz/alert-fanout/internal/channels"
	"github.com/alexnthnz/alert-fanout/internal/config"
	"github.com/alexnthnz/alert-fanout/internal/monitoring"
	"github.com/alexnthnz/alert-fanout/internal/recipient"
)

// RecipientLookup loads a single recipient with its tokens
type RecipientLookup interface {
	Lookup(ctx context.Context, id int64) (*recipient.Recipient, error)
}

// AttemptRecorder appends delivery attempts
type AttemptRecorder interface {
	Record(ctx context.Context, a Attempt) error
}

// Options is the retry and rate policy of an Orchestrator
type Options struct {
	RateLimit    int
	MaxBatchSize int
	MaxAttempts  int
	BaseBackoff  time.Duration
}

// OptionsFromConfig builds orchestrator options from configuration
func OptionsFromConfig(cfg config.DeliveryConfig) Options {
	return Options{
		RateLimit:    cfg.RateLimit,
		MaxBatchSize: cfg.MaxBatchSize,
		MaxAttempts:  cfg.MaxAttempts,
		BaseBackoff:  cfg.BaseBackoff,
	}
}

func (o Options) withDefaults() Options {
	if o.RateLimit <= 0 {
		o.RateLimit = 100
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = time.Second
	}
	return o
}

// Backoff returns the delay before retry n (1-based): base * 2^(n-1).
func (o Options) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	return o.BaseBackoff << (n - 1)
}

// Orchestrator delivers messages to recipients over the personal channels
type Orchestrator struct {
	lookup    RecipientLookup
	primary   channels.Channel
	secondary channels.Channel
	attempts  AttemptRecorder
	metrics   *monitoring.Metrics
	logger    *zap.Logger
	opts      Options

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewOrchestrator creates a new delivery orchestrator. secondary may be nil.
func NewOrchestrator(
	lookup RecipientLookup,
	primary, secondary channels.Channel,
	attempts AttemptRecorder,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
	opts Options,
) *Orchestrator {
	return &Orchestrator{
		lookup:    lookup,
		primary:   primary,
		secondary: secondary,
		attempts:  attempts,
		metrics:   metrics,
		logger:    logger,
		opts:      opts.withDefaults(),
		sleep:     sleepContext,
		now:       time.Now,
	}
}

// DefaultRateLimit returns the configured sends per second
func (o *Orchestrator) DefaultRateLimit() int {
	return o.opts.RateLimit
}

// Deliver sends msg to one recipient on every channel it has a token for.
// Channel failures are reported in the result; an error is returned only
// when the recipient cannot be loaded or has no token at all.
func (o *Orchestrator) Deliver(ctx context.Context, recipientID int64, msg channels.Message) (*Result, error) {
	for attempt := 1; ; attempt++ {
		result, err := o.deliverOnce(ctx, recipientID, msg)
		if err == nil {
			return result, nil
		}
		if !channels.IsTransient(err) || attempt >= o.opts.MaxAttempts {
			return nil, err
		}

		delay := o.opts.Backoff(attempt)
		o.logger.Warn("Transient delivery failure, retrying",
			zap.Int64("recipient_id", recipientID),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		o.metrics.RecordRetry("all", "transient")
		if sleepErr := o.sleep(ctx, delay); sleepErr != nil {
			return nil, err
		}
	}
}

func (o *Orchestrator) deliverOnce(ctx context.Context, recipientID int64, msg channels.Message) (*Result, error) {
	rec, err := o.lookup.Lookup(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	if !rec.Reachable() {
		return nil, fmt.Errorf("recipient %d: %w", recipientID, ErrNoTokens)
	}

	result := &Result{RecipientID: rec.ID, Username: rec.Username}

	if rec.FCMToken != "" && o.primary != nil {
		result.Outcomes = append(result.Outcomes, o.sendPrimary(ctx, *rec, msg))
	}
	if rec.ExpoToken != "" && o.secondary != nil {
		result.Outcomes = append(result.Outcomes, o.sendOnce(ctx, o.secondary, rec.ExpoToken, *rec, msg, 1))
	}

	for _, out := range result.Outcomes {
		if out.Success {
			result.Success = true
			break
		}
	}
	if !result.Success && len(result.Outcomes) == 0 {
		result.Error = "no configured channel matches the recipient's tokens"
	}

	o.metrics.RecordRecipient(result.Success)
	return result, nil
}

// sendPrimary retries retryable provider failures up to MaxAttempts
func (o *Orchestrator) sendPrimary(ctx context.Context, rec recipient.Recipient, msg channels.Message) ChannelOutcome {
	var out ChannelOutcome
	for attempt := 1; ; attempt++ {
		out = o.sendOnce(ctx, o.primary, rec.FCMToken, rec, msg, attempt)
		if out.Success || !channels.ErrorCode(out.Code).Retryable() || attempt >= o.opts.MaxAttempts {
			return out
		}

		delay := o.opts.Backoff(attempt)
		o.logger.Info("Retrying push",
			zap.String("channel", out.Channel),
			zap.Int64("recipient_id", rec.ID),
			zap.Int("attempt", attempt),
			zap.String("code", out.Code),
			zap.Duration("delay", delay),
		)
		o.metrics.RecordRetry(out.Channel, out.Code)
		if err := o.sleep(ctx, delay); err != nil {
			return out
		}
	}
}

// sendOnce makes one provider call and appends exactly one log row
func (o *Orchestrator) sendOnce(
	ctx context.Context,
	ch channels.Channel,
	token string,
	rec recipient.Recipient,
	msg channels.Message,
	attempt int,
) ChannelOutcome {
	name := ch.GetChannelType()
	start := o.now()
	messageID, err := ch.Send(ctx, token, msg, rec)
	o.metrics.RecordAttempt(name, statusOf(err), time.Since(start).Seconds())

	out := ChannelOutcome{Channel: name, Attempts: attempt}
	entry := Attempt{RecipientID: rec.ID, Channel: name, CreatedAt: o.now()}
	if err != nil {
		out.Error = err.Error()
		out.Code = string(channels.CodeUnknown)
		var chErr *channels.ChannelError
		if errors.As(err, &chErr) {
			out.Code = string(chErr.Code)
		}
		entry.Status = StatusFailed
		entry.Error = err.Error()
		o.logger.Warn("Push delivery failed",
			zap.String("channel", name),
			zap.Int64("recipient_id", rec.ID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	} else {
		out.Success = true
		out.MessageID = messageID
		entry.Status = StatusDelivered
		entry.MessageID = messageID
	}

	if logErr := o.attempts.Record(ctx, entry); logErr != nil {
		o.logger.Error("Failed to log delivery attempt",
			zap.Int64("recipient_id", rec.ID),
			zap.String("channel", name),
			zap.Error(logErr),
		)
	}
	return out
}

// DeliverMany fans msg out to every id, at most rateLimit sends per second.
// It returns exactly one result per input id, in input order.
func (o *Orchestrator) DeliverMany(ctx context.Context, recipientIDs []int64, msg channels.Message, rateLimit int) []Result {
	results := make([]Result, len(recipientIDs))
	if len(recipientIDs) == 0 {
		return results
	}
	if rateLimit <= 0 {
		rateLimit = o.opts.RateLimit
	}

	size, interval := planBatches(rateLimit, o.opts.MaxBatchSize)
	var batchStart time.Time
	for start := 0; start < len(recipientIDs); start += size {
		if start > 0 {
			if wait := interval - o.now().Sub(batchStart); wait > 0 {
				if err := o.sleep(ctx, wait); err != nil {
					o.logger.Warn("Batch delay interrupted", zap.Error(err))
				}
			}
		}
		batchStart = o.now()

		end := min(start+size, len(recipientIDs))
		var g errgroup.Group
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				id := recipientIDs[i]
				res, err := o.Deliver(ctx, id, msg)
				if err != nil {
					o.metrics.RecordRecipient(false)
					results[i] = Result{RecipientID: id, Error: err.Error()}
					return nil
				}
				results[i] = *res
				return nil
			})
		}
		_ = g.Wait()
	}

	return results
}

// planBatches sizes batches so that batchSize sends every interval never
// exceeds rateLimit per second.
func planBatches(rateLimit, maxBatchSize int) (int, time.Duration) {
	if rateLimit <= 0 {
		rateLimit = 1
	}
	size := rateLimit
	if maxBatchSize > 0 && size > maxBatchSize {
		size = maxBatchSize
	}
	interval := time.Duration(float64(size) / float64(rateLimit) * float64(time.Second))
	return size, interval
}

func statusOf(err error) string {
	if err != nil {
		return string(StatusFailed)
	}
	return string(StatusDelivered)
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
