package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bell-backend/internal/apps/otp/events"
	"bell-backend/internal/apps/otp/limiter"
	"bell-backend/internal/apps/otp/models"
	"bell-backend/internal/apps/otp/repository"
	"bell-backend/internal/common/logger"
	"bell-backend/internal/common/metrics"
	"bell-backend/pkg/clock"
	"bell-backend/pkg/secure"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultTTL             = 5 * time.Minute
	DefaultMaxAttempts     = 3
	DefaultDispatchTimeout = 10 * time.Second
)

// Options tunes the OTP policy. Zero values fall back to the defaults.
type Options struct {
	TTL             time.Duration
	MaxAttempts     int
	DispatchTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.DispatchTimeout <= 0 {
		o.DispatchTimeout = DefaultDispatchTimeout
	}
	return o
}

// OTPService is what the HTTP layer needs from the manager
type OTPService interface {
	Issue(ctx context.Context, destination string, channel models.Channel) (*models.IssueResult, error)
	Verify(ctx context.Context, destination, code string) (*models.VerifyResult, error)
}

var _ OTPService = (*Manager)(nil)

// Manager issues and verifies one-time codes. All per-destination state lives in the
// store, so any number of managers may share one store.
type Manager struct {
	store     repository.Store
	provider  OTPProvider
	limiter   limiter.Limiter
	publisher events.Publisher
	hasher    *secure.Hasher
	clock     clock.Clocker
	metrics   *metrics.OTPMetrics
	opts      Options
}

// NewManager creates the OTP lifecycle manager. limiter, publisher and metrics may be nil.
func NewManager(
	store repository.Store,
	provider OTPProvider,
	lim limiter.Limiter,
	publisher events.Publisher,
	hasher *secure.Hasher,
	clk clock.Clocker,
	m *metrics.OTPMetrics,
	opts Options,
) *Manager {
	if lim == nil {
		lim = limiter.NewUnlimited()
	}
	if publisher == nil {
		publisher = events.NewNopPublisher()
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Manager{
		store:     store,
		provider:  provider,
		limiter:   lim,
		publisher: publisher,
		hasher:    hasher,
		clock:     clk,
		metrics:   m,
		opts:      opts.withDefaults(),
	}
}

// Options returns the effective policy
func (m *Manager) Options() Options {
	return m.opts
}

// Issue generates a fresh code for destination, replacing any live one, and dispatches it.
// Expected failures are reported through the result outcome; the error is only set when
// the store or limiter could not be reached.
func (m *Manager) Issue(ctx context.Context, destination string, channel models.Channel) (*models.IssueResult, error) {
	log := zerolog.Ctx(ctx)

	dest, ch, err := NormalizeDestination(destination, channel)
	if err != nil {
		log.Debug().Err(err).Msg("rejected OTP destination")
		m.countIssue(ch, models.IssueInvalidDestination)
		return &models.IssueResult{Outcome: models.IssueInvalidDestination, Channel: ch}, nil
	}
	masked := logger.MaskDestination(dest)

	decision, err := m.limiter.Allow(ctx, dest)
	if err != nil {
		return nil, fmt.Errorf("failed to check OTP send rate: %w", err)
	}
	if !decision.Allowed {
		log.Info().Str("destination", masked).Dur("retry_after", decision.RetryAfter).Msg("OTP send rate limited")
		m.countIssue(ch, models.IssueRateLimited)
		return &models.IssueResult{
			Outcome:     models.IssueRateLimited,
			Destination: dest,
			Channel:     ch,
			RetryAfter:  decision.RetryAfter,
		}, nil
	}

	code, err := GenerateCode()
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	rec := &models.OTPRecord{
		Destination: dest,
		ID:          uuid.New(),
		Channel:     ch,
		CodeDigest:  m.hasher.Digest(code),
		Attempts:    0,
		MaxAttempts: m.opts.MaxAttempts,
		IssuedAt:    now,
		ExpiresAt:   now.Add(m.opts.TTL),
	}
	if err := m.store.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to store OTP: %w", err)
	}

	receipt, err := m.dispatch(ctx, Message{Channel: ch, Destination: dest, Code: code, TTL: m.opts.TTL})
	if err != nil {
		log.Warn().Err(err).Str("destination", masked).Str("channel", ch.String()).Msg("OTP dispatch failed")

		// the request context may already be done; the rollback must still run
		if _, rerr := m.store.Remove(context.WithoutCancel(ctx), dest, rec.ID); rerr != nil {
			log.Error().Err(rerr).Str("destination", masked).Msg("failed to roll back undelivered OTP")
		}
		m.publish(ctx, events.Event{Type: events.TypeDispatchFailed, Destination: dest, Channel: ch, IssueID: rec.ID})
		m.countIssue(ch, models.IssueDispatchFailed)
		return &models.IssueResult{Outcome: models.IssueDispatchFailed, Destination: dest, Channel: ch}, nil
	}

	log.Info().
		Str("destination", masked).
		Str("channel", ch.String()).
		Str("message_id", receipt.MessageID).
		Time("expires_at", rec.ExpiresAt).
		Msg("OTP issued")
	m.publish(ctx, events.Event{
		Type:        events.TypeIssued,
		Destination: dest,
		Channel:     ch,
		IssueID:     rec.ID,
		MessageID:   receipt.MessageID,
	})
	m.countIssue(ch, models.IssueIssued)

	return &models.IssueResult{
		Outcome:     models.IssueIssued,
		Destination: dest,
		Channel:     ch,
		ExpiresAt:   rec.ExpiresAt,
		MessageID:   receipt.MessageID,
	}, nil
}

type dispatchResult struct {
	receipt Receipt
	err     error
}

// dispatch hands msg to the provider and gives up once the dispatch timeout passes,
// even if the provider ignores its context.
func (m *Manager) dispatch(ctx context.Context, msg Message) (Receipt, error) {
	dctx, cancel := context.WithTimeout(ctx, m.opts.DispatchTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan dispatchResult, 1)
	go func() {
		receipt, err := m.provider.SendOTP(dctx, msg)
		done <- dispatchResult{receipt: receipt, err: err}
	}()

	var res dispatchResult
	select {
	case res = <-done:
	case <-dctx.Done():
		res.err = dctx.Err()
	}

	if m.metrics != nil {
		m.metrics.DispatchDuration.WithLabelValues(msg.Channel.String()).Observe(time.Since(start).Seconds())
	}
	return res.receipt, res.err
}

// Verify checks code against the live record for destination. A record is consumed by a
// match and destroyed once its failed attempts reach the limit.
func (m *Manager) Verify(ctx context.Context, destination, code string) (*models.VerifyResult, error) {
	log := zerolog.Ctx(ctx)

	if !ValidCode(code) {
		m.countVerify(models.VerifyInvalidCode)
		return &models.VerifyResult{Outcome: models.VerifyInvalidCode}, nil
	}

	dest, ch, err := NormalizeDestination(destination, "")
	if err != nil {
		return m.notFound("", ch), nil
	}
	masked := logger.MaskDestination(dest)

	rec, err := m.store.Get(ctx, dest)
	if errors.Is(err, repository.ErrNotFound) {
		return m.notFound(dest, ch), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load OTP: %w", err)
	}
	ch = rec.Channel

	if rec.IsExpired(m.clock.Now()) {
		if _, err := m.store.Remove(ctx, dest, rec.ID); err != nil {
			log.Warn().Err(err).Str("destination", masked).Msg("failed to remove expired OTP")
		}
		return m.notFound(dest, ch), nil
	}

	if rec.Attempts >= rec.MaxAttempts {
		if _, err := m.store.Remove(ctx, dest, rec.ID); err != nil {
			return nil, fmt.Errorf("failed to remove exhausted OTP: %w", err)
		}
		return m.attemptsExceeded(ctx, rec, rec.Attempts), nil
	}

	if m.hasher.Matches(code, rec.CodeDigest) {
		removed, err := m.store.Remove(ctx, dest, rec.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to consume OTP: %w", err)
		}
		if !removed {
			// consumed, exhausted or replaced concurrently
			return m.notFound(dest, ch), nil
		}

		log.Info().Str("destination", masked).Msg("OTP verified")
		m.publish(ctx, events.Event{Type: events.TypeVerified, Destination: dest, Channel: ch, IssueID: rec.ID, Attempts: rec.Attempts})
		m.countVerify(models.VerifyVerified)
		return &models.VerifyResult{Outcome: models.VerifyVerified, Destination: dest, Channel: ch}, nil
	}

	attempts, err := m.store.IncrementAttempts(ctx, dest, rec.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return m.notFound(dest, ch), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record OTP attempt: %w", err)
	}
	if attempts >= rec.MaxAttempts {
		return m.attemptsExceeded(ctx, rec, attempts), nil
	}

	remaining := rec.MaxAttempts - attempts
	log.Info().Str("destination", masked).Int("attempts_remaining", remaining).Msg("OTP mismatch")
	m.countVerify(models.VerifyMismatch)
	return &models.VerifyResult{
		Outcome:           models.VerifyMismatch,
		Destination:       dest,
		Channel:           ch,
		AttemptsRemaining: remaining,
	}, nil
}

// SweepExpired purges expired records from the store
func (m *Manager) SweepExpired(ctx context.Context) (int64, error) {
	n, err := m.store.DeleteExpired(ctx, m.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired OTPs: %w", err)
	}
	if n > 0 {
		zerolog.Ctx(ctx).Info().Int64("removed", n).Msg("swept expired OTPs")
		if m.metrics != nil {
			m.metrics.ExpiredSwept.Add(float64(n))
		}
	}
	return n, nil
}

func (m *Manager) notFound(dest string, ch models.Channel) *models.VerifyResult {
	m.countVerify(models.VerifyNotFound)
	return &models.VerifyResult{Outcome: models.VerifyNotFound, Destination: dest, Channel: ch}
}

func (m *Manager) attemptsExceeded(ctx context.Context, rec *models.OTPRecord, attempts int) *models.VerifyResult {
	zerolog.Ctx(ctx).Warn().
		Str("destination", logger.MaskDestination(rec.Destination)).
		Int("attempts", attempts).
		Msg("OTP attempts exceeded")
	m.publish(ctx, events.Event{
		Type:        events.TypeAttemptsExceeded,
		Destination: rec.Destination,
		Channel:     rec.Channel,
		IssueID:     rec.ID,
		Attempts:    attempts,
	})
	m.countVerify(models.VerifyAttemptsExceeded)
	return &models.VerifyResult{
		Outcome:     models.VerifyAttemptsExceeded,
		Destination: rec.Destination,
		Channel:     rec.Channel,
	}
}

// publish never fails the caller
func (m *Manager) publish(ctx context.Context, evt events.Event) {
	evt.OccurredAt = m.clock.Now().UTC()
	if err := m.publisher.Publish(context.WithoutCancel(ctx), evt); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("event", string(evt.Type)).Msg("failed to publish OTP event")
	}
}

func (m *Manager) countIssue(ch models.Channel, outcome models.IssueOutcome) {
	if m.metrics == nil {
		return
	}
	label := ch.String()
	if !ch.IsValid() {
		label = "unknown"
	}
	m.metrics.IssueTotal.WithLabelValues(label, string(outcome)).Inc()
}

func (m *Manager) countVerify(outcome models.VerifyOutcome) {
	if m.metrics == nil {
		return
	}
	m.metrics.VerifyTotal.WithLabelValues(string(outcome)).Inc()
}
