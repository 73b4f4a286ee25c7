package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bell-backend/internal/apps/otp/events"
	"bell-backend/internal/apps/otp/limiter"
	"bell-backend/internal/apps/otp/models"
	"bell-backend/internal/apps/otp/repository"
	"bell-backend/internal/common/metrics"
	"bell-backend/pkg/clock"
	"bell-backend/pkg/secure"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeProvider struct {
	mu     sync.Mutex
	sent   []Message
	sendFn func(ctx context.Context, msg Message) (Receipt, error)
}

func (f *fakeProvider) SendOTP(ctx context.Context, msg Message) (Receipt, error) {
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	fn := f.sendFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, msg)
	}
	return Receipt{MessageID: "msg-" + msg.Code, Provider: "fake"}, nil
}

func (f *fakeProvider) lastCode(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("no code was dispatched")
	}
	return f.sent[len(f.sent)-1].Code
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func (p *recordingPublisher) count(t events.Type) int {
	n := 0
	for _, typ := range p.types() {
		if typ == t {
			n++
		}
	}
	return n
}

type testEnv struct {
	manager   *Manager
	store     repository.Store
	provider  *fakeProvider
	publisher *recordingPublisher
	clock     *clock.Fake
	metrics   *metrics.OTPMetrics
}

func newTestEnv(t *testing.T, opts Options, lim limiter.Limiter) *testEnv {
	t.Helper()
	hasher, err := secure.NewHasher("test-secret-0123456789")
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	env := &testEnv{
		store:     repository.NewMemoryStore(),
		provider:  &fakeProvider{},
		publisher: &recordingPublisher{},
		clock:     clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)),
		metrics:   metrics.NewOTPMetrics(prometheus.NewRegistry()),
	}
	env.manager = NewManager(env.store, env.provider, lim, env.publisher, hasher, env.clock, env.metrics, opts)
	return env
}

func (e *testEnv) issue(t *testing.T, destination string) string {
	t.Helper()
	res, err := e.manager.Issue(context.Background(), destination, "")
	if err != nil {
		t.Fatalf("Issue(%q): %v", destination, err)
	}
	if res.Outcome != models.IssueIssued {
		t.Fatalf("Issue(%q) outcome = %s, want issued", destination, res.Outcome)
	}
	return e.provider.lastCode(t)
}

func (e *testEnv) verify(t *testing.T, destination, code string) *models.VerifyResult {
	t.Helper()
	res, err := e.manager.Verify(context.Background(), destination, code)
	if err != nil {
		t.Fatalf("Verify(%q, %q): %v", destination, code, err)
	}
	return res
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func TestManager_ExampleScenario(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)
	const dest = "9876543210"

	code := env.issue(t, dest)
	if len(code) != models.CodeLength {
		t.Fatalf("code %q is not %d digits", code, models.CodeLength)
	}

	res := env.verify(t, dest, wrongCode(code))
	if res.Outcome != models.VerifyMismatch || res.AttemptsRemaining != 2 {
		t.Fatalf("wrong code: got %s remaining=%d, want mismatch remaining=2", res.Outcome, res.AttemptsRemaining)
	}

	res = env.verify(t, dest, code)
	if !res.Verified() {
		t.Fatalf("correct code: got %s, want verified", res.Outcome)
	}
	if res.Destination != dest || res.Channel != models.ChannelSMS {
		t.Errorf("result = %+v", res)
	}

	res = env.verify(t, dest, code)
	if res.Outcome != models.VerifyNotFound {
		t.Fatalf("reused code: got %s, want not_found", res.Outcome)
	}
}

func TestManager_Issue(t *testing.T) {
	env := newTestEnv(t, Options{TTL: 10 * time.Minute}, nil)

	res, err := env.manager.Issue(context.Background(), "  User@Example.COM ", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if res.Outcome != models.IssueIssued {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	if res.Destination != "user@example.com" || res.Channel != models.ChannelEmail {
		t.Errorf("destination/channel = %q/%q", res.Destination, res.Channel)
	}
	if want := env.clock.Now().Add(10 * time.Minute); !res.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", res.ExpiresAt, want)
	}
	if res.MessageID == "" {
		t.Error("MessageID should come from the provider receipt")
	}

	rec, err := env.store.Get(context.Background(), "user@example.com")
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	code := env.provider.lastCode(t)
	if rec.CodeDigest == code || rec.CodeDigest == "" {
		t.Error("store must hold a digest, not the code")
	}
	if rec.Attempts != 0 || rec.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("attempts = %d/%d", rec.Attempts, rec.MaxAttempts)
	}

	if got := env.publisher.count(events.TypeIssued); got != 1 {
		t.Errorf("issued events = %d, want 1", got)
	}
	if got := testutil.ToFloat64(env.metrics.IssueTotal.WithLabelValues("email", "issued")); got != 1 {
		t.Errorf("otp_issue_total{email,issued} = %v, want 1", got)
	}
}

func TestManager_IssueInvalidDestination(t *testing.T) {
	tests := []struct {
		name        string
		destination string
		channel     models.Channel
	}{
		{"letters as phone", "abc", ""},
		{"short phone", "98765", ""},
		{"long phone", "98765432101", ""},
		{"phone with country code", "+919876543210", ""},
		{"email without domain dot", "user@localhost", ""},
		{"malformed email", "user@@example.com", ""},
		{"phone on email channel", "9876543210", models.ChannelEmail},
		{"unknown channel", "9876543210", "fax"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, Options{}, nil)
			res, err := env.manager.Issue(context.Background(), tt.destination, tt.channel)
			if err != nil {
				t.Fatalf("Issue: %v", err)
			}
			if res.Outcome != models.IssueInvalidDestination {
				t.Fatalf("outcome = %s, want invalid_destination", res.Outcome)
			}
			if len(env.provider.sent) != 0 {
				t.Error("nothing should be dispatched for an invalid destination")
			}
		})
	}
}

func TestManager_SingleUse(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)
	for _, dest := range []string{"9876543210", "alice@example.com"} {
		code := env.issue(t, dest)
		if res := env.verify(t, dest, code); !res.Verified() {
			t.Fatalf("%s: first verify = %s", dest, res.Outcome)
		}
		for i := 0; i < 3; i++ {
			if res := env.verify(t, dest, code); res.Outcome != models.VerifyNotFound {
				t.Fatalf("%s: verify after consume = %s, want not_found", dest, res.Outcome)
			}
		}
	}
}

func TestManager_Expiry(t *testing.T) {
	t.Run("valid at exactly the expiry instant", func(t *testing.T) {
		env := newTestEnv(t, Options{TTL: 5 * time.Minute}, nil)
		code := env.issue(t, "9876543210")
		env.clock.Advance(5 * time.Minute)
		if res := env.verify(t, "9876543210", code); !res.Verified() {
			t.Fatalf("verify at expiry = %s, want verified", res.Outcome)
		}
	})

	t.Run("not found once past ttl", func(t *testing.T) {
		env := newTestEnv(t, Options{TTL: 5 * time.Minute}, nil)
		code := env.issue(t, "9876543210")
		env.clock.Advance(5*time.Minute + time.Second)

		if res := env.verify(t, "9876543210", code); res.Outcome != models.VerifyNotFound {
			t.Fatalf("verify after ttl = %s, want not_found", res.Outcome)
		}
		if _, err := env.store.Get(context.Background(), "9876543210"); !errors.Is(err, repository.ErrNotFound) {
			t.Errorf("expired record should be removed on lookup, got %v", err)
		}
	})

	t.Run("expired and never issued look the same", func(t *testing.T) {
		env := newTestEnv(t, Options{}, nil)
		env.issue(t, "9876543210")
		env.clock.Advance(time.Hour)

		expired := env.verify(t, "9876543210", "123456")
		never := env.verify(t, "9876500000", "123456")
		if expired.Outcome != never.Outcome || expired.AttemptsRemaining != never.AttemptsRemaining {
			t.Fatalf("expired=%+v never=%+v", expired, never)
		}
	})
}

func TestManager_AttemptLimiting(t *testing.T) {
	env := newTestEnv(t, Options{MaxAttempts: 3}, nil)
	const dest = "9876543210"
	code := env.issue(t, dest)
	wrong := wrongCode(code)

	for want := 2; want >= 1; want-- {
		res := env.verify(t, dest, wrong)
		if res.Outcome != models.VerifyMismatch || res.AttemptsRemaining != want {
			t.Fatalf("got %s remaining=%d, want mismatch remaining=%d", res.Outcome, res.AttemptsRemaining, want)
		}
	}

	if res := env.verify(t, dest, wrong); res.Outcome != models.VerifyAttemptsExceeded {
		t.Fatalf("third wrong code = %s, want attempts_exceeded", res.Outcome)
	}
	if res := env.verify(t, dest, code); res.Outcome != models.VerifyNotFound {
		t.Fatalf("correct code after lockout = %s, want not_found", res.Outcome)
	}
	if got := env.publisher.count(events.TypeAttemptsExceeded); got != 1 {
		t.Errorf("attempts_exceeded events = %d, want 1", got)
	}
}

func TestManager_OverwriteOnReissue(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)
	const dest = "9876543210"

	first := env.issue(t, dest)
	env.verify(t, dest, wrongCode(first))

	second := env.issue(t, dest)
	for i := 0; second == first && i < 10; i++ {
		second = env.issue(t, dest)
	}
	if second == first {
		t.Fatal("could not draw a distinct second code")
	}

	res := env.verify(t, dest, first)
	if res.Verified() {
		t.Fatal("first code must not verify after a reissue")
	}
	if res.Outcome == models.VerifyMismatch && res.AttemptsRemaining != 2 {
		t.Errorf("reissue must reset attempts, remaining = %d", res.AttemptsRemaining)
	}

	if res := env.verify(t, dest, second); !res.Verified() {
		t.Fatalf("second code = %s, want verified", res.Outcome)
	}
}

func TestManager_InvalidCodeDoesNotConsumeAttempt(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)
	const dest = "9876543210"
	code := env.issue(t, dest)

	for _, bad := range []string{"12a45", "12345", "1234567", "", "-12345", "12 456", "１２３４５６"} {
		if res := env.verify(t, dest, bad); res.Outcome != models.VerifyInvalidCode {
			t.Fatalf("Verify(%q) = %s, want invalid_code", bad, res.Outcome)
		}
	}

	rec, err := env.store.Get(context.Background(), dest)
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	if rec.Attempts != 0 {
		t.Fatalf("attempts = %d after malformed codes, want 0", rec.Attempts)
	}

	if res := env.verify(t, dest, wrongCode(code)); res.AttemptsRemaining != 2 {
		t.Fatalf("remaining = %d, want 2", res.AttemptsRemaining)
	}
}

func TestManager_ConcurrentWrongCodes(t *testing.T) {
	env := newTestEnv(t, Options{MaxAttempts: 3}, nil)
	const dest = "9876543210"
	wrong := wrongCode(env.issue(t, dest))

	const workers = 25
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[models.VerifyOutcome]int{}
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := env.manager.Verify(context.Background(), dest, wrong)
			if err != nil {
				t.Errorf("Verify: %v", err)
				return
			}
			mu.Lock()
			outcomes[res.Outcome]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if outcomes[models.VerifyAttemptsExceeded] != 1 {
		t.Fatalf("attempts_exceeded observed %d times, want exactly 1 (%v)", outcomes[models.VerifyAttemptsExceeded], outcomes)
	}
	if outcomes[models.VerifyMismatch] != 2 {
		t.Fatalf("mismatch observed %d times, want 2 (%v)", outcomes[models.VerifyMismatch], outcomes)
	}
	if outcomes[models.VerifyNotFound] != workers-3 {
		t.Fatalf("not_found observed %d times, want %d (%v)", outcomes[models.VerifyNotFound], workers-3, outcomes)
	}
}

func TestManager_DispatchFailure(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)
	env.provider.sendFn = func(context.Context, Message) (Receipt, error) {
		return Receipt{}, errors.New("gateway unavailable")
	}

	res, err := env.manager.Issue(context.Background(), "9876543210", models.ChannelSMS)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if res.Outcome != models.IssueDispatchFailed {
		t.Fatalf("outcome = %s, want dispatch_failed", res.Outcome)
	}
	if _, err := env.store.Get(context.Background(), "9876543210"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("undelivered record should be rolled back, got %v", err)
	}
	if got := env.publisher.count(events.TypeDispatchFailed); got != 1 {
		t.Errorf("dispatch_failed events = %d, want 1", got)
	}
}

func TestManager_DispatchFailureKeepsNewerRecord(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)
	const dest = "9876543210"
	newer := &models.OTPRecord{
		Destination: dest,
		ID:          uuid.New(),
		Channel:     models.ChannelSMS,
		CodeDigest:  "digest",
		MaxAttempts: 3,
		IssuedAt:    env.clock.Now(),
		ExpiresAt:   env.clock.Now().Add(time.Minute),
	}
	env.provider.sendFn = func(ctx context.Context, _ Message) (Receipt, error) {
		// a concurrent issue lands while this dispatch is in flight
		if err := env.store.Put(ctx, newer); err != nil {
			return Receipt{}, err
		}
		return Receipt{}, errors.New("gateway unavailable")
	}

	if res, _ := env.manager.Issue(context.Background(), dest, ""); res.Outcome != models.IssueDispatchFailed {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	rec, err := env.store.Get(context.Background(), dest)
	if err != nil {
		t.Fatalf("newer record was rolled back: %v", err)
	}
	if rec.ID != newer.ID {
		t.Fatalf("record id = %s, want %s", rec.ID, newer.ID)
	}
}

func TestManager_DispatchTimeout(t *testing.T) {
	tests := []struct {
		name   string
		sendFn func(ctx context.Context, msg Message) (Receipt, error)
	}{
		{
			name: "provider honours context",
			sendFn: func(ctx context.Context, _ Message) (Receipt, error) {
				<-ctx.Done()
				return Receipt{}, ctx.Err()
			},
		},
		{
			name: "provider ignores context",
			sendFn: func(context.Context, Message) (Receipt, error) {
				time.Sleep(500 * time.Millisecond)
				return Receipt{MessageID: "late"}, nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, Options{DispatchTimeout: 20 * time.Millisecond}, nil)
			env.provider.sendFn = tt.sendFn

			start := time.Now()
			res, err := env.manager.Issue(context.Background(), "9876543210", "")
			if err != nil {
				t.Fatalf("Issue: %v", err)
			}
			if res.Outcome != models.IssueDispatchFailed {
				t.Fatalf("outcome = %s, want dispatch_failed", res.Outcome)
			}
			if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
				t.Fatalf("Issue took %v, dispatch timeout was not enforced", elapsed)
			}
			if _, err := env.store.Get(context.Background(), "9876543210"); !errors.Is(err, repository.ErrNotFound) {
				t.Fatalf("timed out record should be rolled back, got %v", err)
			}
		})
	}
}

func TestManager_RateLimited(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	lim := limiter.NewMemoryLimiter(limiter.Options{Cooldown: 30 * time.Second, Window: 10 * time.Minute, MaxPerWindow: 5}, clk)
	env := newTestEnv(t, Options{}, lim)

	env.issue(t, "9876543210")

	res, err := env.manager.Issue(context.Background(), "98765 43210", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if res.Outcome != models.IssueRateLimited {
		t.Fatalf("outcome = %s, want rate_limited", res.Outcome)
	}
	if res.RetryAfter != 30*time.Second {
		t.Errorf("RetryAfter = %v, want 30s", res.RetryAfter)
	}
	if len(env.provider.sent) != 1 {
		t.Errorf("dispatched %d codes, want 1", len(env.provider.sent))
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (limiter.Decision, error) {
	return limiter.Decision{}, errors.New("redis: connection refused")
}

func TestManager_LimiterErrorIsUnexpected(t *testing.T) {
	env := newTestEnv(t, Options{}, failingLimiter{})
	if _, err := env.manager.Issue(context.Background(), "9876543210", ""); err == nil {
		t.Fatal("expected an error when the limiter backend is down")
	}
}

type brokenStore struct {
	repository.Store
}

func (brokenStore) Get(context.Context, string) (*models.OTPRecord, error) {
	return nil, errors.New("connection reset by peer")
}

func TestManager_StoreErrorIsUnexpected(t *testing.T) {
	hasher, _ := secure.NewHasher("test-secret-0123456789")
	m := NewManager(brokenStore{repository.NewMemoryStore()}, &fakeProvider{}, nil, nil, hasher, clock.New(), nil, Options{})

	res, err := m.Verify(context.Background(), "9876543210", "123456")
	if err == nil {
		t.Fatalf("expected error, got result %+v", res)
	}
}

func TestManager_PublishFailureDoesNotChangeOutcome(t *testing.T) {
	env := newTestEnv(t, Options{}, nil)
	env.publisher.err = errors.New("nats: connection closed")

	code := env.issue(t, "9876543210")
	if res := env.verify(t, "9876543210", code); !res.Verified() {
		t.Fatalf("verify = %s, want verified", res.Outcome)
	}
}

func TestManager_SweepExpired(t *testing.T) {
	env := newTestEnv(t, Options{TTL: time.Minute}, nil)
	env.issue(t, "9876543210")
	env.issue(t, "alice@example.com")

	env.clock.Advance(30 * time.Second)
	env.issue(t, "9876500000")

	env.clock.Advance(45 * time.Second)
	n, err := env.manager.SweepExpired(context.Background())
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if n != 2 {
		t.Fatalf("swept %d records, want 2", n)
	}
	if got := testutil.ToFloat64(env.metrics.ExpiredSwept); got != 2 {
		t.Errorf("otp_expired_swept_total = %v, want 2", got)
	}
	if _, err := env.store.Get(context.Background(), "9876500000"); err != nil {
		t.Errorf("live record was swept: %v", err)
	}
}

func TestOptions_Defaults(t *testing.T) {
	got := Options{}.withDefaults()
	if got.TTL != 5*time.Minute || got.MaxAttempts != 3 || got.DispatchTimeout != 10*time.Second {
		t.Fatalf("defaults = %+v", got)
	}
	custom := Options{TTL: 10 * time.Minute, MaxAttempts: 5, DispatchTimeout: time.Second}.withDefaults()
	if custom.TTL != 10*time.Minute || custom.MaxAttempts != 5 || custom.DispatchTimeout != time.Second {
		t.Fatalf("custom = %+v", custom)
	}
}
