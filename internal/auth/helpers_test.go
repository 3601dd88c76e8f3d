package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pawhub/pawhub/internal/auth"
	_ "github.com/pawhub/pawhub/testing"
)

type sentMail struct {
	kind  string
	email string
	token string
	name  string
}

type captureMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *captureMailer) SendVerificationEmail(_ context.Context, email, rawToken, displayName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{kind: "verification", email: email, token: rawToken, name: displayName})
	return m.err
}

func (m *captureMailer) SendPasswordResetEmail(_ context.Context, email, rawToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{kind: "reset", email: email, token: rawToken})
	return m.err
}

func (m *captureMailer) last(t *testing.T, kind string) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].kind == kind {
			return m.sent[i]
		}
	}
	t.Fatalf("no %s email sent", kind)
	return sentMail{}
}

func (m *captureMailer) count(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, mail := range m.sent {
		if mail.kind == kind {
			n++
		}
	}
	return n
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordedEvent struct {
	operation string
	outcome   string
}

type captureRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *captureRecorder) AuthEvent(operation, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{operation: operation, outcome: outcome})
}

func (r *captureRecorder) has(operation, outcome string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.operation == operation && e.outcome == outcome {
			return true
		}
	}
	return false
}

type testEnv struct {
	svc      *auth.Service
	repo     *auth.MemoryRepository
	mailer   *captureMailer
	clock    *fakeClock
	issuer   *auth.TokenIssuer
	recorder *captureRecorder
}

func newTestIssuer(t *testing.T, clock func() time.Time) *auth.TokenIssuer {
	t.Helper()
	issuer, err := auth.NewTokenIssuer(auth.IssuerConfig{
		AccessSecret:  []byte("access-secret-for-tests"),
		RefreshSecret: []byte("refresh-secret-for-tests"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "pawhub-test",
		Clock:         clock,
	})
	require.NoError(t, err)
	return issuer
}

func newTestEnv(t *testing.T, opts ...func(*auth.ServiceConfig)) *testEnv {
	t.Helper()
	clock := newFakeClock()
	env := &testEnv{
		repo:     auth.NewMemoryRepository(),
		mailer:   &captureMailer{},
		clock:    clock,
		issuer:   newTestIssuer(t, clock.Now),
		recorder: &captureRecorder{},
	}
	cfg := auth.ServiceConfig{
		Repo:     env.repo,
		Mailer:   env.mailer,
		Issuer:   env.issuer,
		Hasher:   auth.NewBcryptHasher(bcrypt.MinCost),
		Recorder: env.recorder,
		Clock:    clock.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	svc, err := auth.NewService(cfg)
	require.NoError(t, err)
	env.svc = svc
	t.Cleanup(svc.Wait)
	return env
}

func aliceInput() auth.RegisterInput {
	return auth.RegisterInput{
		Email:         "a@x.com",
		Username:      "alice",
		Password:      "Secr3t!",
		FirstName:     "Alice",
		LastName:      "Liddell",
		TermsAccepted: true,
	}
}

func (e *testEnv) register(t *testing.T, in auth.RegisterInput) *auth.AuthResult {
	t.Helper()
	result, err := e.svc.Register(context.Background(), in)
	require.NoError(t, err)
	e.svc.Wait()
	return result
}

func (e *testEnv) stored(t *testing.T, email string) *auth.User {
	t.Helper()
	user, err := e.repo.FindByEmail(context.Background(), email)
	require.NoError(t, err)
	return user
}

var errMailDown = errors.New("smtp: connection refused")
