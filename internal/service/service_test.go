package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/staff_api/internal/repo"
	pkgdb "github.com/Skotchmaster/staff_api/pkg/db"
	"github.com/Skotchmaster/staff_api/pkg/tokens"
)

var (
	testAccessSecret  = []byte("test-access-secret")
	testRefreshSecret = []byte("test-refresh-secret")
)

type publishedEvent struct {
	Topic string
	Key   string
	Event any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) PublishEvent(_ context.Context, topic, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Topic: topic, Key: key, Event: event})
	return p.err
}

func (p *recordingPublisher) all() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedEvent(nil), p.events...)
}

type fixture struct {
	repo   *repo.GormRepo
	issuer *tokens.Issuer
	events *recordingPublisher
	auth   *AuthService
}

func newIssuer(t *testing.T, opts ...tokens.Option) *tokens.Issuer {
	t.Helper()

	iss, err := tokens.NewIssuer(testAccessSecret, testRefreshSecret, 15*time.Minute, 7*24*time.Hour, opts...)
	require.NoError(t, err)
	return iss
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := pkgdb.Open(context.Background(), "sqlite://:memory:")
	require.NoError(t, err)
	require.NoError(t, repo.Migrate(db))
	t.Cleanup(func() { _ = pkgdb.Close(db) })

	f := &fixture{
		repo:   repo.New(db),
		issuer: newIssuer(t),
		events: &recordingPublisher{},
	}
	f.auth = &AuthService{Repo: f.repo, Tokens: f.issuer, Events: f.events}
	return f
}
