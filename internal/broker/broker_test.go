package broker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlms/admin-session/internal/identity"
	"github.com/openlms/admin-session/internal/infrastructure/redis"
	"github.com/openlms/admin-session/internal/token"
	pkgerrors "github.com/openlms/admin-session/pkg/errors"
)

func mintToken(t *testing.T, ttl time.Duration) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      "user-1",
		"userRole": "admin",
		"exp":      time.Now().Add(ttl).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return raw
}

type fakeStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeStore() *fakeStore { return &fakeStore{data: map[string]string{}} }

func (f *fakeStore) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return "", redis.ErrKeyNotFound
	}
	return v, nil
}

func (f *fakeStore) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value.(string)
	return nil
}

func (f *fakeStore) Del(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func (f *fakeStore) Close() error { return nil }

type fakeSource struct {
	sess  *identity.Session
	err   error
	calls int
}

func (f *fakeSource) CurrentSession(ctx context.Context) (*identity.Session, error) {
	f.calls++
	return f.sess, f.err
}

func (f *fakeSource) EndSession(ctx context.Context) error { return nil }

type fakeExchange struct {
	token string
	err   error
	calls int
}

func (f *fakeExchange) ExchangeAssertion(ctx context.Context, assertion string) (string, error) {
	f.calls++
	return f.token, f.err
}

func (f *fakeExchange) LoginWithCredentials(ctx context.Context, username, password string) (string, error) {
	return "", pkgerrors.ErrInvalidCredentials
}

func (f *fakeExchange) Revoke(ctx context.Context, backendToken string) error { return nil }

func TestAcquireCacheHitSkipsNetwork(t *testing.T) {
	ctx := context.Background()
	cache := token.NewCache(newFakeStore())
	live := mintToken(t, time.Hour)
	require.NoError(t, cache.Set(ctx, live))

	src := &fakeSource{}
	ex := &fakeExchange{}
	b := New(cache, src, ex, 120*time.Second)

	got, err := b.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, live, got)
	assert.Zero(t, src.calls)
	assert.Zero(t, ex.calls)
}

func TestAcquireRefreshesExpiringToken(t *testing.T) {
	ctx := context.Background()
	cache := token.NewCache(newFakeStore())
	// 30 seconds of life left against a 120 second buffer: not a hit.
	require.NoError(t, cache.Set(ctx, mintToken(t, 30*time.Second)))

	fresh := mintToken(t, time.Hour)
	src := &fakeSource{sess: &identity.Session{Assertion: "assertion"}}
	ex := &fakeExchange{token: fresh}
	b := New(cache, src, ex, 120*time.Second)

	got, err := b.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, fresh, got)
	assert.Equal(t, 1, ex.calls)

	cached, ok := cache.Get(ctx)
	require.True(t, ok)
	assert.Equal(t, fresh, cached)
}

func TestAcquireNoUpstreamSession(t *testing.T) {
	ctx := context.Background()
	cache := token.NewCache(newFakeStore())
	b := New(cache, &fakeSource{}, &fakeExchange{}, 0)

	_, err := b.Acquire(ctx)
	assert.ErrorIs(t, err, pkgerrors.ErrNoUpstreamSession)
}

func TestAcquireNoIdentityAssertion(t *testing.T) {
	ctx := context.Background()
	cache := token.NewCache(newFakeStore())
	src := &fakeSource{sess: &identity.Session{}}
	b := New(cache, src, &fakeExchange{}, 0)

	_, err := b.Acquire(ctx)
	assert.ErrorIs(t, err, pkgerrors.ErrNoIdentityAssertion)
}

func TestAcquireExchangeFailureLeavesCacheEmpty(t *testing.T) {
	ctx := context.Background()
	cache := token.NewCache(newFakeStore())
	require.NoError(t, cache.Set(ctx, mintToken(t, 30*time.Second)))

	src := &fakeSource{sess: &identity.Session{Assertion: "assertion"}}
	ex := &fakeExchange{err: pkgerrors.ErrExchangeFailed}
	b := New(cache, src, ex, 120*time.Second)

	_, err := b.Acquire(ctx)
	assert.ErrorIs(t, err, pkgerrors.ErrExchangeFailed)

	_, ok := cache.Get(ctx)
	assert.False(t, ok)
}

type blockingExchange struct {
	token   string
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func (f *blockingExchange) ExchangeAssertion(ctx context.Context, assertion string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	<-f.release
	return f.token, nil
}

func (f *blockingExchange) LoginWithCredentials(ctx context.Context, username, password string) (string, error) {
	return "", pkgerrors.ErrInvalidCredentials
}

func (f *blockingExchange) Revoke(ctx context.Context, backendToken string) error { return nil }

func TestAcquireConcurrentCallersShareOneExchange(t *testing.T) {
	ctx := context.Background()
	cache := token.NewCache(newFakeStore())
	fresh := mintToken(t, time.Hour)
	src := &fakeSource{sess: &identity.Session{Assertion: "assertion"}}
	ex := &blockingExchange{token: fresh, release: make(chan struct{})}
	b := New(cache, src, ex, 120*time.Second)

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := b.Acquire(ctx)
			assert.NoError(t, err)
			results[i] = got
		}(i)
	}

	// Let every caller reach the broker while the exchange is held open,
	// then let it finish.
	time.Sleep(50 * time.Millisecond)
	close(ex.release)
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, fresh, got)
	}
	ex.mu.Lock()
	defer ex.mu.Unlock()
	assert.Equal(t, 1, ex.calls)
}
