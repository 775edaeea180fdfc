package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/openlms/admin-session/internal/identity"
	"github.com/openlms/admin-session/internal/infrastructure/observability"
	"github.com/openlms/admin-session/internal/token"
	pkgerrors "github.com/openlms/admin-session/pkg/errors"
)

// Broker turns the upstream identity assertion into a backend access
// token, serving from the two-tier cache whenever the cached token is
// neither expired nor about to expire.
type Broker struct {
	cache    *token.Cache
	identity identity.Source
	exchange ExchangeClient
	buffer   time.Duration

	// One exchange in flight at a time; concurrent callers wait for it.
	// The exchange endpoint is idempotent per assertion, so this is a
	// load optimization, not a correctness requirement.
	mu       sync.Mutex
	inflight *flight
}

type flight struct {
	done  chan struct{}
	token string
	err   error
}

func New(cache *token.Cache, src identity.Source, exchange ExchangeClient, expiryBuffer time.Duration) *Broker {
	if expiryBuffer <= 0 {
		expiryBuffer = token.DefaultExpiryBuffer
	}
	return &Broker{
		cache:    cache,
		identity: src,
		exchange: exchange,
		buffer:   expiryBuffer,
	}
}

// Acquire returns a usable backend token. The fast path is a cache hit
// with comfortable remaining lifetime and performs no network call.
func (b *Broker) Acquire(ctx context.Context) (string, error) {
	tracer := otel.Tracer("session-broker")
	ctx, span := tracer.Start(ctx, "Acquire")
	defer span.End()

	if tok, ok := b.cache.Get(ctx); ok && !token.IsExpiringSoon(tok, b.buffer) {
		return tok, nil
	}

	b.mu.Lock()
	if f := b.inflight; f != nil {
		b.mu.Unlock()
		select {
		case <-f.done:
			return f.token, f.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f := &flight{done: make(chan struct{})}
	b.inflight = f
	b.mu.Unlock()

	f.token, f.err = b.exchangeFresh(ctx)

	b.mu.Lock()
	b.inflight = nil
	b.mu.Unlock()
	close(f.done)

	if f.err != nil {
		span.RecordError(f.err)
		span.SetStatus(codes.Error, "acquire failed")
	}
	return f.token, f.err
}

func (b *Broker) exchangeFresh(ctx context.Context) (string, error) {
	// An expiring token must not be handed out as a cache hit while the
	// exchange runs, so the cache is emptied up front.
	if err := b.cache.Clear(ctx); err != nil {
		slog.Warn("failed to clear token cache before exchange", "error", err)
	}

	sess, err := b.identity.CurrentSession(ctx)
	if err != nil {
		observability.TokenExchanges.WithLabelValues("no_session").Inc()
		return "", fmt.Errorf("%w: %v", pkgerrors.ErrNoUpstreamSession, err)
	}
	if sess == nil {
		observability.TokenExchanges.WithLabelValues("no_session").Inc()
		return "", pkgerrors.ErrNoUpstreamSession
	}
	if sess.Assertion == "" {
		observability.TokenExchanges.WithLabelValues("no_assertion").Inc()
		return "", pkgerrors.ErrNoIdentityAssertion
	}

	tok, err := b.exchange.ExchangeAssertion(ctx, sess.Assertion)
	if err != nil {
		observability.TokenExchanges.WithLabelValues("failed").Inc()
		slog.Error("assertion exchange failed", "error", err)
		return "", err
	}

	if err := b.cache.Set(ctx, tok); err != nil {
		// The token is still good; only the persisted tier write failed.
		slog.Warn("failed to persist exchanged token", "error", err)
	}
	observability.TokenExchanges.WithLabelValues("success").Inc()
	return tok, nil
}
