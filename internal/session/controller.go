package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	stderrors "errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/openlms/admin-session/internal/audit"
	"github.com/openlms/admin-session/internal/broker"
	"github.com/openlms/admin-session/internal/identity"
	"github.com/openlms/admin-session/internal/infrastructure/observability"
	"github.com/openlms/admin-session/internal/models"
	"github.com/openlms/admin-session/internal/token"
	pkgerrors "github.com/openlms/admin-session/pkg/errors"
)

// DefaultRevalidateInterval is how often the background timer re-checks
// the cached token's expiry while a session is authenticated.
const DefaultRevalidateInterval = 10 * time.Minute

// TokenBroker acquires a usable backend token, from cache or by exchange.
type TokenBroker interface {
	Acquire(ctx context.Context) (string, error)
}

// RedirectFlag clears the one-shot redirect marker. The role router owns
// the flag; the controller only resets it through this accessor.
type RedirectFlag interface {
	Reset(ctx context.Context) error
}

// TokenStore is the slice of the token cache the controller needs for
// local invalidation.
type TokenStore interface {
	Set(ctx context.Context, tok string) error
	Clear(ctx context.Context) error
}

// Recorder receives session audit events.
type Recorder interface {
	Record(ctx context.Context, kind string, user *models.ClaimSet, detail string)
}

// Controller is the session state machine: Idle -> Checking ->
// {Authenticated, Unauthenticated, Error}. Unauthenticated and Error are
// stable until the next trigger (explicit refresh, credential login, or
// the background timer).
type Controller struct {
	mu    sync.Mutex
	state models.SessionState
	// gen counts settled transitions; a check whose snapshot no longer
	// matches is stale and its result is discarded.
	gen uint64

	broker   TokenBroker
	exchange broker.ExchangeClient
	identity identity.Source
	cache    TokenStore
	flags    RedirectFlag
	audit    Recorder

	interval time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

func NewController(
	b TokenBroker,
	exchange broker.ExchangeClient,
	src identity.Source,
	cache TokenStore,
	flags RedirectFlag,
	recorder Recorder,
	revalidateInterval time.Duration,
) *Controller {
	if revalidateInterval <= 0 {
		revalidateInterval = DefaultRevalidateInterval
	}
	return &Controller{
		state:    models.SessionState{Status: models.StatusIdle},
		broker:   b,
		exchange: exchange,
		identity: src,
		cache:    cache,
		flags:    flags,
		audit:    recorder,
		interval: revalidateInterval,
	}
}

// State returns a copy of the current session state.
func (c *Controller) State() models.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CheckAuth runs the auth check. A session that is already authenticated
// with a live token short-circuits without touching the broker.
func (c *Controller) CheckAuth(ctx context.Context) models.SessionState {
	return c.checkAuth(ctx, false)
}

// RefreshAuth re-runs the full check, bypassing the short-circuit. Every
// error kind is recoverable through it.
func (c *Controller) RefreshAuth(ctx context.Context) models.SessionState {
	st := c.checkAuth(ctx, true)
	if st.IsAuthenticated {
		c.audit.Record(ctx, audit.EventRefresh, st.User, "")
	}
	return st
}

func (c *Controller) checkAuth(ctx context.Context, force bool) models.SessionState {
	tracer := otel.Tracer("session-controller")
	ctx, span := tracer.Start(ctx, "CheckAuth")
	defer span.End()

	c.mu.Lock()
	if !force && c.state.IsAuthenticated && c.state.User != nil &&
		c.state.BackendToken != "" && !token.IsExpired(c.state.BackendToken) {
		st := c.state
		c.mu.Unlock()
		observability.SessionChecks.WithLabelValues("cached").Inc()
		return st
	}
	gen := c.gen
	wasAuthenticated := c.state.IsAuthenticated
	c.state.Status = models.StatusChecking
	c.state.IsLoading = true
	c.mu.Unlock()

	// Nobody signed in upstream is the normal visitor state, not an
	// error, and the broker is never invoked for it.
	sess, serr := c.identity.CurrentSession(ctx)
	if serr != nil || sess == nil || sess.Assertion == "" {
		if serr != nil {
			slog.Warn("upstream session lookup failed, treating as signed out", "error", serr)
		}
		observability.SessionChecks.WithLabelValues("unauthenticated").Inc()
		return c.settleUnauthenticated(ctx, gen)
	}

	tok, err := c.broker.Acquire(ctx)
	if err != nil {
		switch {
		case stderrors.Is(err, pkgerrors.ErrNoUpstreamSession),
			stderrors.Is(err, pkgerrors.ErrNoIdentityAssertion):
			// The upstream session disappeared between the check above
			// and the exchange.
			observability.SessionChecks.WithLabelValues("unauthenticated").Inc()
			return c.settleUnauthenticated(ctx, gen)
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, "auth check failed")
			observability.SessionChecks.WithLabelValues("error").Inc()
			c.audit.Record(ctx, audit.EventAuthFailed, nil, err.Error())
			st, _ := c.settleError(gen, errorKind(err))
			return st
		}
	}

	claims, derr := token.Decode(tok)
	if derr != nil {
		// The roundtrip cannot be trusted; drop the token so the next
		// check re-acquires.
		if cerr := c.cache.Clear(ctx); cerr != nil {
			slog.Warn("failed to clear undecodable token", "error", cerr)
		}
		observability.SessionChecks.WithLabelValues("error").Inc()
		st, _ := c.settleError(gen, "decode_failed")
		return st
	}

	observability.SessionChecks.WithLabelValues("authenticated").Inc()
	st, applied := c.settleAuthenticated(gen, claims, tok)
	if applied && !wasAuthenticated {
		c.audit.Record(ctx, audit.EventLogin, claims, "assertion exchange")
	}
	return st
}

// Login is the secondary direct credential path. It bypasses the broker's
// assertion flow entirely but lands in the same session state.
func (c *Controller) Login(ctx context.Context, username, password string) (models.SessionState, error) {
	tracer := otel.Tracer("session-controller")
	ctx, span := tracer.Start(ctx, "Login")
	defer span.End()

	c.mu.Lock()
	gen := c.gen
	c.state.Status = models.StatusChecking
	c.state.IsLoading = true
	c.mu.Unlock()

	tok, err := c.exchange.LoginWithCredentials(ctx, username, password)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "credential login failed")
		slog.Warn("credential login failed", "username", username, "error", err)
		c.audit.Record(ctx, audit.EventAuthFailed, nil, "credential login: "+err.Error())
		st, _ := c.settleError(gen, errorKind(err))
		return st, err
	}

	if err := c.cache.Set(ctx, tok); err != nil {
		slog.Warn("failed to cache login token", "error", err)
	}

	claims, derr := token.Decode(tok)
	if derr != nil {
		if cerr := c.cache.Clear(ctx); cerr != nil {
			slog.Warn("failed to clear undecodable token", "error", cerr)
		}
		st, _ := c.settleError(gen, "decode_failed")
		return st, derr
	}

	st, applied := c.settleAuthenticated(gen, claims, tok)
	if applied {
		c.audit.Record(ctx, audit.EventLogin, claims, "credential login")
	}
	return st, nil
}

// Logout revokes the token best-effort, then unconditionally clears the
// token cache, the redirect flag and the session state, and ends the
// upstream session. A failed remote revoke never blocks local cleanup.
func (c *Controller) Logout(ctx context.Context) models.SessionState {
	c.mu.Lock()
	user := c.state.User
	tok := c.state.BackendToken
	c.gen++
	c.state = models.SessionState{Status: models.StatusUnauthenticated}
	st := c.state
	c.mu.Unlock()

	if tok != "" {
		if err := c.exchange.Revoke(ctx, tok); err != nil {
			slog.Warn("remote revoke failed, local session cleared anyway", "error", err)
		}
	}
	if err := c.cache.Clear(ctx); err != nil {
		slog.Warn("failed to clear token cache on logout", "error", err)
	}
	if err := c.flags.Reset(ctx); err != nil {
		slog.Warn("failed to reset redirect flag on logout", "error", err)
	}
	if err := c.identity.EndSession(ctx); err != nil {
		slog.Warn("failed to end upstream session", "error", err)
	}

	c.audit.Record(ctx, audit.EventLogout, user, "")
	return st
}

// HasAdminAccess reports whether the current user holds an admin-level
// role. Pure query, no state transition.
func (c *Controller) HasAdminAccess() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.IsAuthenticated || c.state.User == nil {
		return false
	}
	switch c.state.User.Role {
	case models.RoleAdmin, models.RoleCollegeAdmin:
		return true
	}
	return false
}

// HasInstructorAccess reports whether the current user may use the
// instructor screens. Admin roles are a superset.
func (c *Controller) HasInstructorAccess() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.IsAuthenticated || c.state.User == nil {
		return false
	}
	switch c.state.User.Role {
	case models.RoleAdmin, models.RoleCollegeAdmin, models.RoleInstructor:
		return true
	}
	return false
}

// Start launches the background revalidation timer. Each tick only checks
// expiry; a token that crossed into expired triggers a full re-check.
func (c *Controller) Start(ctx context.Context) {
	c.stop = make(chan struct{})
	go c.run(ctx)
}

func (c *Controller) Stop() {
	if c.stop == nil {
		return
	}
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Controller) run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.revalidate(ctx)
		}
	}
}

func (c *Controller) revalidate(ctx context.Context) {
	c.mu.Lock()
	authenticated := c.state.IsAuthenticated
	tok := c.state.BackendToken
	c.mu.Unlock()

	if !authenticated {
		return
	}
	if tok == "" || token.IsExpired(tok) {
		slog.Info("cached token crossed into expired, re-running auth check")
		c.checkAuth(ctx, true)
	}
}

// settleUnauthenticated applies the unauthenticated terminal state and
// clears the token cache and redirect flag, per the unified clearing rule.
func (c *Controller) settleUnauthenticated(ctx context.Context, gen uint64) models.SessionState {
	c.mu.Lock()
	if c.gen != gen {
		st := c.state
		c.mu.Unlock()
		slog.Debug("discarding stale unauthenticated completion")
		return st
	}
	c.gen++
	c.state = models.SessionState{Status: models.StatusUnauthenticated}
	st := c.state
	c.mu.Unlock()

	if err := c.cache.Clear(ctx); err != nil {
		slog.Warn("failed to clear token cache", "error", err)
	}
	if err := c.flags.Reset(ctx); err != nil {
		slog.Warn("failed to reset redirect flag", "error", err)
	}
	return st
}

func (c *Controller) settleError(gen uint64, kind string) (models.SessionState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		slog.Debug("discarding stale error completion", "kind", kind)
		return c.state, false
	}
	c.gen++
	c.state = models.SessionState{
		Status:    models.StatusError,
		ErrorKind: kind,
	}
	return c.state, true
}

func (c *Controller) settleAuthenticated(gen uint64, claims *models.ClaimSet, tok string) (models.SessionState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		slog.Debug("discarding stale authenticated completion")
		return c.state, false
	}
	c.gen++
	c.state = models.SessionState{
		Status:          models.StatusAuthenticated,
		User:            claims,
		IsAuthenticated: true,
		BackendToken:    tok,
	}
	return c.state, true
}

func errorKind(err error) string {
	switch {
	case stderrors.Is(err, pkgerrors.ErrInvalidCredentials):
		return "invalid_credentials"
	case stderrors.Is(err, pkgerrors.ErrDecodeFailed):
		return "decode_failed"
	case stderrors.Is(err, pkgerrors.ErrExchangeFailed):
		return "exchange_failed"
	default:
		return "exchange_failed"
	}
}
