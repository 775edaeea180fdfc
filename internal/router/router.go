package router

import (
	"context"
	"log/slog"

	stderrors "errors"

	"github.com/openlms/admin-session/internal/infrastructure/redis"
	"github.com/openlms/admin-session/internal/models"
)

// redirectKey is the fixed key of the one-shot flag in the persisted tier.
const redirectKey = "admin_session:redirected"

// Decision is what the console should do after an authenticated
// transition. The zero value means "stay put".
type Decision struct {
	Redirect    bool   `json:"redirect"`
	Destination string `json:"destination,omitempty"`
	External    bool   `json:"external,omitempty"`
	EndSession  bool   `json:"end_session,omitempty"`
}

// Router computes the one-shot role-based landing redirect. Roles the
// console does not serve are sent to their external portal and have the
// local session terminated; that path ignores the one-shot flag.
type Router struct {
	store redis.KVStore

	landing    map[models.Role]string
	restricted map[models.Role]string
}

// New builds a Router. studentPortalURL and recruiterPortalURL are the
// external destinations for the two roles the console does not serve.
func New(store redis.KVStore, studentPortalURL, recruiterPortalURL string) *Router {
	return &Router{
		store: store,
		landing: map[models.Role]string{
			models.RoleAdmin:        "/admin/dashboard",
			models.RoleCollegeAdmin: "/college/dashboard",
			models.RoleInstructor:   "/instructor/dashboard",
		},
		restricted: map[models.Role]string{
			models.RoleStudent:   studentPortalURL,
			models.RoleRecruiter: recruiterPortalURL,
		},
	}
}

func isEntryPath(path string) bool {
	return path == "" || path == "/" || path == "/login"
}

// Route decides the navigation for a freshly authenticated session at
// currentPath. Manual navigation is never overridden: anything but a
// generic entry path stays put, as does an unmapped role.
func (r *Router) Route(ctx context.Context, role models.Role, currentPath string) Decision {
	if dest, ok := r.restricted[role]; ok && dest != "" {
		return Decision{Redirect: true, Destination: dest, External: true, EndSession: true}
	}

	if !isEntryPath(currentPath) {
		return Decision{}
	}
	if r.alreadyRedirected(ctx) {
		return Decision{}
	}

	dest, ok := r.landing[role]
	if !ok {
		return Decision{}
	}

	if err := r.store.Set(ctx, redirectKey, "1", 0); err != nil {
		slog.Warn("failed to persist redirect flag", "error", err)
	}
	return Decision{Redirect: true, Destination: dest}
}

func (r *Router) alreadyRedirected(ctx context.Context) bool {
	val, err := r.store.Get(ctx, redirectKey)
	if err != nil {
		if !stderrors.Is(err, redis.ErrKeyNotFound) {
			slog.Warn("failed to read redirect flag", "error", err)
		}
		return false
	}
	return val == "1"
}

// Reset clears the one-shot flag. The session controller calls it on
// logout and whenever the upstream session disappears.
func (r *Router) Reset(ctx context.Context) error {
	return r.store.Del(ctx, redirectKey)
}
