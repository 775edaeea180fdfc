package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/openlms/admin-session/internal/models"
)

const (
	EventLogin      = "login"
	EventLogout     = "logout"
	EventRefresh    = "refresh"
	EventAuthFailed = "auth_failed"
)

// Event is one entry in the session audit trail.
type Event struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Subject    string    `json:"subject"`
	Username   string    `json:"username"`
	Role       string    `json:"role"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Repository persists audit events.
type Repository interface {
	Insert(ctx context.Context, ev *Event) error
}

// Publisher forwards audit events to the event stream.
type Publisher interface {
	Send(ctx context.Context, key string, value []byte) error
}

// Recorder fans an event out to the repository and the event stream.
// Both sinks are best-effort: a failed write is logged and never blocks
// the session flow.
type Recorder struct {
	repo Repository
	pub  Publisher
}

func NewRecorder(repo Repository, pub Publisher) *Recorder {
	return &Recorder{repo: repo, pub: pub}
}

// Record fills in the event id and timestamp and writes the event to every
// configured sink.
func (r *Recorder) Record(ctx context.Context, kind string, user *models.ClaimSet, detail string) {
	ev := &Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		Detail:     detail,
		OccurredAt: time.Now().UTC(),
	}
	if user != nil {
		ev.Subject = user.Subject
		ev.Username = user.Username
		ev.Role = string(user.Role)
	}

	if r.repo != nil {
		if err := r.repo.Insert(ctx, ev); err != nil {
			slog.Warn("failed to persist audit event", "kind", kind, "error", err)
		}
	}
	if r.pub != nil {
		payload, err := json.Marshal(ev)
		if err != nil {
			slog.Warn("failed to marshal audit event", "kind", kind, "error", err)
			return
		}
		if err := r.pub.Send(ctx, ev.ID, payload); err != nil {
			slog.Warn("failed to publish audit event", "kind", kind, "error", err)
		}
	}
}
