package broker

import (
	"context"
	"log/slog"
	"time"

	"scalper/internal/breaker"
	"scalper/internal/domain"
)

// AccountSnapshot is the last-known view of the account. When an endpoint is
// degraded the cached values keep displaying; Degraded marks that state.
type AccountSnapshot struct {
	UserID    string
	Margins   domain.MarginSnapshot
	Degraded  bool
	FetchedAt time.Time
}

// AccountMonitor polls margins and profile behind independent circuit
// breakers, so a failing margins endpoint does not block profile lookups and
// vice versa. Callers always get the last successful values.
type AccountMonitor struct {
	exec           Execution
	marginBreaker  *breaker.Breaker
	profileBreaker *breaker.Breaker
	log            *slog.Logger

	lastMargins domain.MarginSnapshot
	lastUserID  string
	lastFetched time.Time
}

// NewAccountMonitor creates a monitor with one breaker per guarded endpoint.
func NewAccountMonitor(exec Execution, failureThreshold int, cooldown time.Duration, log *slog.Logger) *AccountMonitor {
	return &AccountMonitor{
		exec:           exec,
		marginBreaker:  breaker.New(failureThreshold, cooldown),
		profileBreaker: breaker.New(failureThreshold, cooldown),
		log:            log,
	}
}

// Refresh attempts to update margins and profile, each guarded by its own
// breaker, and returns the resulting snapshot. Failures are recorded on the
// breaker and logged; they never propagate.
func (m *AccountMonitor) Refresh(ctx context.Context) AccountSnapshot {
	if m.marginBreaker.CanExecute() {
		margins, err := m.exec.Margins(ctx)
		if err != nil {
			m.marginBreaker.RecordFailure()
			m.log.Warn("margins fetch failed", "err", err, "breaker", m.marginBreaker.State())
		} else {
			m.marginBreaker.RecordSuccess()
			m.lastMargins = margins
			m.lastFetched = time.Now()
		}
	}

	if m.profileBreaker.CanExecute() {
		profile, err := m.exec.Profile(ctx)
		if err != nil {
			m.profileBreaker.RecordFailure()
			m.log.Warn("profile fetch failed", "err", err, "breaker", m.profileBreaker.State())
		} else {
			m.profileBreaker.RecordSuccess()
			m.lastUserID = profile.UserID
		}
	}

	return m.Snapshot()
}

// Snapshot returns the cached account view without touching the network.
func (m *AccountMonitor) Snapshot() AccountSnapshot {
	return AccountSnapshot{
		UserID:    m.lastUserID,
		Margins:   m.lastMargins,
		Degraded:  m.marginBreaker.State() == breaker.StateOpen || m.profileBreaker.State() == breaker.StateOpen,
		FetchedAt: m.lastFetched,
	}
}
