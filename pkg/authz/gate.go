package authz

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/carehub/pkg/membership"
	"github.com/platinummonkey/carehub/pkg/observability"
	"github.com/platinummonkey/carehub/pkg/period"
)

// RoleSource computes the role groups active for a subject on a date.
// *membership.Ledger satisfies it.
type RoleSource interface {
	ActiveRoles(ctx context.Context, subjectID int64, at time.Time) (membership.RoleSet, error)
}

type cachedRoles struct {
	day   time.Time
	roles membership.RoleSet
}

// Gate answers "does this subject currently hold this role".
// Every failure denies.
type Gate struct {
	roles    RoleSource
	identity Identity
	now      func() time.Time
	cache    *lru.LRU[int64, cachedRoles]
	logger   logrus.FieldLogger

	// generation counts invalidations; a lookup that started before one
	// must not fill the cache.
	mu         sync.Mutex
	generation uint64
	metrics  *observability.Metrics
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithGateClock overrides the clock that defines "now".
func WithGateClock(now func() time.Time) GateOption {
	return func(g *Gate) { g.now = now }
}

// WithGateLogger sets the gate logger.
func WithGateLogger(logger logrus.FieldLogger) GateOption {
	return func(g *Gate) { g.logger = logger }
}

// WithGateMetrics records authorization outcomes.
func WithGateMetrics(m *observability.Metrics) GateOption {
	return func(g *Gate) { g.metrics = m }
}

// WithCache caches each subject's active roles for ttl. A non-positive ttl
// or size disables the cache. A lookup in flight while Invalidate runs still
// answers with what it read, but its result is not cached.
func WithCache(size int, ttl time.Duration) GateOption {
	return func(g *Gate) {
		if size <= 0 || ttl <= 0 {
			g.cache = nil
			return
		}
		g.cache = lru.NewLRU[int64, cachedRoles](size, nil, ttl)
	}
}

// NewGate creates a gate over roles. identity may be nil, in which case no
// subject is a super-admin and Authorize always denies.
func NewGate(roles RoleSource, identity Identity, opts ...GateOption) *Gate {
	g := &Gate{
		roles:    roles,
		identity: identity,
		now:      time.Now,
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// IsAuthorized reports whether subjectID is a super-admin or holds role
// today.
func (g *Gate) IsAuthorized(ctx context.Context, subjectID int64, role string) bool {
	if g.identity != nil && g.identity.IsSuperAdmin(ctx, subjectID) {
		g.metrics.AuthorizationCheck(observability.OutcomeAllowed)
		return true
	}

	roles, err := g.activeRoles(ctx, subjectID)
	if err != nil {
		g.metrics.AuthorizationCheck(observability.OutcomeError)
		g.logger.WithFields(logrus.Fields{
			"subject_id": subjectID,
			"role":       role,
		}).WithError(err).Warn("authorization check failed, denying")
		return false
	}

	if roles.Has(role) {
		g.metrics.AuthorizationCheck(observability.OutcomeAllowed)
		return true
	}
	g.metrics.AuthorizationCheck(observability.OutcomeDenied)
	return false
}

// Authorize checks the current caller of ctx.
func (g *Gate) Authorize(ctx context.Context, role string) bool {
	if g.identity == nil {
		return false
	}
	subjectID, ok := g.identity.CurrentSubject(ctx)
	if !ok {
		return false
	}
	return g.IsAuthorized(ctx, subjectID, role)
}

// Invalidate drops the cached roles of a subject. Register it as a ledger
// change hook.
func (g *Gate) Invalidate(subjectID int64) {
	if g.cache == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.generation++
	g.cache.Remove(subjectID)
}

func (g *Gate) activeRoles(ctx context.Context, subjectID int64) (membership.RoleSet, error) {
	today := period.Date(g.now())

	var generation uint64
	if g.cache != nil {
		if entry, ok := g.cache.Get(subjectID); ok && entry.day.Equal(today) {
			return entry.roles, nil
		}
		g.mu.Lock()
		generation = g.generation
		g.mu.Unlock()
	}

	roles, err := g.roles.ActiveRoles(ctx, subjectID, today)
	if err != nil {
		return nil, err
	}

	if g.cache != nil {
		g.mu.Lock()
		if g.generation == generation {
			g.cache.Add(subjectID, cachedRoles{day: today, roles: roles})
		}
		g.mu.Unlock()
	}
	return roles, nil
}
