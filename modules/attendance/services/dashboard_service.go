package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/autopeca/marketplace/modules/attendance/domain/aggregates/attendance"
	"github.com/autopeca/marketplace/modules/attendance/domain/aggregates/solicitation"
	"github.com/autopeca/marketplace/modules/attendance/domain/entities/agent"
	"github.com/autopeca/marketplace/modules/attendance/domain/entities/store"
	"github.com/autopeca/marketplace/pkg/composables"
)

type Stats struct {
	Available    int64 `json:"available"`
	Seen         int64 `json:"seen"`
	ClaimedToday int64 `json:"claimed_today"`
	ClaimedTotal int64 `json:"claimed_total"`
}

// StatsCache is a best-effort byte cache. A miss is (nil, false, nil).
type StatsCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type DashboardService struct {
	solicitations solicitation.Repository
	records       attendance.Repository
	actors        actorResolver
	loc           *time.Location
	cache         StatsCache
	ttl           time.Duration

	inTx txRunner
	now  func() time.Time
}

type DashboardOption func(*DashboardService)

// WithStatsCache enables caching of Stats for ttl. A non-positive ttl disables the cache.
func WithStatsCache(cache StatsCache, ttl time.Duration) DashboardOption {
	return func(s *DashboardService) {
		if cache == nil || ttl <= 0 {
			return
		}
		s.cache = cache
		s.ttl = ttl
	}
}

func NewDashboardService(
	solicitations solicitation.Repository,
	records attendance.Repository,
	agents agent.Repository,
	stores store.Repository,
	loc *time.Location,
	opts ...DashboardOption,
) *DashboardService {
	if loc == nil {
		loc = time.Local
	}
	s := &DashboardService{
		solicitations: solicitations,
		records:       records,
		actors:        actorResolver{agents: agents, stores: stores},
		loc:           loc,
		inTx:          composables.InTx,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stats summarizes the agent's queue. Counts are read without locking and may be slightly stale.
func (s *DashboardService) Stats(ctx context.Context, agentID uuid.UUID) (*Stats, error) {
	logger := composables.UseLogger(ctx).WithField("agent_id", agentID)

	key := "attendance:stats:" + agentID.String()
	if cached, ok := s.cached(ctx, logger, key); ok {
		return cached, nil
	}

	stats, err := inTxResult(ctx, s.inTx, func(txCtx context.Context) (*Stats, error) {
		actor, err := s.actors.resolve(txCtx, agentID)
		if err != nil {
			return nil, err
		}
		out := &Stats{}
		if out.Available, err = s.solicitations.CountAvailable(txCtx, availableParams(actor, Page{})); err != nil {
			return nil, storageFailure(err)
		}
		if out.Seen, err = s.solicitations.CountMarked(txCtx, markedParams(actor, solicitation.MarkedSeen, Page{})); err != nil {
			return nil, storageFailure(err)
		}
		if out.ClaimedToday, err = s.records.CountClaimedByAgent(txCtx, actor.Agent.ID, s.startOfDay()); err != nil {
			return nil, storageFailure(err)
		}
		if out.ClaimedTotal, err = s.records.CountClaimedByAgent(txCtx, actor.Agent.ID, time.Time{}); err != nil {
			return nil, storageFailure(err)
		}
		return out, nil
	}, composables.WithReadOnly())
	if err != nil {
		if !isServiceError(err) {
			err = storageFailure(err)
		}
		logOutcome(logger, "dashboard", err)
		return nil, err
	}

	s.store(ctx, logger, key, stats)
	return stats, nil
}

// startOfDay is local midnight in the configured timezone.
func (s *DashboardService) startOfDay() time.Time {
	now := s.now().In(s.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
}

func (s *DashboardService) cached(ctx context.Context, logger *logrus.Entry, key string) (*Stats, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		recordCacheRequest("error")
		logger.WithError(err).Warn("attendance: dashboard cache read failed")
		return nil, false
	}
	if !ok {
		recordCacheRequest("miss")
		return nil, false
	}
	var stats Stats
	if err := json.Unmarshal(raw, &stats); err != nil {
		recordCacheRequest("error")
		logger.WithError(err).Warn("attendance: dashboard cache entry is corrupt")
		return nil, false
	}
	recordCacheRequest("hit")
	return &stats, true
}

func (s *DashboardService) store(ctx context.Context, logger *logrus.Entry, key string, stats *Stats) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
		logger.WithError(err).Warn("attendance: dashboard cache write failed")
	}
}
