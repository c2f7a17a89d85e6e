package services

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/camden-git/civicregistry/cache"
	"github.com/camden-git/civicregistry/database"
	"github.com/camden-git/civicregistry/logger"
	"github.com/camden-git/civicregistry/metrics"
)

// StatsCacheKey is the cache key of the current statistics snapshot.
const StatsCacheKey = "statistics:v1"

// Statistics is the registry overview.
type Statistics struct {
	Households       int64            `json:"households"`
	PersonsByStatus  map[string]int64 `json:"persons_by_status"`
	ActiveByGender   map[string]int64 `json:"active_by_gender"`
	ActiveByAgeGroup map[string]int64 `json:"active_by_age_group"`
	ActivePermits    map[string]int64 `json:"active_permits"`
	ReferenceDate    time.Time        `json:"reference_date"`
}

// StatsQuerier runs the aggregate queries; *database.StatsDB implements it.
type StatsQuerier interface {
	CountHouseholds(ctx context.Context) (int64, error)
	PersonsByStatus(ctx context.Context) (map[string]int64, error)
	ActivePersonsByGender(ctx context.Context) (map[string]int64, error)
	ActivePersonsInAgeGroup(ctx context.Context, g database.AgeGroup, ref time.Time) (int64, error)
	ActivePermitsByKind(ctx context.Context, ref time.Time) (map[string]int64, error)
}

type StatisticsService struct {
	stats   StatsQuerier
	cache   cache.Store
	ttl     time.Duration
	metrics *metrics.Metrics
	log     *logger.Logger
	now     func() time.Time
}

// NewStatisticsService builds the service. store may be nil to disable caching.
func NewStatisticsService(stats StatsQuerier, store cache.Store, ttl time.Duration, m *metrics.Metrics, log *logger.Logger) *StatisticsService {
	if log == nil {
		log = logger.Nop()
	}
	return &StatisticsService{
		stats:   stats,
		cache:   store,
		ttl:     ttl,
		metrics: m,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Overview returns the statistics, from cache when a fresh copy exists. Cache failures
// are logged and otherwise ignored.
func (s *StatisticsService) Overview(ctx context.Context) (*Statistics, error) {
	if s.cache != nil {
		var cached Statistics
		ok, err := s.cache.Get(ctx, StatsCacheKey, &cached)
		if err != nil {
			s.log.Warnf("Statistics cache read failed: %v", err)
		}
		s.metrics.IncrementCacheLookup(ok)
		if ok {
			return &cached, nil
		}
	}

	st, err := s.compute(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, StatsCacheKey, st, s.ttl); err != nil {
			s.log.Warnf("Statistics cache write failed: %v", err)
		}
	}
	return st, nil
}

// Invalidate drops the cached statistics. Called when the ledger reports a change.
func (s *StatisticsService) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, StatsCacheKey)
}

func (s *StatisticsService) compute(ctx context.Context) (*Statistics, error) {
	ref := s.now()
	st := &Statistics{ReferenceDate: ref}
	ageCounts := make([]int64, len(database.AgeGroups))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		st.Households, err = s.stats.CountHouseholds(gctx)
		return err
	})
	g.Go(func() (err error) {
		st.PersonsByStatus, err = s.stats.PersonsByStatus(gctx)
		return err
	})
	g.Go(func() (err error) {
		st.ActiveByGender, err = s.stats.ActivePersonsByGender(gctx)
		return err
	})
	g.Go(func() (err error) {
		st.ActivePermits, err = s.stats.ActivePermitsByKind(gctx, ref)
		return err
	})
	for i, group := range database.AgeGroups {
		i, group := i, group
		g.Go(func() (err error) {
			ageCounts[i], err = s.stats.ActivePersonsInAgeGroup(gctx, group, ref)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, internal(err, "failed to compute statistics")
	}

	st.ActiveByAgeGroup = make(map[string]int64, len(database.AgeGroups))
	for i, group := range database.AgeGroups {
		st.ActiveByAgeGroup[group.Label] = ageCounts[i]
	}
	return st, nil
}
