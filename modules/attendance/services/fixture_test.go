package services

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/autopeca/marketplace/modules/attendance/domain/events"
	"github.com/autopeca/marketplace/pkg/eventbus"
)

type fixture struct {
	db         *memDB
	bus        eventbus.EventBusWithError
	claims     *ClaimService
	seen       *SeenService
	visibility *VisibilityService
	dashboard  *DashboardService
	now        time.Time

	mu        sync.Mutex
	conflicts []*events.ClaimConflictEvent
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := newMemDB()
	log := logrus.New()
	log.SetOutput(io.Discard)
	bus := eventbus.NewEventPublisher(log)

	f := &fixture{
		db:  db,
		bus: bus,
		now: time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }

	sols := memSolicitations{db: db}
	recs := memRecords{db: db}
	agents := memAgents{db: db}
	stores := memStores{db: db}

	f.claims = NewClaimService(sols, recs, agents, stores, memSink{db: db}, bus, pgx.ReadCommitted)
	f.claims.inTx = db.run
	f.claims.now = clock

	f.seen = NewSeenService(sols, recs, agents, stores)
	f.seen.inTx = db.run
	f.seen.now = clock

	f.visibility = NewVisibilityService(sols, agents, stores, 25, 100)
	f.visibility.inTx = db.run

	f.dashboard = NewDashboardService(sols, recs, agents, stores, time.UTC)
	f.dashboard.inTx = db.run
	f.dashboard.now = clock

	bus.Subscribe(func(ev *events.ClaimConflictEvent) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.conflicts = append(f.conflicts, ev)
	})
	return f
}

func (f *fixture) conflictEvents() []*events.ClaimConflictEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*events.ClaimConflictEvent, len(f.conflicts))
	copy(out, f.conflicts)
	return out
}
