package services

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/autopeca/marketplace/modules/attendance/domain/aggregates/attendance"
	"github.com/autopeca/marketplace/modules/attendance/domain/aggregates/solicitation"
	"github.com/autopeca/marketplace/modules/attendance/domain/entities/agent"
	"github.com/autopeca/marketplace/modules/attendance/domain/entities/store"
	"github.com/autopeca/marketplace/pkg/composables"
)

type journalKey struct{}

type journal struct {
	undo    []func()
	release []func()
}

type sinkEvent struct {
	Topic       string
	AggregateID uuid.UUID
	Payload     json.RawMessage
}

// memDB is an in-memory ledger that enforces the same unique indexes as the migrations and
// undoes a transaction's writes when it fails.
type memDB struct {
	mu sync.Mutex

	solicitations map[uuid.UUID]*solicitation.Solicitation
	customers     map[uuid.UUID]*solicitation.Customer
	agents        map[uuid.UUID]*agent.Agent
	stores        map[uuid.UUID]*store.Store
	records       map[uuid.UUID]*attendance.Record
	events        []sinkEvent
	claimLocks    map[string]*sync.Mutex

	// hooks, all optional
	beforeCommit   func(ctx context.Context) error
	beforeCreate   func(rec *attendance.Record)
	afterPeerCheck func()
	beforeLock     func(ctx context.Context)
	failUpdate     func() error
	failEnqueue    error
	failCount      error
}

func newMemDB() *memDB {
	return &memDB{
		solicitations: map[uuid.UUID]*solicitation.Solicitation{},
		customers:     map[uuid.UUID]*solicitation.Customer{},
		agents:        map[uuid.UUID]*agent.Agent{},
		stores:        map[uuid.UUID]*store.Store{},
		records:       map[uuid.UUID]*attendance.Record{},
		claimLocks:    map[string]*sync.Mutex{},
	}
}

func (db *memDB) run(ctx context.Context, fn func(context.Context) error, _ ...composables.TxOption) error {
	j := &journal{}
	txCtx := context.WithValue(ctx, journalKey{}, j)
	err := fn(txCtx)
	if err == nil && db.beforeCommit != nil {
		err = db.beforeCommit(txCtx)
	}
	if err != nil {
		db.mu.Lock()
		for i := len(j.undo) - 1; i >= 0; i-- {
			j.undo[i]()
		}
		db.mu.Unlock()
	}
	for i := len(j.release) - 1; i >= 0; i-- {
		j.release[i]()
	}
	return err
}

// onUndo must be called with db.mu held.
func onUndo(ctx context.Context, fn func()) {
	if j, ok := ctx.Value(journalKey{}).(*journal); ok {
		j.undo = append(j.undo, fn)
	}
}

func (db *memDB) addStore(city, state string, active bool) *store.Store {
	s := &store.Store{ID: uuid.New(), Name: "Loja " + city, Phone: "+55 11 4000-0000", City: city, State: state, Active: active}
	db.stores[s.ID] = s
	return s
}

func (db *memDB) addAgent(st *store.Store, active bool) *agent.Agent {
	a := &agent.Agent{ID: uuid.New(), StoreID: st.ID, Name: "Vendedor", Phone: "+55 11 98888-0000", Email: "v@example.com", Active: active}
	db.agents[a.ID] = a
	return a
}

func (db *memDB) addSolicitation(city, state string, status solicitation.Status, createdAt time.Time) *solicitation.Solicitation {
	c := &solicitation.Customer{ID: uuid.New(), Name: "Cliente", Phone: "+55 11 97777-0000", Email: "c@example.com"}
	db.customers[c.ID] = c
	yf := 2015
	s := &solicitation.Solicitation{
		ID:          uuid.New(),
		CustomerID:  c.ID,
		Description: "Retrovisor esquerdo",
		Vehicle:     solicitation.Vehicle{Make: "Fiat", Model: "Uno", YearFrom: &yf},
		City:        city,
		State:       state,
		Status:      status,
		CreatedAt:   createdAt,
		ImageURLs:   []string{"https://cdn.example.com/" + city + ".jpg"},
	}
	db.solicitations[s.ID] = s
	return s
}

func (db *memDB) addRecord(sol *solicitation.Solicitation, a *agent.Agent, status attendance.Status, markedAt time.Time) *attendance.Record {
	r := &attendance.Record{ID: uuid.New(), SolicitationID: sol.ID, StoreID: a.StoreID, AgentID: a.ID, Status: status, MarkedAt: markedAt}
	db.records[r.ID] = r
	return r
}

func (db *memDB) recordsFor(solicitationID uuid.UUID) []attendance.Record {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []attendance.Record
	for _, r := range db.records {
		if r.SolicitationID == solicitationID {
			out = append(out, *r)
		}
	}
	return out
}

func (db *memDB) eventCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.events)
}

// repositories

type memSolicitations struct{ db *memDB }

func (r memSolicitations) GetByID(_ context.Context, id uuid.UUID) (*solicitation.Solicitation, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.solicitations[id]
	if !ok {
		return nil, solicitation.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r memSolicitations) GetCustomer(_ context.Context, id uuid.UUID) (*solicitation.Customer, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.customers[id]
	if !ok {
		return nil, solicitation.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func areaMatch(s *solicitation.Solicitation, city, state string) bool {
	return strings.EqualFold(strings.TrimSpace(s.City), strings.TrimSpace(city)) &&
		strings.EqualFold(strings.TrimSpace(s.State), strings.TrimSpace(state))
}

func (r memSolicitations) available(p *solicitation.AvailableParams) []*solicitation.Solicitation {
	var out []*solicitation.Solicitation
	for _, s := range r.db.solicitations {
		if !s.IsActive() || !areaMatch(s, p.City, p.State) {
			continue
		}
		excluded := false
		for _, rec := range r.db.records {
			if rec.SolicitationID != s.ID {
				continue
			}
			if (rec.StoreID == p.StoreID && rec.IsClaimed()) || (rec.AgentID == p.AgentID && rec.IsSeen()) {
				excluded = true
				break
			}
		}
		if !excluded {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func (r memSolicitations) ListAvailable(_ context.Context, p *solicitation.AvailableParams) ([]*solicitation.Solicitation, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return paginate(r.available(p), p.Limit, p.Offset), nil
}

func (r memSolicitations) CountAvailable(_ context.Context, p *solicitation.AvailableParams) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.failCount != nil {
		return 0, r.db.failCount
	}
	return int64(len(r.available(p))), nil
}

func (r memSolicitations) marked(p *solicitation.MarkedParams) []*solicitation.Marked {
	var out []*solicitation.Marked
	for _, rec := range r.db.records {
		if rec.AgentID != p.AgentID || string(rec.Status) != string(p.Status) {
			continue
		}
		s := r.db.solicitations[rec.SolicitationID]
		if p.EligibleOnly && (!s.IsActive() || !areaMatch(s, p.City, p.State)) {
			continue
		}
		cp := *s
		out = append(out, &solicitation.Marked{Solicitation: &cp, RecordID: rec.ID, MarkedAt: rec.MarkedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarkedAt.After(out[j].MarkedAt) })
	return out
}

func (r memSolicitations) ListMarked(_ context.Context, p *solicitation.MarkedParams) ([]*solicitation.Marked, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return paginate(r.marked(p), p.Limit, p.Offset), nil
}

func (r memSolicitations) CountMarked(_ context.Context, p *solicitation.MarkedParams) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return int64(len(r.marked(p))), nil
}

type memAgents struct{ db *memDB }

func (r memAgents) GetByID(_ context.Context, id uuid.UUID) (*agent.Agent, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	a, ok := r.db.agents[id]
	if !ok {
		return nil, agent.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

type memStores struct{ db *memDB }

func (r memStores) GetByID(_ context.Context, id uuid.UUID) (*store.Store, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.stores[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

type memRecords struct{ db *memDB }

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint, Message: "duplicate key value violates unique constraint"}
}

// checkUnique must be called with db.mu held.
func (r memRecords) checkUnique(rec *attendance.Record) error {
	for _, other := range r.db.records {
		if other.ID == rec.ID || other.SolicitationID != rec.SolicitationID {
			continue
		}
		if other.AgentID == rec.AgentID {
			return uniqueViolation(attendance.AgentConstraint)
		}
		if rec.IsClaimed() && other.IsClaimed() && other.StoreID == rec.StoreID {
			return uniqueViolation(attendance.ClaimedStoreConstraint)
		}
	}
	return nil
}

func (r memRecords) FindByRequestAndAgent(_ context.Context, solicitationID, agentID uuid.UUID) (*attendance.Record, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, rec := range r.db.records {
		if rec.SolicitationID == solicitationID && rec.AgentID == agentID {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, attendance.ErrRecordNotFound
}

func (r memRecords) FindClaimedByRequestAndStore(_ context.Context, solicitationID, storeID uuid.UUID) (*attendance.Record, error) {
	if hook := r.db.afterPeerCheck; hook != nil {
		defer hook()
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, rec := range r.db.records {
		if rec.SolicitationID == solicitationID && rec.StoreID == storeID && rec.IsClaimed() {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, attendance.ErrRecordNotFound
}

// LockStoreClaim holds a per (solicitation, store) mutex until the transaction ends.
func (r memRecords) LockStoreClaim(ctx context.Context, solicitationID, storeID uuid.UUID) error {
	if hook := r.db.beforeLock; hook != nil {
		hook(ctx)
	}
	j, ok := ctx.Value(journalKey{}).(*journal)
	if !ok {
		return errors.New("claim lock outside a transaction")
	}
	key := solicitationID.String() + ":" + storeID.String()
	r.db.mu.Lock()
	m, ok := r.db.claimLocks[key]
	if !ok {
		m = &sync.Mutex{}
		r.db.claimLocks[key] = m
	}
	r.db.mu.Unlock()

	m.Lock()
	j.release = append(j.release, m.Unlock)
	return nil
}

func (r memRecords) Create(ctx context.Context, rec *attendance.Record) (*attendance.Record, error) {
	if hook := r.db.beforeCreate; hook != nil {
		hook(rec)
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cp := *rec
	cp.ID = uuid.New()
	if err := r.checkUnique(&cp); err != nil {
		return nil, err
	}
	r.db.records[cp.ID] = &cp
	onUndo(ctx, func() { delete(r.db.records, cp.ID) })
	out := cp
	return &out, nil
}

func (r memRecords) UpdateStatus(ctx context.Context, id uuid.UUID, status attendance.Status, markedAt time.Time) (*attendance.Record, error) {
	if hook := r.db.failUpdate; hook != nil {
		if err := hook(); err != nil {
			return nil, err
		}
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	rec, ok := r.db.records[id]
	if !ok {
		return nil, attendance.ErrRecordNotFound
	}
	next := *rec
	next.Status = status
	next.MarkedAt = markedAt
	if err := r.checkUnique(&next); err != nil {
		return nil, err
	}
	prev := *rec
	*rec = next
	onUndo(ctx, func() { *rec = prev })
	out := next
	return &out, nil
}

func (r memRecords) Delete(ctx context.Context, id uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	rec, ok := r.db.records[id]
	if !ok {
		return attendance.ErrRecordNotFound
	}
	delete(r.db.records, id)
	onUndo(ctx, func() { r.db.records[id] = rec })
	return nil
}

func (r memRecords) DeleteSeenByRequestAndStore(ctx context.Context, solicitationID, storeID, exceptAgentID uuid.UUID) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for id, rec := range r.db.records {
		if rec.SolicitationID == solicitationID && rec.StoreID == storeID && rec.AgentID != exceptAgentID && rec.IsSeen() {
			delete(r.db.records, id)
			removed := rec
			onUndo(ctx, func() { r.db.records[removed.ID] = removed })
			n++
		}
	}
	return n, nil
}

func (r memRecords) CountClaimedByAgent(_ context.Context, agentID uuid.UUID, since time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for _, rec := range r.db.records {
		if rec.AgentID == agentID && rec.IsClaimed() && (since.IsZero() || !rec.MarkedAt.Before(since)) {
			n++
		}
	}
	return n, nil
}

type memSink struct{ db *memDB }

func (s memSink) Enqueue(ctx context.Context, topic string, aggregateID uuid.UUID, payload any) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.failEnqueue != nil {
		return s.db.failEnqueue
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s.db.events = append(s.db.events, sinkEvent{Topic: topic, AggregateID: aggregateID, Payload: raw})
	n := len(s.db.events)
	onUndo(ctx, func() { s.db.events = s.db.events[:n-1] })
	return nil
}

type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	ttls    map[string]time.Duration
	getErr  error
	gets    int
}

func newMemCache() *memCache {
	return &memCache{entries: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	c.ttls[key] = ttl
	return nil
}
