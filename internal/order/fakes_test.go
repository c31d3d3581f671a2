package order

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wellywell/skborders/internal/db"
	"github.com/wellywell/skborders/internal/types"
)

type memOrders struct {
	mu     sync.Mutex
	orders map[int]types.Order
	files  map[int][]types.OrderFile
	nextID int
	writes int
}

func newMemOrders() *memOrders {
	return &memOrders{orders: make(map[int]types.Order), files: make(map[int][]types.OrderFile)}
}

func (m *memOrders) Get(ctx context.Context, id int) (*types.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, db.ErrOrderNotFound)
	}
	return &o, nil
}

func (m *memOrders) Save(ctx context.Context, o *types.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.ID == 0 {
		m.nextID++
		o.ID = m.nextID
		o.CreatedAt = time.Now()
	}
	o.UpdatedAt = time.Now()
	m.orders[o.ID] = *o
	m.writes++
	return nil
}

func (m *memOrders) List(ctx context.Context, limit int, offset int) ([]types.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int, 0, len(m.orders))
	for id := range m.orders {
		ids = append(ids, id)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ids)))
	res := make([]types.Order, 0)
	for i, id := range ids {
		if i < offset || len(res) >= limit {
			continue
		}
		res = append(res, m.orders[id])
	}
	return res, nil
}

func (m *memOrders) Update(ctx context.Context, id int, upd types.OrderUpdate, from ...types.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return fmt.Errorf("order %d: %w", id, db.ErrOrderNotFound)
	}
	expected := len(from) == 0
	for _, s := range from {
		if o.State == s {
			expected = true
		}
	}
	if !expected {
		return fmt.Errorf("order %d: %w", id, db.ErrStaleOrder)
	}
	if upd.State != nil && !o.State.CanTransition(*upd.State) {
		return fmt.Errorf("order %d from %s to %s: %w", id, o.State, *upd.State, types.ErrInvalidTransition)
	}
	upd.Apply(&o)
	m.orders[id] = o
	m.writes++
	return nil
}

func (m *memOrders) AddFile(ctx context.Context, f *types.OrderFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.files[f.OrderID] {
		if existing.ObjectKey == f.ObjectKey {
			return nil
		}
	}
	f.ID = len(m.files[f.OrderID]) + 1
	m.files[f.OrderID] = append(m.files[f.OrderID], *f)
	m.writes++
	return nil
}

func (m *memOrders) Files(ctx context.Context, orderID int) ([]types.OrderFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.OrderFile(nil), m.files[orderID]...), nil
}

func (m *memOrders) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

type memKinds struct {
	mu    sync.Mutex
	kinds map[string]types.OrderKind
}

func newMemKinds(codes ...string) *memKinds {
	k := &memKinds{kinds: make(map[string]types.OrderKind)}
	for i, c := range codes {
		k.kinds[c] = types.OrderKind{ID: i + 1, Code: c, Name: c}
	}
	return k
}

func (m *memKinds) GetByCode(ctx context.Context, code string) (*types.OrderKind, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.kinds[code]
	if !ok {
		return nil, fmt.Errorf("%w", &db.OrderKindNotFoundError{Code: code})
	}
	return &k, nil
}

func (m *memKinds) List(ctx context.Context) ([]types.OrderKind, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]types.OrderKind, 0, len(m.kinds))
	for _, k := range m.kinds {
		res = append(res, k)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Code < res[j].Code })
	return res, nil
}

func (m *memKinds) Upsert(ctx context.Context, kinds []types.OrderKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range kinds {
		existing, ok := m.kinds[k.Code]
		if !ok {
			existing = types.OrderKind{ID: len(m.kinds) + 1, Code: k.Code}
		}
		existing.Name = k.Name
		m.kinds[k.Code] = existing
	}
	return nil
}

type recorder struct {
	mu     sync.Mutex
	events []types.Event
}

func (r *recorder) Publish(ctx context.Context, e types.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) Types() []types.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]types.EventType, 0, len(r.events))
	for _, e := range r.events {
		res = append(res, e.Type)
	}
	return res
}

type fakeDownstream struct {
	mu         sync.Mutex
	err        error
	calls      int
	deliveries []types.Delivery
}

func (f *fakeDownstream) Deliver(ctx context.Context, d types.Delivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.deliveries = append(f.deliveries, d)
	return nil
}
