package services_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"queenbee-api/models"
	"queenbee-api/repository"

	"gorm.io/gorm"
)

// ---- in-memory store with rollback ----

type memState struct {
	customers map[uint]models.Customer
	products  map[uint]models.Product
	orders    map[uint]models.Order
	items     []models.OrderItem
	nextID    uint
}

func (s memState) clone() memState {
	c := memState{
		customers: make(map[uint]models.Customer, len(s.customers)),
		products:  make(map[uint]models.Product, len(s.products)),
		orders:    make(map[uint]models.Order, len(s.orders)),
		items:     append([]models.OrderItem(nil), s.items...),
		nextID:    s.nextID,
	}
	for k, v := range s.customers {
		c.customers[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	return c
}

type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	state memState
	clock time.Time

	// staleLookups makes the next N payment reference lookups miss, the way
	// a concurrent request can race past the duplicate check.
	staleLookups int

	// staleEmailLookups does the same for customer email lookups.
	staleEmailLookups int

	decrementErr error
	calls        int
	transactions int
	rolledBack   int
}

func newMemStore() *memStore {
	return &memStore{
		state: memState{
			customers: map[uint]models.Customer{},
			products:  map[uint]models.Product{},
			orders:    map[uint]models.Order{},
			nextID:    1,
		},
		clock: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) Orders() repository.OrderRepository       { return &memOrders{s: s} }
func (s *memStore) Customers() repository.CustomerRepository { return &memCustomers{s: s} }
func (s *memStore) Products() repository.ProductRepository   { return &memProducts{s: s} }

// Transaction runs transactions one at a time so a rollback can restore a
// snapshot. Oversell protection under interleaved writers is the SQL
// conditional decrement, covered by the repository DecrementStock tests.
func (s *memStore) Transaction(ctx context.Context, fn func(tx repository.Store) error) (err error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	s.transactions++
	snapshot := s.state.clone()
	s.mu.Unlock()

	restore := func() {
		s.mu.Lock()
		s.state = snapshot
		s.rolledBack++
		s.mu.Unlock()
	}

	defer func() {
		if r := recover(); r != nil {
			restore()
			panic(r)
		}
	}()

	if err = fn(s); err != nil {
		restore()
	}
	return err
}

// lock marks a repository call and takes the data lock.
func (s *memStore) lock() func() {
	s.mu.Lock()
	s.calls++
	return s.mu.Unlock
}

func (s *memStore) newID() uint {
	id := s.state.nextID
	s.state.nextID++
	return id
}

func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memStore) addProduct(p models.Product) {
	defer s.lock()()
	s.state.products[p.ID] = p
}

func (s *memStore) product(id uint) models.Product {
	defer s.lock()()
	return s.state.products[id]
}

func (s *memStore) addCustomer(c models.Customer) models.Customer {
	defer s.lock()()
	c.ID = s.newID()
	s.state.customers[c.ID] = c
	return c
}

func (s *memStore) seedOrder(o models.Order) models.Order {
	defer s.lock()()
	o.ID = s.newID()
	s.state.orders[o.ID] = o
	return o
}

func (s *memStore) counts() (customers, orders, items int) {
	defer s.lock()()
	return len(s.state.customers), len(s.state.orders), len(s.state.items)
}

func (s *memStore) customersByEmail(email string) []models.Customer {
	defer s.lock()()
	var out []models.Customer
	for _, c := range s.state.customers {
		if c.Email == email {
			out = append(out, c)
		}
	}
	return out
}

func (s *memStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *memStore) itemsFor(orderID uint) []models.OrderItem {
	var out []models.OrderItem
	for _, it := range s.state.items {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ---- orders ----

type memOrders struct{ s *memStore }

func (r *memOrders) Create(_ context.Context, order *models.Order) error {
	defer r.s.lock()()
	for _, o := range r.s.state.orders {
		if o.PaymentReference == order.PaymentReference || o.OrderReference == order.OrderReference {
			return gorm.ErrDuplicatedKey
		}
	}
	if _, ok := r.s.state.customers[order.CustomerID]; !ok {
		return gorm.ErrForeignKeyViolated
	}
	order.ID = r.s.newID()
	order.CreatedAt = r.s.tick()
	order.UpdatedAt = order.CreatedAt
	stored := *order
	stored.Items = nil
	r.s.state.orders[order.ID] = stored
	return nil
}

func (r *memOrders) CreateItem(_ context.Context, item *models.OrderItem) error {
	defer r.s.lock()()
	if _, ok := r.s.state.products[item.ProductID]; !ok {
		return gorm.ErrForeignKeyViolated
	}
	if _, ok := r.s.state.orders[item.OrderID]; !ok {
		return gorm.ErrForeignKeyViolated
	}
	item.ID = r.s.newID()
	r.s.state.items = append(r.s.state.items, *item)
	return nil
}

func (r *memOrders) FindByID(_ context.Context, id uint) (*models.Order, error) {
	defer r.s.lock()()
	o, ok := r.s.state.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	o.Items = r.s.itemsFor(id)
	return &o, nil
}

func (r *memOrders) FindByPaymentReference(_ context.Context, ref string) (*models.Order, error) {
	defer r.s.lock()()
	if r.s.staleLookups > 0 {
		r.s.staleLookups--
		return nil, gorm.ErrRecordNotFound
	}
	for _, o := range r.s.state.orders {
		if o.PaymentReference == ref {
			o.Items = r.s.itemsFor(o.ID)
			return &o, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memOrders) sorted(match func(models.Order) bool) []models.Order {
	var out []models.Order
	for _, o := range r.s.state.orders {
		if match(o) {
			o.Items = r.s.itemsFor(o.ID)
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r *memOrders) FindByCustomerEmail(_ context.Context, email string) ([]models.OrderSummary, error) {
	defer r.s.lock()()
	orders := r.sorted(func(o models.Order) bool { return o.CustomerEmail == email })
	summaries := []models.OrderSummary{}
	for _, o := range orders {
		summaries = append(summaries, models.OrderSummary{
			ID:               o.ID,
			OrderReference:   o.OrderReference,
			CustomerEmail:    o.CustomerEmail,
			Status:           o.Status,
			TotalAmount:      o.TotalAmount,
			Currency:         o.Currency,
			PaymentReference: o.PaymentReference,
			ItemCount:        int64(len(o.Items)),
			CreatedAt:        o.CreatedAt,
			UpdatedAt:        o.UpdatedAt,
		})
	}
	return summaries, nil
}

func (r *memOrders) FindAll(_ context.Context, limit, offset int, status models.OrderStatus) ([]models.Order, int64, error) {
	defer r.s.lock()()
	orders := r.sorted(func(o models.Order) bool { return status == "" || o.Status == status })
	total := int64(len(orders))
	if offset >= len(orders) {
		return []models.Order{}, total, nil
	}
	end := offset + limit
	if end > len(orders) {
		end = len(orders)
	}
	return orders[offset:end], total, nil
}

func (r *memOrders) UpdateStatus(_ context.Context, id uint, status models.OrderStatus) (bool, error) {
	defer r.s.lock()()
	o, ok := r.s.state.orders[id]
	if !ok {
		return false, nil
	}
	o.Status = status
	o.UpdatedAt = r.s.tick()
	r.s.state.orders[id] = o
	return true, nil
}

func (r *memOrders) Totals(_ context.Context, start, end *time.Time) (*models.OrderTotals, error) {
	defer r.s.lock()()
	totals := &models.OrderTotals{StatusCounts: map[models.OrderStatus]int64{}}
	for _, o := range r.s.state.orders {
		if start != nil && o.CreatedAt.Before(*start) {
			continue
		}
		if end != nil && !o.CreatedAt.Before(*end) {
			continue
		}
		totals.TotalOrders++
		totals.TotalRevenue += o.TotalAmount
		totals.StatusCounts[o.Status]++
	}
	return totals, nil
}

// ---- customers ----

type memCustomers struct{ s *memStore }

func (r *memCustomers) FindByEmail(_ context.Context, email string) (*models.Customer, error) {
	defer r.s.lock()()
	if r.s.staleEmailLookups > 0 {
		r.s.staleEmailLookups--
		return nil, gorm.ErrRecordNotFound
	}
	for _, c := range r.s.state.customers {
		if c.Email == email {
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memCustomers) Upsert(_ context.Context, customer *models.Customer) error {
	defer r.s.lock()()
	for id, c := range r.s.state.customers {
		if c.Email == customer.Email {
			if customer.DisplayName != "" {
				c.DisplayName = customer.DisplayName
				r.s.state.customers[id] = c
			}
			*customer = c
			return nil
		}
	}
	customer.ID = r.s.newID()
	r.s.state.customers[customer.ID] = *customer
	return nil
}

func (r *memCustomers) UpdateDisplayName(_ context.Context, id uint, name string) error {
	defer r.s.lock()()
	c := r.s.state.customers[id]
	c.DisplayName = name
	r.s.state.customers[id] = c
	return nil
}

// ---- products ----

type memProducts struct{ s *memStore }

func (r *memProducts) FindByID(_ context.Context, id uint) (*models.Product, error) {
	defer r.s.lock()()
	p, ok := r.s.state.products[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &p, nil
}

func (r *memProducts) ListActive(_ context.Context, limit, offset int) ([]models.Product, int64, error) {
	defer r.s.lock()()
	var active []models.Product
	for _, p := range r.s.state.products {
		if p.IsActive {
			active = append(active, p)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	total := int64(len(active))
	if offset >= len(active) {
		return []models.Product{}, total, nil
	}
	end := offset + limit
	if end > len(active) {
		end = len(active)
	}
	return active[offset:end], total, nil
}

func (r *memProducts) DecrementStock(_ context.Context, id uint, qty int) (bool, error) {
	defer r.s.lock()()
	if r.s.decrementErr != nil {
		return false, r.s.decrementErr
	}
	p, ok := r.s.state.products[id]
	if !ok || p.StockQuantity < qty {
		return false, nil
	}
	p.StockQuantity -= qty
	r.s.state.products[id] = p
	return true, nil
}

// ---- collaborators ----

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.OrderEvent
}

func (p *recordingPublisher) PublishOrderEvent(_ context.Context, evt models.OrderEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) published() []models.OrderEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.OrderEvent(nil), p.events...)
}

type recordingInvalidator struct {
	mu  sync.Mutex
	ids []uint
}

func (c *recordingInvalidator) InvalidateProducts(_ context.Context, ids ...uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, ids...)
}

type countingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *countingMetrics) RecordCount(_ context.Context, name string, _ map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[string]int{}
	}
	m.counts[name]++
	return nil
}

func (m *countingMetrics) RecordValue(_ context.Context, _ string, _ float64, _ map[string]string) error {
	return nil
}

func (m *countingMetrics) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[name]
}
