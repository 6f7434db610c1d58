package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rolandlluka/simple-ecommerce/internal/models"
)

func decimalFromInt(n int) decimal.Decimal { return decimal.NewFromInt(int64(n)) }

// Memory is an in-memory Store. A single mutex serializes transactions,
// which trivially satisfies the isolation the checkout path needs; reads
// take the same lock briefly. Transactions mutate a copy of the state and
// swap it in on success, so a failed transaction leaves nothing behind.
type Memory struct {
	mu    chanMutex
	state *memState
}

// chanMutex is a mutex that can be acquired with a context.
type chanMutex chan struct{}

func (m chanMutex) lock(ctx context.Context) error {
	select {
	case m <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m chanMutex) unlock() { <-m }

type memState struct {
	products   map[uuid.UUID]models.Product
	users      map[uuid.UUID]models.User
	cartItems  map[uuid.UUID]models.CartItem
	cartSeq    map[uuid.UUID]int64
	nextSeq    int64
	orders     map[uuid.UUID]models.Order
	orderItems map[uuid.UUID][]models.OrderItem
}

func newMemState() *memState {
	return &memState{
		products:   make(map[uuid.UUID]models.Product),
		users:      make(map[uuid.UUID]models.User),
		cartItems:  make(map[uuid.UUID]models.CartItem),
		cartSeq:    make(map[uuid.UUID]int64),
		orders:     make(map[uuid.UUID]models.Order),
		orderItems: make(map[uuid.UUID][]models.OrderItem),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	c.nextSeq = s.nextSeq
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.cartItems {
		c.cartItems[k] = v
	}
	for k, v := range s.cartSeq {
		c.cartSeq[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.orderItems {
		items := make([]models.OrderItem, len(v))
		copy(items, v)
		c.orderItems[k] = items
	}
	return c
}

func NewMemory() *Memory {
	return &Memory{
		mu:    make(chanMutex, 1),
		state: newMemState(),
	}
}

func (m *Memory) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := m.mu.lock(ctx); err != nil {
		return err
	}
	defer m.mu.unlock()

	next := m.state.clone()
	if err := fn(&memTx{state: next}); err != nil {
		return err
	}
	m.state = next
	return nil
}

// memTx applies mutations to the cloned state. It reuses the read helpers
// on memState so reads inside a transaction see that transaction's writes.
type memTx struct {
	state *memState
}

func (m *Memory) CreateProduct(ctx context.Context, p *models.Product) error {
	if err := m.mu.lock(ctx); err != nil {
		return err
	}
	defer m.mu.unlock()

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	m.state.products[p.ID] = *p
	return nil
}

func (m *Memory) UpdateProduct(ctx context.Context, p *models.Product) error {
	if err := m.mu.lock(ctx); err != nil {
		return err
	}
	defer m.mu.unlock()

	existing, ok := m.state.products[p.ID]
	if !ok {
		return fmt.Errorf("product %s: %w", p.ID, models.ErrNotFound)
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now()
	m.state.products[p.ID] = *p
	return nil
}

func (m *Memory) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	if err := m.mu.lock(ctx); err != nil {
		return err
	}
	defer m.mu.unlock()

	if _, ok := m.state.products[id]; !ok {
		return fmt.Errorf("product %s: %w", id, models.ErrNotFound)
	}
	delete(m.state.products, id)
	// Cart rows referencing the product go with it, mirroring the
	// cascading delete in the SQL schema.
	for itemID, item := range m.state.cartItems {
		if item.ProductID == id {
			delete(m.state.cartItems, itemID)
			delete(m.state.cartSeq, itemID)
		}
	}
	return nil
}

func (m *Memory) ProductByID(ctx context.Context, id uuid.UUID) (models.Product, error) {
	if err := m.mu.lock(ctx); err != nil {
		return models.Product{}, err
	}
	defer m.mu.unlock()
	return m.state.productByID(id)
}

func (m *Memory) ListProducts(ctx context.Context, opts ListOptions) ([]models.Product, error) {
	if err := m.mu.lock(ctx); err != nil {
		return nil, err
	}
	defer m.mu.unlock()

	products := make([]models.Product, 0, len(m.state.products))
	for _, p := range m.state.products {
		if opts.InStockOnly && p.StockQuantity <= 0 {
			continue
		}
		products = append(products, p)
	}
	// Newest first, ID as a stable tie-break.
	sort.Slice(products, func(i, j int) bool {
		if !products[i].CreatedAt.Equal(products[j].CreatedAt) {
			return products[i].CreatedAt.After(products[j].CreatedAt)
		}
		return products[i].ID.String() < products[j].ID.String()
	})
	return paginate(products, opts.Limit, opts.Offset), nil
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

func (m *Memory) CreateUser(ctx context.Context, u *models.User) error {
	if err := m.mu.lock(ctx); err != nil {
		return err
	}
	defer m.mu.unlock()

	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	m.state.users[u.ID] = *u
	return nil
}

func (m *Memory) UserByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	if err := m.mu.lock(ctx); err != nil {
		return models.User{}, err
	}
	defer m.mu.unlock()

	u, ok := m.state.users[id]
	if !ok {
		return models.User{}, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	return u, nil
}

func (m *Memory) UserByEmail(ctx context.Context, email string) (models.User, error) {
	if err := m.mu.lock(ctx); err != nil {
		return models.User{}, err
	}
	defer m.mu.unlock()

	for _, u := range m.state.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, fmt.Errorf("user %s: %w", email, models.ErrNotFound)
}

func (m *Memory) ListAdmins(ctx context.Context) ([]models.User, error) {
	if err := m.mu.lock(ctx); err != nil {
		return nil, err
	}
	defer m.mu.unlock()

	var admins []models.User
	for _, u := range m.state.users {
		if u.IsAdmin {
			admins = append(admins, u)
		}
	}
	sort.Slice(admins, func(i, j int) bool { return admins[i].Email < admins[j].Email })
	return admins, nil
}

func (m *Memory) CartLinesForUser(ctx context.Context, userID uuid.UUID) ([]models.CartLine, error) {
	if err := m.mu.lock(ctx); err != nil {
		return nil, err
	}
	defer m.mu.unlock()
	return m.state.cartLinesForUser(userID)
}

func (m *Memory) CartItemByID(ctx context.Context, id uuid.UUID) (models.CartItem, error) {
	if err := m.mu.lock(ctx); err != nil {
		return models.CartItem{}, err
	}
	defer m.mu.unlock()
	return m.state.cartItemByID(id)
}

func (m *Memory) OrderByID(ctx context.Context, id uuid.UUID) (models.Order, error) {
	if err := m.mu.lock(ctx); err != nil {
		return models.Order{}, err
	}
	defer m.mu.unlock()

	o, ok := m.state.orders[id]
	if !ok {
		return models.Order{}, fmt.Errorf("order %s: %w", id, models.ErrNotFound)
	}
	return o, nil
}

func (m *Memory) OrderItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	if err := m.mu.lock(ctx); err != nil {
		return nil, err
	}
	defer m.mu.unlock()

	items := m.state.orderItems[orderID]
	out := make([]models.OrderItem, len(items))
	copy(out, items)
	return out, nil
}

func (m *Memory) OrdersForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Order, error) {
	if err := m.mu.lock(ctx); err != nil {
		return nil, err
	}
	defer m.mu.unlock()

	var orders []models.Order
	for _, o := range m.state.orders {
		if o.UserID == userID {
			orders = append(orders, o)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID.String() < orders[j].ID.String()
	})
	return paginate(orders, limit, offset), nil
}

func (m *Memory) OrdersBetween(ctx context.Context, from, to time.Time) ([]models.Order, error) {
	if err := m.mu.lock(ctx); err != nil {
		return nil, err
	}
	defer m.mu.unlock()

	var orders []models.Order
	for _, o := range m.state.orders {
		if !o.CreatedAt.Before(from) && o.CreatedAt.Before(to) {
			orders = append(orders, o)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.Before(orders[j].CreatedAt) })
	return orders, nil
}

func (m *Memory) ProductSalesBetween(ctx context.Context, from, to time.Time) ([]models.ProductSales, error) {
	if err := m.mu.lock(ctx); err != nil {
		return nil, err
	}
	defer m.mu.unlock()

	sales := make(map[uuid.UUID]*models.ProductSales)
	for orderID, items := range m.state.orderItems {
		order, ok := m.state.orders[orderID]
		if !ok || order.CreatedAt.Before(from) || !order.CreatedAt.Before(to) {
			continue
		}
		for _, item := range items {
			row, ok := sales[item.ProductID]
			if !ok {
				name := ""
				if p, ok := m.state.products[item.ProductID]; ok {
					name = p.Name
				}
				row = &models.ProductSales{ProductID: item.ProductID, Name: name}
				sales[item.ProductID] = row
			}
			row.QuantitySold += item.Quantity
			row.Revenue = row.Revenue.Add(item.Price.Mul(decimalFromInt(item.Quantity)))
		}
	}

	out := make([]models.ProductSales, 0, len(sales))
	for _, row := range sales {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID.String() < out[j].ProductID.String() })
	return out, nil
}

// Shared read helpers used by both the store and its transactions.

func (s *memState) productByID(id uuid.UUID) (models.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return models.Product{}, fmt.Errorf("product %s: %w", id, models.ErrNotFound)
	}
	return p, nil
}

func (s *memState) cartItemByID(id uuid.UUID) (models.CartItem, error) {
	item, ok := s.cartItems[id]
	if !ok {
		return models.CartItem{}, fmt.Errorf("cart item %s: %w", id, models.ErrNotFound)
	}
	return item, nil
}

func (s *memState) cartLinesForUser(userID uuid.UUID) ([]models.CartLine, error) {
	type seqLine struct {
		seq  int64
		line models.CartLine
	}
	var rows []seqLine
	for id, item := range s.cartItems {
		if item.UserID != userID {
			continue
		}
		product, ok := s.products[item.ProductID]
		if !ok {
			continue
		}
		rows = append(rows, seqLine{seq: s.cartSeq[id], line: models.CartLine{Item: item, Product: product}})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	lines := make([]models.CartLine, len(rows))
	for i, r := range rows {
		lines[i] = r.line
	}
	return lines, nil
}

// Transaction methods.

func (t *memTx) ProductByID(ctx context.Context, id uuid.UUID) (models.Product, error) {
	return t.state.productByID(id)
}

func (t *memTx) CartLinesForUser(ctx context.Context, userID uuid.UUID) ([]models.CartLine, error) {
	return t.state.cartLinesForUser(userID)
}

func (t *memTx) CartItemByID(ctx context.Context, id uuid.UUID) (models.CartItem, error) {
	return t.state.cartItemByID(id)
}

func (t *memTx) CreateCartItem(ctx context.Context, item *models.CartItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	t.state.cartItems[item.ID] = *item
	t.state.nextSeq++
	t.state.cartSeq[item.ID] = t.state.nextSeq
	return nil
}

func (t *memTx) UpdateCartItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error {
	item, ok := t.state.cartItems[itemID]
	if !ok {
		return fmt.Errorf("cart item %s: %w", itemID, models.ErrNotFound)
	}
	item.Quantity = quantity
	t.state.cartItems[itemID] = item
	return nil
}

func (t *memTx) DeleteCartItem(ctx context.Context, itemID uuid.UUID) error {
	if _, ok := t.state.cartItems[itemID]; !ok {
		return fmt.Errorf("cart item %s: %w", itemID, models.ErrNotFound)
	}
	delete(t.state.cartItems, itemID)
	delete(t.state.cartSeq, itemID)
	return nil
}

func (t *memTx) DeleteCartForUser(ctx context.Context, userID uuid.UUID) error {
	for id, item := range t.state.cartItems {
		if item.UserID == userID {
			delete(t.state.cartItems, id)
			delete(t.state.cartSeq, id)
		}
	}
	return nil
}

func (t *memTx) CreateOrder(ctx context.Context, o *models.Order) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	t.state.orders[o.ID] = *o
	return nil
}

func (t *memTx) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	t.state.orderItems[item.OrderID] = append(t.state.orderItems[item.OrderID], *item)
	return nil
}

func (t *memTx) DecrementStock(ctx context.Context, productID uuid.UUID, qty int) (int, error) {
	p, ok := t.state.products[productID]
	if !ok {
		return 0, fmt.Errorf("product %s: %w", productID, models.ErrNotFound)
	}
	if p.StockQuantity < qty {
		return 0, fmt.Errorf("%s: %w", p.Name, models.ErrInsufficientStock)
	}
	p.StockQuantity -= qty
	p.UpdatedAt = time.Now()
	t.state.products[productID] = p
	return p.StockQuantity, nil
}
