package service_test

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/linemk/datashop/internal/domain/models"
	"github.com/linemk/datashop/internal/recommender"
	"github.com/linemk/datashop/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

type fakeUserRepo struct {
	users map[string]*models.User // ключ: email
}

var _ storage.UserStorage = (*fakeUserRepo)(nil)

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*models.User)}
}

func (f *fakeUserRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user, ok := f.users[email]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeUserRepo) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	if _, ok := f.users[user.Email]; ok {
		return nil, storage.ErrUserExists
	}
	user.ID = int64(len(f.users) + 1)
	f.users[user.Email] = user
	return user, nil
}

func (f *fakeUserRepo) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, storage.ErrUserNotFound
}

// fakeProductRepo атомарно выполняет условное списание, как UPDATE ... WHERE stock >= $1.
type fakeProductRepo struct {
	mu       sync.Mutex
	products map[int64]*models.Product
	locked   []int64
	lockErr  error
}

var _ storage.ProductStorage = (*fakeProductRepo)(nil)

func newFakeProductRepo(products ...*models.Product) *fakeProductRepo {
	f := &fakeProductRepo{products: make(map[int64]*models.Product)}
	for _, p := range products {
		f.products[p.ID] = p
	}
	return f
}

func (f *fakeProductRepo) stock(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[id].Stock
}

func (f *fakeProductRepo) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return nil, storage.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProductRepo) ListProducts(ctx context.Context) ([]*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Product, 0, len(f.products))
	for _, p := range f.products {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeProductRepo) LockProductByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Product, error) {
	f.mu.Lock()
	f.locked = append(f.locked, id)
	f.mu.Unlock()
	if f.lockErr != nil {
		return nil, f.lockErr
	}
	return f.GetProductByID(ctx, id)
}

func (f *fakeProductRepo) DecrementStockTx(ctx context.Context, tx *sql.Tx, id int64, amount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok || p.Stock < amount {
		return storage.ErrInsufficientStock
	}
	p.Stock -= amount
	return nil
}

func (f *fakeProductRepo) IncrementStockTx(ctx context.Context, tx *sql.Tx, id int64, amount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return storage.ErrProductNotFound
	}
	p.Stock += amount
	return nil
}

type fakeOrderRepo struct {
	mu        sync.Mutex
	orders    map[int64]*models.Order
	nextID    int64
	nextItem  int64
	createErr error
}

var _ storage.OrderStorage = (*fakeOrderRepo)(nil)

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[int64]*models.Order)}
}

func (f *fakeOrderRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

// put кладёт готовый заказ, минуя транзакцию.
func (f *fakeOrderRepo) put(o *models.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[o.ID] = o
}

func (f *fakeOrderRepo) CreateOrderTx(ctx context.Context, tx *sql.Tx, order *models.Order) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	order.ID = f.nextID
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	cp := *order
	f.orders[order.ID] = &cp
	return nil
}

func (f *fakeOrderRepo) CreateOrderItemsTx(ctx context.Context, tx *sql.Tx, orderID int64, items []models.OrderItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return errors.New("order not inserted")
	}
	for i := range items {
		f.nextItem++
		items[i].ID = f.nextItem
		items[i].OrderID = orderID
	}
	o.Items = append([]models.OrderItem(nil), items...)
	return nil
}

func (f *fakeOrderRepo) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, storage.ErrOrderNotFound
	}
	cp := *o
	cp.Items = append([]models.OrderItem(nil), o.Items...)
	return &cp, nil
}

func (f *fakeOrderRepo) GetOrderForUpdateTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	return f.GetOrderByID(ctx, id)
}

func (f *fakeOrderRepo) ListOrdersByUserID(ctx context.Context, userID int64) ([]*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*models.Order{}
	for _, o := range f.orders {
		if o.UserID == userID {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (f *fakeOrderRepo) UpdateOrderStatus(ctx context.Context, id int64, status models.OrderStatus) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return time.Time{}, storage.ErrOrderNotFound
	}
	o.Status = status
	o.UpdatedAt = time.Now()
	return o.UpdatedAt, nil
}

func (f *fakeOrderRepo) DeleteOrderTx(ctx context.Context, tx *sql.Tx, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.orders[id]; !ok {
		return storage.ErrOrderNotFound
	}
	delete(f.orders, id)
	return nil
}

type fakeInteractionRepo struct {
	mu      sync.Mutex
	records []*models.Interaction
	err     error
}

var _ storage.InteractionStorage = (*fakeInteractionRepo)(nil)

func (f *fakeInteractionRepo) CreateInteraction(ctx context.Context, userID, productID int64, kind models.InteractionType) (*models.Interaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	in := &models.Interaction{
		ID:        int64(len(f.records) + 1),
		UserID:    userID,
		ProductID: productID,
		Type:      kind,
		CreatedAt: time.Now(),
	}
	f.records = append(f.records, in)
	return in, nil
}

func (f *fakeInteractionRepo) GetInteractionsByUserID(ctx context.Context, userID int64) ([]*models.Interaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*models.Interaction{}
	for i := len(f.records) - 1; i >= 0; i-- {
		if f.records[i].UserID == userID {
			out = append(out, f.records[i])
		}
	}
	return out, nil
}

func (f *fakeInteractionRepo) ofType(kind models.InteractionType) []*models.Interaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Interaction
	for _, r := range f.records {
		if r.Type == kind {
			out = append(out, r)
		}
	}
	return out
}

type fakeProvider struct {
	related []models.Recommendation
	user    []models.Recommendation
	popular []models.Recommendation
}

var _ recommender.Provider = (*fakeProvider)(nil)

func (f *fakeProvider) Related(context.Context, int64) []models.Recommendation { return f.related }
func (f *fakeProvider) ForUser(context.Context, int64) []models.Recommendation { return f.user }
func (f *fakeProvider) Popular(context.Context) []models.Recommendation        { return f.popular }
