package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linemk/datashop/internal/domain/models"
	"github.com/linemk/datashop/internal/service"
)

type orderFixture struct {
	svc          service.OrderService
	mock         sqlmock.Sqlmock
	products     *fakeProductRepo
	orders       *fakeOrderRepo
	interactions *fakeInteractionRepo
}

func newOrderFixture(t *testing.T, products ...*models.Product) *orderFixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &orderFixture{
		mock:         mock,
		products:     newFakeProductRepo(products...),
		orders:       newFakeOrderRepo(),
		interactions: &fakeInteractionRepo{},
	}
	logger := testLogger()
	f.svc = service.NewOrderService(logger, db, f.products, f.orders, service.NewInteractionLogger(logger, f.interactions))
	return f
}

func phone() *models.Product {
	return &models.Product{ID: 1, Name: "Phone", Price: decimal.RequireFromString("10.00"), Stock: 5, Category: "electronics"}
}

func shirt() *models.Product {
	return &models.Product{ID: 2, Name: "Shirt", Price: decimal.RequireFromString("2.50"), Stock: 3, Category: "apparel"}
}

func TestPlaceOrder_Success(t *testing.T) {
	f := newOrderFixture(t, phone(), shirt())
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	order, err := f.svc.PlaceOrder(context.Background(), 7, service.PlaceOrderInput{
		Items:           []service.LineItem{{ProductID: 2, Quantity: 2}, {ProductID: 1, Quantity: 1}},
		ShippingAddress: "Main st 1",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(7), order.UserID)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, "Main st 1", order.ShippingAddress)
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("15.00")), "total = 2*2.50 + 1*10.00")
	_, err = uuid.Parse(order.Reference)
	assert.NoError(t, err, "reference should be a uuid")

	require.Len(t, order.Items, 2)
	// позиции в порядке запроса, хотя блокировка шла по возрастанию id
	assert.Equal(t, int64(2), order.Items[0].ProductID)
	assert.Equal(t, int64(1), order.Items[1].ProductID)
	for _, item := range order.Items {
		assert.Equal(t, order.ID, item.OrderID)
		require.NotNil(t, item.Product)
		assert.Equal(t, item.ProductID, item.Product.ID)
	}

	// строки блокируются по возрастанию id
	assert.Equal(t, []int64{1, 2}, f.products.locked)
	assert.Equal(t, 4, f.products.stock(1))
	assert.Equal(t, 1, f.products.stock(2))
	// для обычного заказа журнал не пишется
	assert.Empty(t, f.interactions.records)

	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestPlaceOrder_SnapshotPrice(t *testing.T) {
	f := newOrderFixture(t, phone())
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	order, err := f.svc.PlaceOrder(context.Background(), 7, service.PlaceOrderInput{
		Items: []service.LineItem{{ProductID: 1, Quantity: 2}},
	})
	require.NoError(t, err)

	// цена товара меняется после покупки
	f.products.products[1].Price = decimal.RequireFromString("99.99")

	stored, err := f.svc.GetOrder(context.Background(), 7, order.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.True(t, stored.Items[0].Price.Equal(decimal.RequireFromString("10.00")))
	assert.True(t, stored.TotalAmount.Equal(decimal.RequireFromString("20.00")))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	f := newOrderFixture(t, phone())
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.PlaceOrder(context.Background(), 7, service.PlaceOrderInput{
		Items: []service.LineItem{{ProductID: 1, Quantity: 6}},
	})

	var stockErr *service.StockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, int64(1), stockErr.ProductID)
	assert.Equal(t, "product out of stock or not found: Phone", stockErr.Error())
	assert.Equal(t, 5, f.products.stock(1))
	assert.Zero(t, f.orders.count())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestPlaceOrder_MissingProduct(t *testing.T) {
	f := newOrderFixture(t, phone())
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.PlaceOrder(context.Background(), 7, service.PlaceOrderInput{
		Items: []service.LineItem{{ProductID: 1, Quantity: 1}, {ProductID: 42, Quantity: 1}},
	})

	var stockErr *service.StockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, int64(42), stockErr.ProductID)
	assert.Contains(t, stockErr.Error(), "N/A")
	assert.Zero(t, f.orders.count())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestPlaceOrder_Validation(t *testing.T) {
	tests := []struct {
		name  string
		in    service.PlaceOrderInput
		field string
	}{
		{name: "no items", in: service.PlaceOrderInput{}, field: "items"},
		{name: "zero quantity", in: service.PlaceOrderInput{Items: []service.LineItem{{ProductID: 1, Quantity: 0}}}, field: "items.0.quantity"},
		{name: "bad product id", in: service.PlaceOrderInput{Items: []service.LineItem{{ProductID: 1, Quantity: 1}, {ProductID: 0, Quantity: 1}}}, field: "items.1.product_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// транзакция не открывается: sqlmock упадёт на неожиданный Begin
			f := newOrderFixture(t, phone())

			_, err := f.svc.PlaceOrder(context.Background(), 7, tt.in)

			var verr *service.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
			assert.Equal(t, 5, f.products.stock(1))
			assert.NoError(t, f.mock.ExpectationsWereMet())
		})
	}
}

func TestPlaceOrder_StorageFailureRollsBack(t *testing.T) {
	f := newOrderFixture(t, phone())
	f.orders.createErr = errors.New("connection reset")
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.PlaceOrder(context.Background(), 7, service.PlaceOrderInput{
		Items: []service.LineItem{{ProductID: 1, Quantity: 1}},
	})

	assert.ErrorIs(t, err, service.ErrTransactionFailure)
	var stockErr *service.StockError
	assert.False(t, errors.As(err, &stockErr))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

// Остаток 5, два параллельных заказа по 3: ровно один успешен, второй получает StockError.
func TestPlaceOrder_ConcurrentOrdersDoNotOversell(t *testing.T) {
	f := newOrderFixture(t, phone())
	f.mock.MatchExpectationsInOrder(false)
	f.mock.ExpectBegin()
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	f.mock.ExpectRollback()

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, 2)
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.PlaceOrder(context.Background(), int64(10+i), service.PlaceOrderInput{
				Items: []service.LineItem{{ProductID: 1, Quantity: 3}},
			})
		}(i)
	}
	close(start)
	wg.Wait()

	var success, rejected int
	for _, err := range errs {
		var stockErr *service.StockError
		switch {
		case err == nil:
			success++
		case errors.As(err, &stockErr):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, success)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, 2, f.products.stock(1))
	assert.Equal(t, 1, f.orders.count())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestQuickBuy_Success(t *testing.T) {
	f := newOrderFixture(t, phone())
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	order, err := f.svc.QuickBuy(context.Background(), 7, 1, 2)
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusCompleted, order.Status)
	assert.Empty(t, order.ShippingAddress)
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("20")))
	assert.Equal(t, 3, f.products.stock(1))

	purchases := f.interactions.ofType(models.InteractionPurchase)
	require.Len(t, purchases, 1)
	assert.Equal(t, int64(7), purchases[0].UserID)
	assert.Equal(t, int64(1), purchases[0].ProductID)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestQuickBuy_InteractionFailureKeepsOrder(t *testing.T) {
	f := newOrderFixture(t, phone())
	f.interactions.err = errors.New("db is down")
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	order, err := f.svc.QuickBuy(context.Background(), 7, 1, 1)
	require.NoError(t, err)
	assert.NotNil(t, order)
	assert.Equal(t, 1, f.orders.count())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestQuickBuy_OutOfStockRecordsNothing(t *testing.T) {
	f := newOrderFixture(t, phone())
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.QuickBuy(context.Background(), 7, 1, 10)

	var stockErr *service.StockError
	require.ErrorAs(t, err, &stockErr)
	assert.Empty(t, f.interactions.records)
	assert.Equal(t, 5, f.products.stock(1))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestQuickBuy_Validation(t *testing.T) {
	f := newOrderFixture(t, phone())

	_, err := f.svc.QuickBuy(context.Background(), 7, 0, 0)

	var verr *service.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "product_id")
	assert.Contains(t, verr.Fields, "quantity")
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func storedOrder(id, userID int64, status models.OrderStatus) *models.Order {
	return &models.Order{
		ID:          id,
		Reference:   uuid.NewString(),
		UserID:      userID,
		Status:      status,
		TotalAmount: decimal.RequireFromString("20.00"),
		Items: []models.OrderItem{
			{ID: 1, OrderID: id, ProductID: 1, Quantity: 2, Price: decimal.RequireFromString("10.00")},
		},
	}
}

func TestGetOrder_Ownership(t *testing.T) {
	f := newOrderFixture(t)
	f.orders.put(storedOrder(1, 7, models.OrderStatusPending))

	order, err := f.svc.GetOrder(context.Background(), 7, 1)
	require.NoError(t, err)
	assert.Len(t, order.Items, 1)

	_, err = f.svc.GetOrder(context.Background(), 8, 1)
	assert.ErrorIs(t, err, service.ErrUnauthorized)

	_, err = f.svc.GetOrder(context.Background(), 7, 99)
	assert.ErrorIs(t, err, service.ErrOrderNotFound)
}

func TestListOrders_OnlyOwn(t *testing.T) {
	f := newOrderFixture(t)
	f.orders.put(storedOrder(1, 7, models.OrderStatusPending))
	f.orders.put(storedOrder(2, 8, models.OrderStatusPending))
	f.orders.put(storedOrder(3, 7, models.OrderStatusShipped))

	orders, err := f.svc.ListOrders(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	for _, o := range orders {
		assert.Equal(t, int64(7), o.UserID)
	}
}

func TestUpdateStatus(t *testing.T) {
	f := newOrderFixture(t)
	f.orders.put(storedOrder(1, 7, models.OrderStatusCompleted))

	_, err := f.svc.UpdateStatus(context.Background(), 7, 1, "lost")
	var verr *service.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "status")

	_, err = f.svc.UpdateStatus(context.Background(), 8, 1, models.OrderStatusShipped)
	assert.ErrorIs(t, err, service.ErrUnauthorized)

	// переходы не ограничены: completed -> pending допустим
	order, err := f.svc.UpdateStatus(context.Background(), 7, 1, models.OrderStatusPending)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.False(t, order.UpdatedAt.IsZero())

	_, err = f.svc.UpdateStatus(context.Background(), 7, 99, models.OrderStatusPending)
	assert.ErrorIs(t, err, service.ErrOrderNotFound)
}

func TestUpdateStatus_OwnershipCheckedBeforeStatus(t *testing.T) {
	f := newOrderFixture(t)
	f.orders.put(storedOrder(1, 7, models.OrderStatusPending))

	_, err := f.svc.UpdateStatus(context.Background(), 8, 1, "bogus")
	assert.ErrorIs(t, err, service.ErrUnauthorized)
	var verr *service.ValidationError
	assert.False(t, errors.As(err, &verr))

	_, err = f.svc.UpdateStatus(context.Background(), 7, 99, "bogus")
	assert.ErrorIs(t, err, service.ErrOrderNotFound)

	_, err = f.svc.UpdateStatus(context.Background(), 7, 1, "")
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "status")
}

func TestCancelOrder_RestocksPending(t *testing.T) {
	f := newOrderFixture(t, phone())
	f.orders.put(storedOrder(1, 7, models.OrderStatusPending))
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	require.NoError(t, f.svc.CancelOrder(context.Background(), 7, 1))

	assert.Equal(t, 7, f.products.stock(1))
	assert.Zero(t, f.orders.count())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCancelOrder_CompletedIsNotRestocked(t *testing.T) {
	f := newOrderFixture(t, phone())
	f.orders.put(storedOrder(1, 7, models.OrderStatusCompleted))
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	require.NoError(t, f.svc.CancelOrder(context.Background(), 7, 1))

	assert.Equal(t, 5, f.products.stock(1))
	assert.Zero(t, f.orders.count())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCancelOrder_ShippedIsNotRestocked(t *testing.T) {
	f := newOrderFixture(t, phone())
	f.orders.put(storedOrder(1, 7, models.OrderStatusShipped))
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	require.NoError(t, f.svc.CancelOrder(context.Background(), 7, 1))

	assert.Equal(t, 5, f.products.stock(1))
	assert.Zero(t, f.orders.count())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCancelOrder_Errors(t *testing.T) {
	f := newOrderFixture(t, phone())
	f.orders.put(storedOrder(1, 7, models.OrderStatusPending))
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	err := f.svc.CancelOrder(context.Background(), 8, 1)
	assert.ErrorIs(t, err, service.ErrUnauthorized)
	assert.Equal(t, 1, f.orders.count())
	assert.Equal(t, 5, f.products.stock(1))

	err = f.svc.CancelOrder(context.Background(), 7, 99)
	assert.ErrorIs(t, err, service.ErrOrderNotFound)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}
