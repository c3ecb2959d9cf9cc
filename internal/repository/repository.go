package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrProductNotFound        = errors.New("product not found")
	ErrOrderNotFound          = errors.New("order not found")
	ErrAttemptNotFound        = errors.New("checkout attempt not found")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrInsufficientFunds      = errors.New("insufficient wallet balance or points")
	ErrDuplicateSettlement    = errors.New("order for this checkout attempt already exists")
	ErrDuplicateAttempt       = errors.New("checkout attempt already exists")
	ErrAttemptStatusChanged   = errors.New("checkout attempt status changed concurrently")
	ErrInvalidOrderTransition = errors.New("invalid order status transition")
)

// InsufficientStockError carries the quantity that is actually available so
// the client can be told "only N left".
type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Driver names accepted by NewRepository.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Credentials struct {
	Driver     string
	Host       string
	Port       int
	User       string
	Password   string
	DBName     string
	SQLitePath string
}

// OutboxEvent is written in the same transaction as the state change it
// announces and published later by the outbox poller.
type OutboxEvent struct {
	ID          uuid.UUID
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

// AttemptUpdate is a status change of a checkout attempt. Empty strings and a
// nil OrderID leave the stored values untouched.
type AttemptUpdate struct {
	// From is the status the attempt must still have for the write to apply.
	// When another request moved it on first, the update fails with
	// ErrAttemptStatusChanged and nothing is written.
	From          domain.CheckoutStatus
	Status        domain.CheckoutStatus
	FailureReason string
	Gateway       string
	IntentRef     string
	NextAction    string
	OrderID       *uuid.UUID
}

// LedgerTx is the set of ledger operations available inside one store
// transaction. Every stock and wallet mutation is conditional, so a
// concurrent commit that would overdraw fails instead of going negative.
type LedgerTx interface {
	ReadAttemptLines(ctx context.Context, attemptID string) ([]domain.CartLine, error)
	ReadStock(ctx context.Context, productID int64) (int, error)
	DecrementStock(ctx context.Context, productID int64, qty int) error
	ReadWallet(ctx context.Context, userID int64) (*domain.Wallet, error)
	AdjustWallet(ctx context.Context, userID int64, balanceDelta decimal.Decimal, pointsDelta int) error
	CreateOrder(ctx context.Context, order *domain.Order) error
	AppendOrderLines(ctx context.Context, orderID uuid.UUID, lines []domain.OrderLine) error
	ClearCart(ctx context.Context, userID int64, settled []domain.CartLine) error
	AppendTransaction(ctx context.Context, tx *domain.Transaction) error
	AppendOutboxEvent(ctx context.Context, event *OutboxEvent) error
	MarkAttempt(ctx context.Context, attemptID string, update AttemptUpdate) error
	GetOrderByAttempt(ctx context.Context, attemptID string) (*domain.Order, error)
}

type CatalogStore interface {
	ListProducts(ctx context.Context) ([]*domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	UpsertProduct(ctx context.Context, p *domain.Product) error
}

type CartStore interface {
	GetCart(ctx context.Context, userID int64) ([]domain.CartLine, error)
	AddCartItem(ctx context.Context, userID, productID int64, qty int) (int, error)
	SetCartItemQuantity(ctx context.Context, userID, productID int64, qty int) error
	RemoveCartItem(ctx context.Context, userID, productID int64) error
	ClearCart(ctx context.Context, userID int64) error
}

type OrderStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListOrdersByUser(ctx context.Context, userID int64) ([]*domain.Order, error)
	ListAllOrders(ctx context.Context, limit int) ([]*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) error
}

type WalletStore interface {
	GetWallet(ctx context.Context, userID int64) (*domain.Wallet, error)
	CreditWallet(ctx context.Context, userID int64, amount decimal.Decimal, points int) (*domain.Wallet, error)
	ListTransactions(ctx context.Context, userID int64, limit int) ([]*domain.Transaction, error)
}

type AttemptStore interface {
	CreateAttempt(ctx context.Context, a *domain.CheckoutAttempt) error
	GetAttempt(ctx context.Context, id string) (*domain.CheckoutAttempt, error)
	GetAttemptByIntent(ctx context.Context, gateway, intentRef string) (*domain.CheckoutAttempt, error)
	UpdateAttempt(ctx context.Context, id string, update AttemptUpdate) error
	ListStaleAttempts(ctx context.Context, status domain.CheckoutStatus, olderThan time.Time, limit int) ([]*domain.CheckoutAttempt, error)
	RecordReconciliation(ctx context.Context, entry *domain.ReconciliationEntry, event *OutboxEvent) error
	ListReconciliations(ctx context.Context, limit int) ([]*domain.ReconciliationEntry, error)
}

type OutboxStore interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id uuid.UUID) error
}

// Ledger runs fn inside a single store transaction; any error rolls
// everything back.
type Ledger interface {
	InTx(ctx context.Context, fn func(tx LedgerTx) error) error
}

type RepoInterface interface {
	Ledger
	CatalogStore
	CartStore
	OrderStore
	WalletStore
	AttemptStore
	OutboxStore
	Ping(ctx context.Context) error
	RunMigrations() error
	Close() error
}
