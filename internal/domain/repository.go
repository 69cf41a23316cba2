package domain

import "context"

// CustomerRepository описывает требования к хранилищу покупателей.
type CustomerRepository interface {
	// Create сохраняет нового покупателя. Возвращает ErrCustomerExists при занятом ID
	// и ErrEmailTaken при занятом email.
	Create(ctx context.Context, customer Customer) error
	// GetByID возвращает покупателя или ErrCustomerNotFound, если его нет.
	GetByID(ctx context.Context, id string) (Customer, error)
	// GetByEmail возвращает покупателя по email или ErrCustomerNotFound.
	GetByEmail(ctx context.Context, email string) (Customer, error)
	// List возвращает покупателей с опциональным ограничением на количество.
	List(ctx context.Context, limit int) ([]Customer, error)
}

// ProductRepository описывает требования к хранилищу товаров.
type ProductRepository interface {
	// Create сохраняет новый товар. Возвращает ErrProductExists при занятом ID.
	Create(ctx context.Context, product Product) error
	// GetByID возвращает товар или ErrProductNotFound, если его нет.
	GetByID(ctx context.Context, id string) (Product, error)
	// FindByIDs возвращает только найденные товары одним батчем; отсутствующие
	// идентификаторы вызывающая сторона определяет по разности множеств.
	FindByIDs(ctx context.Context, ids []string) ([]Product, error)
	// UpdateQuantities применяет изменения остатков с проверкой версий.
	// При несовпадении версии любой строки возвращает ErrStockConflict,
	// не применяя ни одного изменения.
	UpdateQuantities(ctx context.Context, updates []StockUpdate) error
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ вместе с позициями. Возвращает ErrOrderExists,
	// если запись с таким ID уже существует.
	Create(ctx context.Context, order Order) error
	// GetByID возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	GetByID(ctx context.Context, id string) (Order, error)
	// ListByCustomer возвращает заказы клиента с опциональным ограничением на количество.
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]Order, error)
}

// TxRepositories предоставляет репозитории, привязанные к одной транзакции.
type TxRepositories interface {
	Orders() OrderRepository
	Products() ProductRepository
	Outbox() OutboxRepository
}

// TxManager атомарно выполняет fn: либо применяются все записи, сделанные через
// переданные репозитории, либо ни одна из них.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx TxRepositories) error) error
}
