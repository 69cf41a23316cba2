package domain

import (
	"errors"
	"fmt"
)

var (
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка отсутствующего идентификатора товара в позиции.
	ErrItemProductRequired = errors.New("item product_id is required")
	// Ошибка, если один товар встречается в заказе двумя позициями.
	ErrDuplicateProductLine = errors.New("order line items must reference distinct products")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("amount_minor must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order amount does not match items sum")

	// Ошибка отсутствующего имени покупателя.
	ErrNameRequired = errors.New("customer name is required")
	// Ошибка отсутствующего email покупателя.
	ErrEmailRequired = errors.New("customer email is required")
	// Ошибка некорректного email покупателя.
	ErrEmailInvalid = errors.New("customer email is invalid")
	// ErrEmailTaken возвращается при попытке регистрации с занятым email.
	ErrEmailTaken = errors.New("customer email already registered")

	// Ошибка отсутствующего SKU товара.
	ErrSKURequired = errors.New("product sku is required")
	// Ошибка отрицательной цены товара.
	ErrPriceNegative = errors.New("product price must be non-negative")
	// Ошибка отрицательного остатка товара.
	ErrQuantityNegative = errors.New("product quantity must be non-negative")

	// ErrCustomerNotFound возвращается, если покупатель не найден в репозитории.
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrCustomerExists возвращается при создании покупателя с занятым ID.
	ErrCustomerExists = errors.New("customer already exists")
	// ErrProductNotFound возвращается, если товар не найден в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrProductExists возвращается при создании товара с занятым ID.
	ErrProductExists = errors.New("product already exists")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderExists возвращается при создании заказа с занятым ID.
	ErrOrderExists = errors.New("order already exists")

	// ErrInsufficientStock — запрошенное количество превышает доступный остаток.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrStockConflict сигнализирует о конкурентном изменении остатка (lost update).
	ErrStockConflict = errors.New("stock version conflict")
	// ErrDependencyTimeout — коллаборатор не ответил в отведённый дедлайн.
	ErrDependencyTimeout = errors.New("dependency call timed out")
	// ErrPersistence — инфраструктурная ошибка записи в хранилище.
	ErrPersistence = errors.New("persistence failure")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// ErrIdempotencyKeyExists возвращается, если idempotency-key уже зарегистрирован.
	ErrIdempotencyKeyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyMismatch — повтор с тем же ключом, но другим телом запроса.
	ErrIdempotencyMismatch = errors.New("idempotency key reused with different request")
	// ErrIdempotencyInProgress — запрос с этим ключом ещё обрабатывается.
	ErrIdempotencyInProgress = errors.New("request with this idempotency key is in progress")
	// ErrIdempotencyNotFound — запись по ключу отсутствует.
	ErrIdempotencyNotFound = errors.New("idempotency record not found")
)

// ProductNotFoundError уточняет ErrProductNotFound идентификатором товара из запроса.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product with id %s does not exist", e.ProductID)
}

// Is позволяет сопоставлять ошибку с ErrProductNotFound через errors.Is.
func (e *ProductNotFoundError) Is(target error) bool {
	return target == ErrProductNotFound
}

// InsufficientStockError уточняет ErrInsufficientStock данными проблемной позиции.
// Available — остаток на момент проверки, с учётом уже зарезервированных
// предыдущими позициями того же запроса единиц.
type InsufficientStockError struct {
	ProductID string
	Requested int32
	Available int32
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// Is позволяет сопоставлять ошибку с ErrInsufficientStock через errors.Is.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// IsStockConflict проверяет, является ли ошибка конфликтом версий остатка.
func IsStockConflict(err error) bool {
	return errors.Is(err, ErrStockConflict)
}

// IsInsufficientStock проверяет, является ли ошибка нехваткой остатка.
func IsInsufficientStock(err error) bool {
	return errors.Is(err, ErrInsufficientStock)
}
