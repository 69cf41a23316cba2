package domain

import "time"

// OrderLineItem представляет одну позицию заказа.
type OrderLineItem struct {
	// ID позиции нужен для однозначной идентификации и аудита.
	ID string
	// ProductID — ссылка на товар каталога.
	ProductID string
	// Qty — количество единиц товара.
	Qty int32
	// PriceMinor — цена за единицу, зафиксированная в момент оформления заказа.
	// Последующие изменения каталожной цены на заказ не влияют.
	PriceMinor int64
	// CreatedAt фиксирует момент добавления позиции в заказ.
	CreatedAt time.Time
}

// Order агрегирует заказ покупателя и его позиции.
// После создания ядро заказ не изменяет и не удаляет.
type Order struct {
	ID         string
	CustomerID string
	// LineItems хранит позиции в порядке добавления; каждая ссылается на свой товар.
	LineItems []OrderLineItem
	// AmountMinor — итоговая сумма заказа: сумма qty * price по позициям.
	AmountMinor int64
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if len(o.LineItems) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.AmountMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	// Сверяем сумму заказа с суммой позиций и следим, чтобы товар
	// не встречался в заказе дважды.
	var calc int64
	seen := make(map[string]struct{}, len(o.LineItems))
	for _, item := range o.LineItems {
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.PriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		if item.ProductID == "" {
			errs = append(errs, ErrItemProductRequired)
		} else if _, dup := seen[item.ProductID]; dup {
			errs = append(errs, ErrDuplicateProductLine)
		} else {
			seen[item.ProductID] = struct{}{}
		}
		calc += int64(item.Qty) * item.PriceMinor
	}
	if calc != o.AmountMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}
