package domain

import "time"

// Product описывает товарную позицию каталога с доступным остатком на складе.
// Остаток меняется только через резервирование при создании заказа.
type Product struct {
	ID string
	// SKU — внешний артикул товара.
	SKU  string
	Name string
	// PriceMinor — цена за единицу в минимальных денежных единицах (например, копейки).
	PriceMinor int64
	// Quantity — доступный остаток на складе.
	Quantity int32
	// Version используется для optimistic locking при списании остатка.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateInvariants проверяет базовые инварианты товара.
func (p *Product) ValidateInvariants() []error {
	var errs []error

	if p.SKU == "" {
		errs = append(errs, ErrSKURequired)
	}
	if p.PriceMinor < 0 {
		errs = append(errs, ErrPriceNegative)
	}
	if p.Quantity < 0 {
		errs = append(errs, ErrQuantityNegative)
	}

	return errs
}

// StockUpdate описывает одно изменение остатка в рамках коммита заказа.
// ExpectedVersion защищает от lost update: запись применяется, только если
// версия строки в хранилище не изменилась с момента чтения.
type StockUpdate struct {
	ProductID       string
	NewQuantity     int32
	ExpectedVersion int64
}
