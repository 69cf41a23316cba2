package domain

import (
	"strings"
	"time"
)

// Customer описывает покупателя, от имени которого оформляются заказы.
// Запись создаётся отдельным сценарием регистрации и для ядра неизменяема.
type Customer struct {
	ID string
	// Name — отображаемое имя покупателя.
	Name string
	// Email уникален в рамках всего хранилища.
	Email     string
	CreatedAt time.Time
}

// ValidateInvariants проверяет базовые инварианты покупателя и возвращает список замечаний.
func (c *Customer) ValidateInvariants() []error {
	var errs []error

	if strings.TrimSpace(c.Name) == "" {
		errs = append(errs, ErrNameRequired)
	}
	if strings.TrimSpace(c.Email) == "" {
		errs = append(errs, ErrEmailRequired)
	} else if !strings.Contains(c.Email, "@") {
		errs = append(errs, ErrEmailInvalid)
	}

	return errs
}
