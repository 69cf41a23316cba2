package kafka

import "time"

// EventType определяет тип доменного события.
type EventType string

const (
	// События заказа
	EventTypeOrderCreated  EventType = "order.created"
	EventTypeOrderRejected EventType = "order.rejected"

	// События покупателя
	EventTypeCustomerRegistered EventType = "customer.registered"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "ops.order.events"
	TopicCustomerEvents  = "ops.customer.events"
	TopicDeadLetterQueue = "ops.dlq" // Dead Letter Queue для failed messages
)

// OrderEvent представляет событие заказа.
type OrderEvent struct {
	EventType   EventType              `json:"event_type"`
	OrderID     string                 `json:"order_id"`
	CustomerID  string                 `json:"customer_id"`
	AmountMinor int64                  `json:"amount_minor"`
	Timestamp   time.Time              `json:"timestamp"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// CustomerEvent представляет событие покупателя.
type CustomerEvent struct {
	EventType  EventType `json:"event_type"`
	CustomerID string    `json:"customer_id"`
	Email      string    `json:"email"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewOrderEvent создаёт новое событие заказа.
func NewOrderEvent(eventType EventType, orderID, customerID string, amountMinor int64, metadata map[string]interface{}) *OrderEvent {
	return &OrderEvent{
		EventType:   eventType,
		OrderID:     orderID,
		CustomerID:  customerID,
		AmountMinor: amountMinor,
		Timestamp:   time.Now().UTC(),
		Metadata:    metadata,
	}
}

// NewCustomerEvent создаёт новое событие покупателя.
func NewCustomerEvent(eventType EventType, customerID, email string) *CustomerEvent {
	return &CustomerEvent{
		EventType:  eventType,
		CustomerID: customerID,
		Email:      email,
		Timestamp:  time.Now().UTC(),
	}
}
