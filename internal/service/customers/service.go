package customers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ops/internal/domain"
	"github.com/vladislavdragonenkov/ops/internal/messaging/kafka"
)

var (
	customersRegistered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ops_customers_registered_total",
		Help: "Total number of customers registered successfully.",
	})
	customersRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ops_customers_rejected_total",
		Help: "Total number of rejected customer registrations grouped by reason.",
	}, []string{"reason"})
)

// Service реализует регистрацию покупателей: email должен быть уникален,
// повторная регистрация отклоняется.
type Service struct {
	customers domain.CustomerRepository
	producer  *kafka.Producer // опциональный producer для событий регистрации
	logger    *log.Entry
}

// NewService создаёт сервис регистрации покупателей.
func NewService(customers domain.CustomerRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "customer-service")
	}
	return &Service{
		customers: customers,
		logger:    logger,
	}
}

// NewServiceWithKafka создаёт сервис, публикующий события регистрации в Kafka.
func NewServiceWithKafka(customers domain.CustomerRepository, producer *kafka.Producer, logger *log.Entry) *Service {
	svc := NewService(customers, logger)
	svc.producer = producer
	return svc
}

// Register создаёт нового покупателя, если email ещё не зарегистрирован.
func (s *Service) Register(ctx context.Context, name, email string) (domain.Customer, error) {
	customer := domain.Customer{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		Email:     strings.TrimSpace(email),
		CreatedAt: time.Now().UTC(),
	}
	if errs := customer.ValidateInvariants(); len(errs) > 0 {
		customersRejected.WithLabelValues("invalid_request").Inc()
		return domain.Customer{}, errors.Join(errs...)
	}

	if _, err := s.customers.GetByEmail(ctx, customer.Email); err == nil {
		customersRejected.WithLabelValues("email_taken").Inc()
		return domain.Customer{}, domain.ErrEmailTaken
	} else if !errors.Is(err, domain.ErrCustomerNotFound) {
		return domain.Customer{}, fmt.Errorf("lookup customer by email: %w", err)
	}

	if err := s.customers.Create(ctx, customer); err != nil {
		// Гонка двух регистраций на один email разрешается уникальным
		// ограничением хранилища.
		if errors.Is(err, domain.ErrEmailTaken) {
			customersRejected.WithLabelValues("email_taken").Inc()
			return domain.Customer{}, domain.ErrEmailTaken
		}
		return domain.Customer{}, fmt.Errorf("create customer: %w", err)
	}

	customersRegistered.Inc()
	s.logger.WithFields(log.Fields{
		"customer_id": customer.ID,
		"email":       customer.Email,
	}).Info("customer registered")

	s.publishRegistered(customer)
	return customer, nil
}

// Get возвращает покупателя по идентификатору.
func (s *Service) Get(ctx context.Context, id string) (domain.Customer, error) {
	if id == "" {
		return domain.Customer{}, domain.ErrCustomerRequired
	}
	return s.customers.GetByID(ctx, id)
}

// publishRegistered отправляет событие регистрации, если Kafka настроен.
// Ошибка публикации не прерывает регистрацию.
func (s *Service) publishRegistered(customer domain.Customer) {
	if s.producer == nil {
		return
	}

	event := kafka.NewCustomerEvent(kafka.EventTypeCustomerRegistered, customer.ID, customer.Email)
	if err := s.producer.PublishEvent(kafka.TopicCustomerEvents, customer.ID, event); err != nil {
		s.logger.WithError(err).WithField("customer_id", customer.ID).Warn("failed to publish customer event to kafka")
	}
}
