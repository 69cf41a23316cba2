package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ops/internal/domain"
)

const (
	customerKeyPrefix = "ops:customer:"
	defaultCacheTTL   = 10 * time.Minute
)

// CustomerCache — read-through кэш поверх CustomerRepository. Покупатель после
// регистрации неизменяем, поэтому кэширование по ID безопасно. Ошибки Redis не
// прерывают запрос: чтение уходит в основное хранилище.
type CustomerCache struct {
	inner  domain.CustomerRepository
	client *redis.Client
	ttl    time.Duration
	logger *log.Entry
}

// NewCustomerCache оборачивает репозиторий покупателей кэшем в Redis.
func NewCustomerCache(inner domain.CustomerRepository, client *redis.Client, ttl time.Duration, logger *log.Entry) *CustomerCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = log.WithField("component", "customer-cache")
	}
	return &CustomerCache{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// NewClient создаёт Redis-клиент и проверяет доступность сервера.
func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

// Create сохраняет покупателя и прогревает кэш (write-through).
func (c *CustomerCache) Create(ctx context.Context, customer domain.Customer) error {
	if err := c.inner.Create(ctx, customer); err != nil {
		return err
	}
	c.set(ctx, customer)
	return nil
}

// GetByID сначала смотрит в кэш, при промахе читает из хранилища.
func (c *CustomerCache) GetByID(ctx context.Context, id string) (domain.Customer, error) {
	if customer, ok := c.get(ctx, id); ok {
		return customer, nil
	}

	customer, err := c.inner.GetByID(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	c.set(ctx, customer)
	return customer, nil
}

// GetByEmail не кэшируется: поиск по email нужен только при регистрации.
func (c *CustomerCache) GetByEmail(ctx context.Context, email string) (domain.Customer, error) {
	return c.inner.GetByEmail(ctx, email)
}

// List всегда читает из хранилища.
func (c *CustomerCache) List(ctx context.Context, limit int) ([]domain.Customer, error) {
	return c.inner.List(ctx, limit)
}

func (c *CustomerCache) get(ctx context.Context, id string) (domain.Customer, bool) {
	raw, err := c.client.Get(ctx, customerKeyPrefix+id).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WithError(err).WithField("customer_id", id).Warn("customer cache read failed")
		}
		return domain.Customer{}, false
	}

	var customer domain.Customer
	if err := json.Unmarshal(raw, &customer); err != nil {
		c.logger.WithError(err).WithField("customer_id", id).Warn("customer cache entry is corrupted")
		return domain.Customer{}, false
	}

	return customer, true
}

func (c *CustomerCache) set(ctx context.Context, customer domain.Customer) {
	raw, err := json.Marshal(customer)
	if err != nil {
		c.logger.WithError(err).WithField("customer_id", customer.ID).Warn("customer cache marshal failed")
		return
	}
	if err := c.client.Set(ctx, customerKeyPrefix+customer.ID, raw, c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("customer_id", customer.ID).Warn("customer cache write failed")
	}
}

var _ domain.CustomerRepository = (*CustomerCache)(nil)
