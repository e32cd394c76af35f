package billing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/support-inbox/internal/config"
	apperrors "github.com/spec-kit/support-inbox/pkg/util"
)

// Gate answers "would this action exceed plan limits" before the core
// creates tickets or messages. Limit definitions belong to billing; the core
// only consults the boolean gate.
type Gate interface {
	AllowTicketCreate(ctx context.Context, companyID string) error
	AllowMessageAppend(ctx context.Context, companyID string) error
}

// UsageCounter tracks monthly per-company usage.
type UsageCounter interface {
	// Increment bumps the counter for (companyID, resource) in the current
	// month and returns the new value.
	Increment(ctx context.Context, companyID, resource string) (int64, error)
}

// PlanGate enforces configured monthly limits using a usage counter. A zero
// limit disables the check for that resource.
type PlanGate struct {
	limits  config.BillingConfig
	counter UsageCounter
}

// NewPlanGate builds a gate from configured limits.
func NewPlanGate(limits config.BillingConfig, counter UsageCounter) *PlanGate {
	return &PlanGate{limits: limits, counter: counter}
}

func (g *PlanGate) AllowTicketCreate(ctx context.Context, companyID string) error {
	return g.check(ctx, companyID, "tickets", g.limits.MonthlyTicketLimit)
}

func (g *PlanGate) AllowMessageAppend(ctx context.Context, companyID string) error {
	return g.check(ctx, companyID, "messages", g.limits.MonthlyMessageLimit)
}

func (g *PlanGate) check(ctx context.Context, companyID, resource string, limit int64) error {
	if limit <= 0 {
		return nil
	}
	used, err := g.counter.Increment(ctx, companyID, resource)
	if err != nil {
		// Billing must not take the core down; a broken counter fails open.
		return nil
	}
	if used > limit {
		return apperrors.NewLimitExceeded(resource)
	}
	return nil
}

// RedisCounter stores monthly usage in Redis so all instances share one
// view. Keys expire after ~two months to avoid unbounded growth.
type RedisCounter struct {
	client *redis.Client
}

// NewRedisCounter wraps a Redis client.
func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

func (c *RedisCounter) Increment(ctx context.Context, companyID, resource string) (int64, error) {
	key := usageKey(companyID, resource, time.Now())
	used, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if used == 1 {
		c.client.Expire(ctx, key, 62*24*time.Hour)
	}
	return used, nil
}

func usageKey(companyID, resource string, now time.Time) string {
	return fmt.Sprintf("usage:%s:%s:%s", companyID, resource, now.Format("2006-01"))
}

// MemoryCounter is the single-process counter used in dev mode and tests.
type MemoryCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

// NewMemoryCounter creates an empty counter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{counts: make(map[string]int64)}
}

func (c *MemoryCounter) Increment(_ context.Context, companyID, resource string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := usageKey(companyID, resource, time.Now())
	c.counts[key]++
	return c.counts[key], nil
}

// AllowAll is a no-op gate for deployments without billing enforcement.
type AllowAll struct{}

func (AllowAll) AllowTicketCreate(context.Context, string) error  { return nil }
func (AllowAll) AllowMessageAppend(context.Context, string) error { return nil }
