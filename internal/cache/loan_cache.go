package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/segyhp/payroll-loans/internal/domain"
	customError "github.com/segyhp/payroll-loans/pkg/errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// LoanCache keeps loan detail documents (loan plus installments) in Redis.
type LoanCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLoanCache(client *redis.Client, ttl time.Duration) *LoanCache {
	return &LoanCache{client: client, ttl: ttl}
}

// generationTTL outlives any single read-then-fill, so an expired generation
// can only make a pending fill miss, never succeed with stale data.
const generationTTL = 24 * time.Hour

// setIfCurrent writes the document only while the generation still matches
// the one observed before the database read.
var setIfCurrent = redis.NewScript(`
local gen = redis.call('GET', KEYS[2])
if (gen or '0') ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// LoanKey builds the cache key of a loan document.
func LoanKey(id uuid.UUID) string {
	return fmt.Sprintf("loan:%s", id)
}

// GenerationKey builds the key of a loan's invalidation counter.
func GenerationKey(id uuid.UUID) string {
	return fmt.Sprintf("loan:%s:gen", id)
}

// GetLoan returns the cached loan, or nil without error on a miss. The
// returned generation must be handed back to SetLoan when filling a miss.
func (c *LoanCache) GetLoan(ctx context.Context, id uuid.UUID) (*domain.Loan, int64, error) {
	values, err := c.client.MGet(ctx, LoanKey(id), GenerationKey(id)).Result()
	if err != nil {
		return nil, 0, customError.WrapCacheError(err)
	}

	var generation int64
	if raw, ok := values[1].(string); ok {
		if generation, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, 0, fmt.Errorf("invalid cache generation for loan %s: %w", id, err)
		}
	}

	raw, ok := values[0].(string)
	if !ok {
		return nil, generation, nil
	}

	var loan domain.Loan
	if err := json.Unmarshal([]byte(raw), &loan); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal cached loan %s: %w", id, err)
	}
	return &loan, generation, nil
}

// SetLoan stores the document unless the loan was invalidated after
// generation was observed. A skipped write is not an error.
func (c *LoanCache) SetLoan(ctx context.Context, loan *domain.Loan, generation int64) error {
	data, err := json.Marshal(loan)
	if err != nil {
		return fmt.Errorf("failed to marshal loan %s: %w", loan.ID, err)
	}

	keys := []string{LoanKey(loan.ID), GenerationKey(loan.ID)}
	err = setIfCurrent.Run(ctx, c.client, keys, generation, string(data), c.ttl.Milliseconds()).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return customError.WrapCacheError(err)
	}
	return nil
}

// InvalidateLoan bumps the generation and drops the document in one
// transaction, so fills that started earlier are discarded.
func (c *LoanCache) InvalidateLoan(ctx context.Context, id uuid.UUID) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, GenerationKey(id))
		pipe.Expire(ctx, GenerationKey(id), generationTTL)
		pipe.Del(ctx, LoanKey(id))
		return nil
	})
	if err != nil {
		return customError.WrapCacheError(err)
	}
	return nil
}
