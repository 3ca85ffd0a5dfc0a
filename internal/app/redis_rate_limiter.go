package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// paymentInitiationWindow is the fixed window the per-student initiation
// ceiling counts attempts in.
const paymentInitiationWindow = time.Minute

var paymentInitiationScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisPaymentRateLimiter counts payment initiations per student in a fixed
// window shared across service instances. INCR and PEXPIRE run atomically in
// the script so the first attempt always arms the window expiry.
type RedisPaymentRateLimiter struct {
	client redis.UniversalClient
	prefix string
	window time.Duration
}

func NewRedisPaymentRateLimiter(client redis.UniversalClient, prefix string) *RedisPaymentRateLimiter {
	p := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if p == "" {
		p = "feepay:rate_limit"
	}
	return &RedisPaymentRateLimiter{
		client: client,
		prefix: p,
		window: paymentInitiationWindow,
	}
}

// ConsumePaymentInitiation records one initiation attempt for the student and
// reports the attempt count in the current window plus the seconds until the
// window resets.
func (r *RedisPaymentRateLimiter) ConsumePaymentInitiation(ctx context.Context, studentID uuid.UUID, limit int) (count int, retryAfterSeconds int, err error) {
	if r == nil || r.client == nil || limit <= 0 {
		return 0, 0, nil
	}

	windowMs := r.window.Milliseconds()
	key := r.prefix + ":payment_initialize:" + studentID.String()
	values, err := paymentInitiationScript.Run(ctx, r.client, []string{key}, windowMs).Int64Slice()
	if err != nil {
		return 0, 0, err
	}
	if len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected limiter script reply of length %d", len(values))
	}

	ttlMs := values[1]
	if ttlMs < 0 {
		ttlMs = windowMs
	}
	retryAfter := int((ttlMs + 999) / 1000)
	if retryAfter < 1 {
		retryAfter = 1
	}
	return int(values[0]), retryAfter, nil
}
