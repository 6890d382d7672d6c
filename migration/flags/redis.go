package flags

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/taskmesh/lib-migration/migration/log"
)

// ErrNilRedisClient is returned when the redis flag client has no connection.
var ErrNilRedisClient = errors.New("flags: redis client is nil")

// defaultRedisKeyPrefix namespaces flag hashes in the keyspace.
const defaultRedisKeyPrefix = "feature_flags"

// RedisClient reads flag booleans from Redis hashes, one hash per flag
// namespace. Hash field values are parsed with strconv.ParseBool, so
// "1"/"true"/"TRUE" all enable a flag. Missing keys and fields evaluate to
// disabled without error; only transport failures surface to the Evaluator,
// which fails closed.
type RedisClient struct {
	rdb       redis.UniversalClient
	keyPrefix string
	logger    log.Logger
}

// RedisClientOption customizes a RedisClient.
type RedisClientOption func(*RedisClient)

// WithKeyPrefix overrides the keyspace prefix for flag hashes.
func WithKeyPrefix(prefix string) RedisClientOption {
	return func(c *RedisClient) {
		c.keyPrefix = prefix
	}
}

// WithLogger sets the logger used for transport diagnostics.
func WithLogger(logger log.Logger) RedisClientOption {
	return func(c *RedisClient) {
		c.logger = logger
	}
}

// NewRedisClient creates a Client backed by Redis.
func NewRedisClient(rdb redis.UniversalClient, opts ...RedisClientOption) *RedisClient {
	c := &RedisClient{
		rdb:       rdb,
		keyPrefix: defaultRedisKeyPrefix,
		logger:    &log.NoneLogger{},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// CheckFeatureFlagStatus implements Client.
func (c *RedisClient) CheckFeatureFlagStatus(ctx context.Context, flagKey, namespace, _ string, _ map[string]any) (bool, error) {
	if c == nil || c.rdb == nil {
		return false, ErrNilRedisClient
	}

	value, err := c.rdb.HGet(ctx, c.hashKey(namespace), flagKey).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("flags: redis lookup for %s/%s: %w", namespace, flagKey, err)
	}

	enabled, err := strconv.ParseBool(value)
	if err != nil {
		c.logger.Warnf("flag %s/%s has non-boolean value %q, treating as disabled", namespace, flagKey, value)
		return false, nil
	}

	return enabled, nil
}

func (c *RedisClient) hashKey(namespace string) string {
	return c.keyPrefix + ":" + namespace
}
