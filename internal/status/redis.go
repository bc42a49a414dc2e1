package status

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/rangeops/excon/internal/metrics"
)

// RedisStore is the redis-backed Store implementation.
type RedisStore struct {
	client *redis.Client
	logger zerolog.Logger
}

// RedisConfig holds redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisStore connects to redis and verifies the connection.
func NewRedisStore(cfg RedisConfig, logger zerolog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("connected to redis status store")

	return &RedisStore{client: client, logger: logger}, nil
}

// newRedisStoreWithClient is used by tests to inject a miniredis-backed client.
func newRedisStoreWithClient(client *redis.Client, logger zerolog.Logger) *RedisStore {
	return &RedisStore{client: client, logger: logger}
}

func (s *RedisStore) fail(op string, err error) {
	metrics.IncStoreFailure(op)
	s.logger.Warn().Err(err).Str("op", op).Msg("status store write failed")
}

// PutState overwrites the mirrored state tag and its change timestamp.
func (s *RedisStore) PutState(ctx context.Context, scenario, state string) {
	pipe := s.client.Pipeline()
	pipe.Set(ctx, stateKey(scenario), state, ExerciseTTL)
	pipe.Set(ctx, stateTimestampKey(scenario), float64(time.Now().UnixMilli())/1000, ExerciseTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		s.fail("put_state", err)
	}
}

// GetState returns the mirrored state tag, if present.
func (s *RedisStore) GetState(ctx context.Context, scenario string) (string, bool) {
	val, err := s.client.Get(ctx, stateKey(scenario)).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		s.fail("get_state", err)
		return "", false
	}
	return val, true
}

// PutTimer overwrites the mirrored timer snapshot.
func (s *RedisStore) PutTimer(ctx context.Context, scenario string, elapsed int) {
	snap := TimerSnapshot{
		Elapsed:   elapsed,
		Formatted: FormatElapsed(elapsed),
		Timestamp: float64(time.Now().UnixMilli()) / 1000,
	}
	data, err := json.Marshal(snap)
	if err != nil {
		s.fail("put_timer", err)
		return
	}
	if err := s.client.Set(ctx, timerKey(scenario), data, ExerciseTTL).Err(); err != nil {
		s.fail("put_timer", err)
	}
}

// GetTimer returns the mirrored timer snapshot, or a zero snapshot when the
// key is absent or unreadable.
func (s *RedisStore) GetTimer(ctx context.Context, scenario string) TimerSnapshot {
	zero := TimerSnapshot{Formatted: FormatElapsed(0)}
	data, err := s.client.Get(ctx, timerKey(scenario)).Bytes()
	if err == redis.Nil {
		return zero
	}
	if err != nil {
		s.fail("get_timer", err)
		return zero
	}
	var snap TimerSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.fail("get_timer", err)
		return zero
	}
	return snap
}

// MarkDelivered records an inject delivery: idempotent set add, counter
// increment and a per-inject delivery timestamp, all TTL-refreshed.
func (s *RedisStore) MarkDelivered(ctx context.Context, scenario, team, inject string) {
	pipe := s.client.Pipeline()
	pipe.SAdd(ctx, deliveredKey(scenario, team), inject)
	pipe.Expire(ctx, deliveredKey(scenario, team), ExerciseTTL)
	pipe.Incr(ctx, countKey(scenario, team))
	pipe.Expire(ctx, countKey(scenario, team), ExerciseTTL)
	pipe.Set(ctx, deliveredAtKey(scenario, inject), float64(time.Now().UnixMilli())/1000, ExerciseTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		s.fail("mark_delivered", err)
	}
}

// CountDelivered returns the cardinality of the team's delivered set.
func (s *RedisStore) CountDelivered(ctx context.Context, scenario, team string) int {
	n, err := s.client.SCard(ctx, deliveredKey(scenario, team)).Result()
	if err != nil && err != redis.Nil {
		s.fail("count_delivered", err)
		return 0
	}
	return int(n)
}

// SetTeamConnected tracks a team dashboard connection flag.
func (s *RedisStore) SetTeamConnected(ctx context.Context, scenario, team string, connected bool) {
	val := "0"
	if connected {
		val = "1"
	}
	if err := s.client.Set(ctx, connectedKey(scenario, team), val, ExerciseTTL).Err(); err != nil {
		s.fail("set_team_connected", err)
	}
}

// Purge removes every mirrored key for the scenario.
func (s *RedisStore) Purge(ctx context.Context, scenario string) {
	iter := s.client.Scan(ctx, 0, scenarioPattern(scenario), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		s.fail("purge", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		s.fail("purge", err)
		return
	}
	s.logger.Debug().Str("scenario", scenario).Int("keys", len(keys)).Msg("purged exercise keys")
}

// Status aggregates the mirrored view for the given teams.
func (s *RedisStore) Status(ctx context.Context, scenario string, teams []string) ExerciseStatus {
	out := ExerciseStatus{
		State: "NotStarted",
		Timer: s.GetTimer(ctx, scenario),
		Teams: make([]TeamStatus, 0, len(teams)),
	}
	if state, ok := s.GetState(ctx, scenario); ok {
		out.State = state
	}
	for _, team := range teams {
		out.Teams = append(out.Teams, TeamStatus{
			ID:        team,
			Delivered: s.CountDelivered(ctx, scenario, team),
			Status:    "connected",
		})
	}
	return out
}

// HealthCheck verifies redis availability.
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
