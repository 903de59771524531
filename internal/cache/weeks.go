// Package cache keeps season week listings in Redis.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"bookaway/internal/events"
	"bookaway/internal/models"
)

const (
	keyPrefix = "bookaway:weeks:"
	genPrefix = "bookaway:weeks:gen:"
)

// setIfCurrent stores ARGV[2] under KEYS[2] only while the generation in
// KEYS[1] still equals ARGV[1]. ARGV[3] is the TTL in milliseconds.
var setIfCurrent = redis.NewScript(`
local gen = redis.call('GET', KEYS[1]) or '0'
if gen ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[2], ARGV[2])
end
return 1
`)

// WeekCache is a read-through cache of week listings keyed by season.
// Cache failures are logged and treated as misses.
type WeekCache struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *zerolog.Logger
}

// NewWeekCache returns a cache storing listings in rdb for ttl. A zero ttl
// keeps entries until they are invalidated.
func NewWeekCache(rdb redis.Cmdable, ttl time.Duration, logger *zerolog.Logger) *WeekCache {
	l := logger.With().Str("component", "week_cache").Logger()
	return &WeekCache{rdb: rdb, ttl: ttl, logger: &l}
}

func key(seasonID int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, seasonID)
}

func genKey(seasonID int64) string {
	return fmt.Sprintf("%s%d", genPrefix, seasonID)
}

// Get returns the cached listing of a season together with the generation a
// later Set must present. The generation is -1 when Redis could not be read.
func (c *WeekCache) Get(ctx context.Context, seasonID int64) ([]models.WeekWithBookings, int64, bool) {
	vals, err := c.rdb.MGet(ctx, key(seasonID), genKey(seasonID)).Result()
	if err != nil {
		c.logger.Warn().Err(err).Int64("season_id", seasonID).Msg("week cache read failed")
		return nil, -1, false
	}

	var gen int64
	if raw, ok := vals[1].(string); ok {
		if gen, err = strconv.ParseInt(raw, 10, 64); err != nil {
			c.logger.Warn().Err(err).Int64("season_id", seasonID).Msg("week cache generation is corrupt")
			return nil, -1, false
		}
	}

	raw, ok := vals[0].(string)
	if !ok {
		return nil, gen, false
	}
	var weeks []models.WeekWithBookings
	if err := json.Unmarshal([]byte(raw), &weeks); err != nil {
		c.logger.Warn().Err(err).Int64("season_id", seasonID).Msg("week cache entry is corrupt")
		return nil, gen, false
	}
	return weeks, gen, true
}

// Set stores the listing of a season unless the season was invalidated
// after the Get that returned generation.
func (c *WeekCache) Set(ctx context.Context, seasonID, generation int64, weeks []models.WeekWithBookings) {
	if generation < 0 {
		return
	}
	data, err := json.Marshal(weeks)
	if err != nil {
		c.logger.Warn().Err(err).Int64("season_id", seasonID).Msg("week cache encode failed")
		return
	}
	stored, err := setIfCurrent.Run(ctx, c.rdb,
		[]string{genKey(seasonID), key(seasonID)},
		strconv.FormatInt(generation, 10), data, c.ttl.Milliseconds(),
	).Int()
	if err != nil {
		c.logger.Warn().Err(err).Int64("season_id", seasonID).Msg("week cache write failed")
		return
	}
	if stored == 0 {
		c.logger.Debug().Int64("season_id", seasonID).Int64("generation", generation).Msg("stale week listing not cached")
	}
}

// Invalidate drops the listing of a season and moves its generation on.
func (c *WeekCache) Invalidate(ctx context.Context, seasonID int64) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey(seasonID))
		pipe.Del(ctx, key(seasonID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate weeks of season %d: %w", seasonID, err)
	}
	return nil
}

// HandleEvent invalidates the season an event refers to.
func (c *WeekCache) HandleEvent(e events.Event) error {
	if e.SeasonID == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return c.Invalidate(ctx, e.SeasonID)
}

// Subscribe wires invalidation into bus for every event that changes a
// week listing.
func (c *WeekCache) Subscribe(bus *events.EventBus) {
	bus.Subscribe(c.HandleEvent,
		events.SeasonOpened, events.SeasonClosed, events.SeasonDeleted,
		events.WeekUpdated, events.BookingRequested, events.BookingSuperseded,
	)
}
