// Package invalidation consumes cache purge events from Kafka and applies
// them to the weather cache and the learned region memory.
package invalidation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"

	"github.com/suggestkit/weather-backend/internal/core/config"
	"github.com/suggestkit/weather-backend/internal/core/observability"
	"github.com/suggestkit/weather-backend/internal/weather"
)

const (
	// OpPurgeLocation deletes every cache entry for a place.
	OpPurgeLocation = "purge_location"
	// OpResetSkips clears the negative cache and learned region for a place,
	// so the next request searches again.
	OpResetSkips = "reset_skips"
)

// Event is the wire format on the invalidation topic. Version orders events
// for the same place; replays with an older or equal version are dropped.
type Event struct {
	Op          string    `json:"op"`
	Country     string    `json:"country"`
	Region      string    `json:"region,omitempty"`
	City        string    `json:"city,omitempty"`
	LocationKey string    `json:"location_key,omitempty"`
	Languages   []string  `json:"languages,omitempty"`
	Version     uint64    `json:"version,omitempty"`
	TS          time.Time `json:"ts,omitempty"`
}

func (e Event) Validate() error {
	switch e.Op {
	case OpPurgeLocation:
		if e.City == "" && e.LocationKey == "" {
			return errors.New("purge_location: city or location_key required")
		}
	case OpResetSkips:
		if e.Country == "" || e.City == "" {
			return errors.New("reset_skips: country and city required")
		}
	default:
		return fmt.Errorf("unknown op %q", e.Op)
	}
	return nil
}

// identity keys the version dedupe; two events for the same place share an
// ordering domain.
func (e Event) identity() string {
	return e.Op + "|" + e.Country + "|" + e.Region + "|" + e.City + "|" + e.LocationKey
}

// Cache is the slice of the cache client the runner needs.
type Cache interface {
	Del(ctx context.Context, keys ...string) error
}

// Memory is the slice of the region memory the runner needs.
type Memory interface {
	ResetSkip(country, region, city string)
	ForgetRegion(country, city string)
}

type Runner struct {
	log      *slog.Logger
	cfg      config.InvalidationConfig
	cache    Cache
	memory   Memory
	ver      *versionDedupe
	assigned atomic.Bool
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

func New(cfg config.InvalidationConfig, cache Cache, memory Memory, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		log:    log,
		cfg:    cfg,
		cache:  cache,
		memory: memory,
		ver:    newVersionDedupe(8192),
	}
}

func (r *Runner) Start(ctx context.Context) error {
	if !r.cfg.Enabled {
		r.log.Info("invalidation runner disabled")
		return nil
	}
	if r.cache == nil {
		return errors.New("invalidation runner: cache dependency is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(r.cfg.Brokers, r.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("consumer group: %w", err)
	}

	h := &groupHandler{
		setup:   func(sarama.ConsumerGroupSession) { r.assigned.Store(true) },
		cleanup: func(sarama.ConsumerGroupSession) { r.assigned.Store(false) },
		process: r.handleMessage,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if err := group.Close(); err != nil {
				r.log.Error("kafka consumer group close", "err", err)
			}
		}()

		for {
			if err := group.Consume(ctx, []string{r.cfg.Topic}, h); err != nil {
				r.log.Error("kafka consume error", "err", err)
				select {
				case <-time.After(2 * time.Second):
				case <-ctx.Done():
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for err := range group.Errors() {
			r.log.Error("kafka group error", "err", err)
		}
	}()

	r.log.Info("invalidation runner started",
		"topic", r.cfg.Topic, "group", r.cfg.GroupID, "brokers", r.cfg.Brokers)
	return nil
}

func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.log.Info("invalidation runner stopped")
}

// Readiness reports whether the consumer holds a partition assignment. When
// the runner is disabled it never gates readiness.
func (r *Runner) Readiness() bool {
	if !r.cfg.Enabled {
		return true
	}
	return r.assigned.Load()
}

func (r *Runner) handleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		observability.IncInvalidation("error")
		return fmt.Errorf("decode: %w", err)
	}
	if err := ev.Validate(); err != nil {
		observability.IncInvalidation("error")
		return fmt.Errorf("validate: %w", err)
	}
	if ev.Version > 0 && !r.ver.shouldApply(ev.identity(), ev.Version) {
		observability.IncInvalidation("skipped")
		return nil
	}
	if err := r.apply(ctx, ev); err != nil {
		observability.IncInvalidation("error")
		return err
	}
	observability.IncInvalidation(ev.Op)
	return nil
}

func (r *Runner) apply(ctx context.Context, ev Event) error {
	switch ev.Op {
	case OpPurgeLocation:
		keys := weather.PurgeKeys(ev.Country, ev.Region, ev.City, ev.LocationKey, ev.Languages)
		if len(keys) == 0 {
			return nil
		}
		if err := r.cache.Del(ctx, keys...); err != nil {
			return fmt.Errorf("cache del (%d keys): %w", len(keys), err)
		}
		r.log.Debug("location purged",
			"country", ev.Country, "city", ev.City, "keys", len(keys))
	case OpResetSkips:
		if r.memory == nil {
			return nil
		}
		r.memory.ResetSkip(ev.Country, ev.Region, ev.City)
		r.memory.ForgetRegion(ev.Country, ev.City)
		r.log.Debug("skip state reset",
			"country", ev.Country, "region", ev.Region, "city", ev.City)
	}
	return nil
}

type groupHandler struct {
	setup   func(sarama.ConsumerGroupSession)
	cleanup func(sarama.ConsumerGroupSession)
	process func(context.Context, *sarama.ConsumerMessage) error
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	if h.setup != nil {
		h.setup(sess)
	}
	return nil
}

func (h *groupHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	if h.cleanup != nil {
		h.cleanup(sess)
	}
	return nil
}

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for msg := range claim.Messages() {
		if err := h.process(ctx, msg); err != nil {
			return err
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}
