package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/HenrickTheBull/stagehand/internal/queue"
	"github.com/HenrickTheBull/stagehand/pkg/logger"
	"github.com/robfig/cron/v3"
)

var log = logger.Get("Scheduler")

// PostFunc delivers one queue item to a single destination. An error
// return leaves the item's delivery flag false; it will be retried on
// every subsequent tick indefinitely.
type PostFunc func(ctx context.Context, item queue.Item) error

type Config struct {
	CronSchedule     string `yaml:"cron_schedule" env:"SCHEDULER_CRON" env-default:"0 * * * *"`
	ItemsPerInterval int    `yaml:"items_per_interval" env:"SCHEDULER_ITEMS_PER_INTERVAL" env-default:"1"`
}

// Scheduler drives delivery of queued items across the configured
// destinations on a cron schedule. Ticks are serialized: if a tick
// overruns the interval the next firing is skipped rather than run
// concurrently against the same front item.
type Scheduler struct {
	mu      sync.Mutex
	ticking bool

	cron    *cron.Cron
	entryID cron.EntryID
	expr    string
	perTick int

	store *queue.Store
	posts map[string]PostFunc
}

// New validates the configuration and builds a scheduler over the
// given queue store and destination post functions. Every destination
// the store is configured with must have a post function.
func New(config Config, store *queue.Store, posts map[string]PostFunc) (*Scheduler, error) {
	if _, err := cron.ParseStandard(config.CronSchedule); err != nil {
		return nil, fmt.Errorf("invalid cron schedule '%s': %w", config.CronSchedule, err)
	}
	if config.ItemsPerInterval <= 0 {
		return nil, fmt.Errorf("items per interval must be a positive integer (got %d)", config.ItemsPerInterval)
	}

	for _, dest := range store.Destinations() {
		if _, ok := posts[dest]; !ok {
			return nil, fmt.Errorf("no post function provided for configured destination '%s'", dest)
		}
	}

	return &Scheduler{
		cron:    cron.New(),
		expr:    config.CronSchedule,
		perTick: config.ItemsPerInterval,
		store:   store,
		posts:   posts,
	}, nil
}

// Start registers the tick on the cron schedule and begins firing.
func (sched *Scheduler) Start() error {
	sched.mu.Lock()
	defer sched.mu.Unlock()

	entryID, err := sched.cron.AddFunc(sched.expr, func() {
		sched.Tick(context.Background())
	})
	if err != nil {
		return fmt.Errorf("failed to schedule delivery tick: %w", err)
	}

	sched.entryID = entryID
	sched.cron.Start()
	log.Emit(logger.INFO, "Scheduler started with schedule '%s' (%d items per tick)\n", sched.expr, sched.perTick)

	return nil
}

// Stop halts the cron firing. Any in-progress tick runs to completion.
// The wait happens outside the mutex: an in-flight tick needs it to
// finish, so holding it here would block the very job being drained.
func (sched *Scheduler) Stop() {
	sched.mu.Lock()
	ctx := sched.cron.Stop()
	sched.mu.Unlock()

	<-ctx.Done()
	log.Emit(logger.STOP, "Scheduler stopped\n")
}

// SetCronSchedule replaces the delivery schedule. Invalid expressions
// are rejected and the prior schedule is retained.
func (sched *Scheduler) SetCronSchedule(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid cron schedule '%s': %w", expr, err)
	}

	sched.mu.Lock()
	defer sched.mu.Unlock()

	sched.cron.Remove(sched.entryID)
	entryID, err := sched.cron.AddFunc(expr, func() {
		sched.Tick(context.Background())
	})
	if err != nil {
		return fmt.Errorf("failed to reschedule delivery tick: %w", err)
	}

	sched.entryID = entryID
	sched.expr = expr
	log.Emit(logger.INFO, "Delivery schedule changed to '%s'\n", expr)

	return nil
}

// SetItemsPerInterval replaces the per-tick batch size. Only positive
// values are accepted.
func (sched *Scheduler) SetItemsPerInterval(n int) error {
	if n <= 0 {
		return fmt.Errorf("items per interval must be a positive integer (got %d)", n)
	}

	sched.mu.Lock()
	defer sched.mu.Unlock()

	sched.perTick = n
	return nil
}

// Tick performs one delivery pass: up to the configured batch size,
// peek the front item and try every destination whose delivery flag is
// still false, in configuration order. If no destination succeeds for
// an item the batch stops early — a broken destination must not drain
// the queue of unrelated items while repeatedly failing on the same
// one. Overlapping invocations are coalesced; a second Tick while one
// is running returns immediately.
func (sched *Scheduler) Tick(ctx context.Context) {
	sched.mu.Lock()
	if sched.ticking {
		sched.mu.Unlock()
		log.Emit(logger.WARNING, "Delivery tick still in progress, skipping overlapping tick\n")
		return
	}
	sched.ticking = true
	perTick := sched.perTick
	sched.mu.Unlock()

	defer func() {
		sched.mu.Lock()
		sched.ticking = false
		sched.mu.Unlock()
	}()

	for i := 0; i < perTick; i++ {
		item := sched.store.PeekFront()
		if item == nil {
			return
		}

		if !sched.deliverItem(ctx, item) {
			log.Emit(logger.WARNING, "No destination accepted item %s this pass, stopping batch early\n", item.ID)
			return
		}
	}
}

// deliverItem attempts every outstanding destination for the front
// item sequentially, marking each success in the store. Returns true
// if at least one destination accepted the item.
func (sched *Scheduler) deliverItem(ctx context.Context, item *queue.Item) bool {
	anySuccess := false
	for _, dest := range sched.store.Destinations() {
		if item.Delivered[dest] {
			continue
		}

		if err := sched.posts[dest](ctx, *item); err != nil {
			log.Emit(logger.ERROR, "Delivery of item %s to '%s' failed: %v\n", item.ID, dest, err)
			continue
		}

		anySuccess = true
		if err := sched.store.MarkDelivered(0, dest); err != nil {
			log.Emit(logger.ERROR, "Failed to record delivery of item %s to '%s': %v\n", item.ID, dest, err)
		}
	}

	return anySuccess
}
