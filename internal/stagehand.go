package internal

import (
	"context"
	"fmt"

	"github.com/HenrickTheBull/stagehand/internal/cache"
	"github.com/HenrickTheBull/stagehand/internal/delivery"
	"github.com/HenrickTheBull/stagehand/internal/media"
	"github.com/HenrickTheBull/stagehand/internal/queue"
	"github.com/HenrickTheBull/stagehand/internal/scheduler"
	"github.com/HenrickTheBull/stagehand/internal/transcode"
	"github.com/HenrickTheBull/stagehand/pkg/logger"
	"golang.org/x/sync/errgroup"
)

var log = logger.Get("Core")

// RunnableService is a long-lived subsystem which blocks inside Run
// until the provided context is cancelled.
type RunnableService interface {
	Run(context.Context) error
}

// Stagehand is the top-level object. It wires the cache store, media
// processor, queue store and scheduler together and supervises their
// background loops. Construct with New and drive with Run; there is no
// package-level shared state.
type Stagehand struct {
	config StagehandConfig

	cacheStore *cache.Store
	processor  *media.Processor
	queueStore *queue.Store
	scheduler  *scheduler.Scheduler
}

func New(config StagehandConfig) (*Stagehand, error) {
	log.Emit(logger.DEBUG, "Bootstrapping stagehand services using config: %#v\n", config)

	cacheStore, err := cache.NewStore(config.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to construct cache store: %w", err)
	}

	transcoder := transcode.New(config.Transcoder, cacheStore)
	fetcher := media.NewFetcher(config.Fetch, cacheStore)
	processor := media.NewProcessor(fetcher, transcoder, cacheStore)

	queueStore, err := queue.NewStore(config.Queue, config.DestinationNames())
	if err != nil {
		return nil, fmt.Errorf("failed to construct queue store: %w", err)
	}

	posts := make(map[string]scheduler.PostFunc, len(config.Destinations))
	for _, destConfig := range config.Destinations {
		hook := delivery.NewWebhook(destConfig)
		posts[hook.Name()] = hook.Post
	}

	sched, err := scheduler.New(config.Scheduler, queueStore, posts)
	if err != nil {
		return nil, fmt.Errorf("failed to construct scheduler: %w", err)
	}

	return &Stagehand{
		config:     config,
		cacheStore: cacheStore,
		processor:  processor,
		queueStore: queueStore,
		scheduler:  sched,
	}, nil
}

// Processor exposes the media processing façade to the (external)
// scraper layer.
func (stagehand *Stagehand) Processor() *media.Processor {
	return stagehand.processor
}

// Queue exposes the durable queue store to the (external) command
// layer.
func (stagehand *Stagehand) Queue() *queue.Store {
	return stagehand.queueStore
}

// Scheduler exposes the delivery scheduler for runtime reconfiguration
// (cron schedule, batch size) by the command layer.
func (stagehand *Stagehand) Scheduler() *scheduler.Scheduler {
	return stagehand.scheduler
}

// Run starts the background loops (cache eviction, queue auto-save)
// and the delivery scheduler, blocking until the context is cancelled.
func (stagehand *Stagehand) Run(ctx context.Context) error {
	if err := stagehand.scheduler.Start(); err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return stagehand.cacheStore.RunEvictionLoop(groupCtx) })
	group.Go(func() error { return stagehand.queueStore.RunAutoSave(groupCtx) })

	log.Emit(logger.INFO, "Stagehand running: %d destination(s), queue length %d\n",
		len(stagehand.config.Destinations), stagehand.queueStore.Len())

	<-ctx.Done()
	log.Emit(logger.STOP, "Shutting down (context cancelled)\n")
	stagehand.scheduler.Stop()

	if err := group.Wait(); err != nil {
		return err
	}

	// Final save so the on-disk mirror reflects the latest state.
	return stagehand.queueStore.Save()
}
