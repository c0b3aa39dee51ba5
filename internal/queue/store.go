package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/HenrickTheBull/stagehand/pkg/logger"
)

var log = logger.Get("QueueStore")

var ErrIndexOutOfRange = errors.New("queue index out of range")

const autoSaveInterval = time.Minute * 5

type Config struct {
	FilePath string `yaml:"file_path" env:"QUEUE_FILE_PATH"`
}

// Store owns the ordered list of pending post items and its on-disk
// mirror. All mutation goes through store methods behind one mutex;
// callers only ever receive copies of items, never references into the
// backing list. Every mutation persists immediately (write-through) —
// correctness of "what has been posted where" is prioritized over
// write batching.
type Store struct {
	mu           sync.Mutex
	path         string
	destinations []string
	items        []*Item
}

// NewStore loads (or initializes) the persisted queue at the given
// path. Recovery is three-tier: the primary file, then the backup
// sibling (rewriting the primary on success), then a fresh empty queue
// which is persisted immediately.
func NewStore(config Config, destinations []string) (*Store, error) {
	if config.FilePath == "" {
		return nil, fmt.Errorf("queue store requires a file path")
	}
	if len(destinations) == 0 {
		return nil, fmt.Errorf("queue store requires at least one configured destination")
	}

	if err := os.MkdirAll(filepath.Dir(config.FilePath), os.ModeDir|os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create queue directory: %w", err)
	}

	store := &Store{
		path:         config.FilePath,
		destinations: append([]string(nil), destinations...),
	}

	store.load()
	return store, nil
}

func (store *Store) load() {
	items, err := readQueueFile(store.path)
	if err == nil {
		store.items = items
		store.ensureDeliveryEntries()
		return
	}

	if !errors.Is(err, os.ErrNotExist) {
		log.Emit(logger.ERROR, "Primary queue file is unreadable (%v), attempting backup recovery\n", err)
	}

	backupItems, backupErr := readQueueFile(backupPathFor(store.path))
	if backupErr == nil {
		log.Emit(logger.SUCCESS, "Recovered %d queue items from backup file\n", len(backupItems))
		store.items = backupItems
		store.ensureDeliveryEntries()

		// Rewrite the primary from the recovered state straight away so
		// the next load doesn't depend on the backup again.
		if err := writeQueueFile(store.path, store.items); err != nil {
			log.Emit(logger.ERROR, "Failed to rewrite primary queue file after backup recovery: %v\n", err)
		}
		return
	}

	if !errors.Is(err, os.ErrNotExist) || !errors.Is(backupErr, os.ErrNotExist) {
		log.Emit(logger.ERROR, "Both queue files unusable (primary: %v; backup: %v). Resetting to an empty queue — pending items are LOST\n", err, backupErr)
	}

	store.items = make([]*Item, 0)
	if err := store.persist(); err != nil {
		log.Emit(logger.ERROR, "Failed to persist freshly initialized queue: %v\n", err)
	}
}

// ensureDeliveryEntries seeds a false delivery flag for any configured
// destination missing from a loaded item, so destinations added
// between restarts still receive older items.
func (store *Store) ensureDeliveryEntries() {
	for _, item := range store.items {
		if item.Delivered == nil {
			item.Delivered = make(map[string]bool, len(store.destinations))
		}
		for _, dest := range store.destinations {
			if _, ok := item.Delivered[dest]; !ok {
				item.Delivered[dest] = false
			}
		}
	}
}

// persist writes the backup in full, then replaces the primary
// atomically. Caller must hold the mutex.
func (store *Store) persist() error {
	if err := writeBackupFile(store.path, store.items); err != nil {
		return fmt.Errorf("failed to write queue backup: %w", err)
	}

	if err := writeQueueFile(store.path, store.items); err != nil {
		return fmt.Errorf("failed to write queue file: %w", err)
	}

	return nil
}

// saveLocked persists and reports (but swallows into a log + return)
// any failure; the in-memory state remains authoritative until the
// next successful save.
func (store *Store) saveLocked() error {
	if err := store.persist(); err != nil {
		log.Emit(logger.ERROR, "Queue save failed: %v\n", err)
		return err
	}

	return nil
}

// Save forces a persistence pass outside of the write-through path.
func (store *Store) Save() error {
	store.mu.Lock()
	defer store.mu.Unlock()

	return store.saveLocked()
}

// Destinations returns the configured destination names in
// configuration order.
func (store *Store) Destinations() []string {
	return append([]string(nil), store.destinations...)
}

// Enqueue appends a new item carrying the given payload, generating
// its id, timestamp and per-destination delivery flags, and persists
// immediately. The stored item is returned as a copy.
func (store *Store) Enqueue(payload PostPayload) (*Item, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	createdAt := time.Now()
	item := &Item{
		PostPayload: payload,
		ID:          newItemID(createdAt),
		CreatedAt:   createdAt,
		Delivered:   make(map[string]bool, len(store.destinations)),
	}
	for _, dest := range store.destinations {
		item.Delivered[dest] = false
	}

	store.items = append(store.items, item)
	log.Emit(logger.NEW, "Enqueued item %s ('%s' from %s), queue length now %d\n", item.ID, item.Title, item.SiteName, len(store.items))

	if err := store.saveLocked(); err != nil {
		return item.clone(), err
	}

	return item.clone(), nil
}

// Len returns the number of pending items.
func (store *Store) Len() int {
	store.mu.Lock()
	defer store.mu.Unlock()

	return len(store.items)
}

// Items returns a snapshot copy of the queue in order.
func (store *Store) Items() []*Item {
	store.mu.Lock()
	defer store.mu.Unlock()

	snapshot := make([]*Item, 0, len(store.items))
	for _, item := range store.items {
		snapshot = append(snapshot, item.clone())
	}

	return snapshot
}

// PeekFront returns a copy of the next item without mutating the
// queue, or nil when the queue is empty.
func (store *Store) PeekFront() *Item {
	store.mu.Lock()
	defer store.mu.Unlock()

	if len(store.items) == 0 {
		return nil
	}

	return store.items[0].clone()
}

// MarkDelivered records a successful delivery of the item at index to
// the named destination. Once every configured destination has
// confirmed, the item is removed from the queue entirely. Persists
// after every call.
func (store *Store) MarkDelivered(index int, destination string) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	if index < 0 || index >= len(store.items) {
		return ErrIndexOutOfRange
	}

	item := store.items[index]
	item.Delivered[destination] = true

	if item.DeliveredToAll(store.destinations) {
		store.items = append(store.items[:index], store.items[index+1:]...)
		log.Emit(logger.REMOVE, "Item %s delivered to all destinations, removed from queue (%d remaining)\n", item.ID, len(store.items))
	} else {
		log.Emit(logger.SUCCESS, "Item %s delivered to '%s'\n", item.ID, destination)
	}

	return store.saveLocked()
}

// HasBeenDelivered reports the delivery flag of the item at index for
// the named destination.
func (store *Store) HasBeenDelivered(index int, destination string) (bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	if index < 0 || index >= len(store.items) {
		return false, ErrIndexOutOfRange
	}

	return store.items[index].Delivered[destination], nil
}

// RemoveAt removes the item at index unconditionally, regardless of
// its delivery status (manual override), and persists. A copy of the
// removed item is returned.
func (store *Store) RemoveAt(index int) (*Item, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	if index < 0 || index >= len(store.items) {
		return nil, ErrIndexOutOfRange
	}

	item := store.items[index]
	store.items = append(store.items[:index], store.items[index+1:]...)
	log.Emit(logger.REMOVE, "Item %s manually removed from queue (%d remaining)\n", item.ID, len(store.items))

	if err := store.saveLocked(); err != nil {
		return item.clone(), err
	}

	return item.clone(), nil
}

// MoveToFront reorders the item at index to the front of the queue
// without touching its delivery status, then persists.
func (store *Store) MoveToFront(index int) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	if index < 0 || index >= len(store.items) {
		return ErrIndexOutOfRange
	}
	if index == 0 {
		return nil
	}

	item := store.items[index]
	store.items = append(store.items[:index], store.items[index+1:]...)
	store.items = append([]*Item{item}, store.items...)

	return store.saveLocked()
}

// RunAutoSave periodically forces a save until the context is
// cancelled. Write-through persistence already covers the store's own
// methods; this timer is defense-in-depth for any future code path
// that mutates state without persisting.
func (store *Store) RunAutoSave(ctx context.Context) error {
	ticker := time.NewTicker(autoSaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := store.Save(); err != nil {
				log.Emit(logger.WARNING, "Periodic queue save failed: %v\n", err)
			}
		case <-ctx.Done():
			log.Emit(logger.STOP, "Auto-save loop shutting down (context cancelled)\n")
			return nil
		}
	}
}
