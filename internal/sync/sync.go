// Package sync mirrors a window of a provider mailbox into the local cache.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/Hexploration-Inc/orai/internal/blob"
	"github.com/Hexploration-Inc/orai/internal/gmail"
	"github.com/Hexploration-Inc/orai/internal/metrics"
	"github.com/Hexploration-Inc/orai/internal/types"
)

// Store is the slice of the metadata store that sync writes through.
type Store interface {
	MessageByProviderID(ctx context.Context, ownerID, providerMessageID string) (*types.Message, error)
	UpsertMessage(ctx context.Context, m *types.Message) (bool, error)
}

// Config bounds one sync run.
type Config struct {
	MaxMessages      int64
	Query            string
	FetchConcurrency int
}

// DefaultConfig is the primary-category window of 100 messages.
var DefaultConfig = Config{MaxMessages: 100, Query: "category:primary", FetchConcurrency: 10}

// Synchronizer pulls recent messages for one owner at a time.
type Synchronizer struct {
	store   Store
	blobs   blob.Store
	opener  gmail.Opener
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates a Synchronizer. Zero fields of cfg take DefaultConfig values.
func New(store Store, blobs blob.Store, opener gmail.Opener, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Synchronizer {
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = DefaultConfig.MaxMessages
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = DefaultConfig.FetchConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		store:   store,
		blobs:   blobs,
		opener:  opener,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// fetched is the outcome of one concurrent body fetch.
type fetched struct {
	id  string
	msg *gmail.Message
	err error
}

// Run syncs one owner's window. A listing failure aborts before any write;
// a per-message fetch or storage failure is logged and skipped.
func (s *Synchronizer) Run(ctx context.Context, ownerID string, creds types.Credentials) (*types.SyncResult, error) {
	result := &types.SyncResult{OwnerID: ownerID}
	log := s.logger.With("owner", ownerID)

	mb, err := s.opener.Open(ctx, creds)
	if err != nil {
		return s.fail(log, result, fmt.Errorf("open mailbox: %w", err))
	}

	ids, err := mb.ListMessageIDs(ctx, gmail.Window{Max: s.cfg.MaxMessages, Query: s.cfg.Query})
	if err != nil {
		return s.fail(log, result, fmt.Errorf("list messages: %w", err))
	}
	result.Listed = len(ids)
	if len(ids) == 0 {
		log.Info("sync complete, nothing listed")
		s.metrics.SyncRun(nil)
		return result, nil
	}

	results := s.fetchAll(ctx, mb, ids)

	// Persist sequentially, in listing order.
	for _, f := range results {
		if f.err != nil {
			log.Warn("fetch message failed, skipping", "message_id", f.id, "error", f.err)
			result.Failed = append(result.Failed, f.id)
			continue
		}
		created, err := s.persist(ctx, ownerID, f.msg)
		if err != nil {
			log.Error("storage failure, message skipped", "message_id", f.id, "error", err)
			result.Skipped++
			continue
		}
		if created {
			result.Stored++
		} else {
			result.Updated++
		}
	}

	s.metrics.SyncRun(nil)
	s.metrics.SyncMessages("stored", result.Stored)
	s.metrics.SyncMessages("updated", result.Updated)
	s.metrics.SyncMessages("skipped", result.Skipped)
	s.metrics.SyncMessages("failed", len(result.Failed))
	log.Info("sync complete",
		"listed", result.Listed, "stored", result.Stored, "updated", result.Updated,
		"skipped", result.Skipped, "failed", len(result.Failed))
	return result, nil
}

func (s *Synchronizer) fail(log *slog.Logger, result *types.SyncResult, err error) (*types.SyncResult, error) {
	log.Error("sync failed", "error", err)
	result.Error = err.Error()
	s.metrics.SyncRun(err)
	return result, err
}

// fetchAll fetches every id with at most FetchConcurrency calls in flight.
// The returned slice is in the same order as ids.
func (s *Synchronizer) fetchAll(ctx context.Context, mb gmail.Mailbox, ids []string) []fetched {
	out := make([]fetched, len(ids))
	sem := make(chan struct{}, s.cfg.FetchConcurrency)
	var wg gosync.WaitGroup

	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				out[i] = fetched{id: id, err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			msg, err := mb.GetMessage(ctx, id)
			out[i] = fetched{id: id, msg: msg, err: err}
		}(i, id)
	}
	wg.Wait()
	return out
}

// persist writes one message. New records get their body offloaded first;
// existing records only refresh labels and the flags derived from them.
func (s *Synchronizer) persist(ctx context.Context, ownerID string, msg *gmail.Message) (bool, error) {
	rec := newRecord(ownerID, msg, s.now())

	existing, err := s.store.MessageByProviderID(ctx, ownerID, msg.ID)
	switch {
	case err == nil:
		rec.BodyRef = existing.BodyRef
	case errors.Is(err, types.ErrNotFound):
		if body := msg.HTMLBody(); body != "" {
			key := blob.Key(ownerID, msg.ID)
			if err := s.blobs.Put(ctx, key, []byte(body)); err != nil {
				return false, fmt.Errorf("store body: %w", err)
			}
			rec.BodyRef = key
		}
	default:
		return false, err
	}

	return s.store.UpsertMessage(ctx, rec)
}
