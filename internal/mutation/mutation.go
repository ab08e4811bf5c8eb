// Package mutation applies user actions to the provider mailbox and then
// mirrors them into the local cache.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/Hexploration-Inc/orai/internal/blob"
	"github.com/Hexploration-Inc/orai/internal/compose"
	"github.com/Hexploration-Inc/orai/internal/gmail"
	"github.com/Hexploration-Inc/orai/internal/metrics"
	"github.com/Hexploration-Inc/orai/internal/types"
)

// actionInvalid is the metric label for rejected actions.
const actionInvalid = "invalid"

// Store is the slice of the metadata store mutations need.
type Store interface {
	GetMessage(ctx context.Context, ownerID, id string) (*types.Message, error)
	SetArchived(ctx context.Context, ownerID, id string, labels []string) error
	SetSpam(ctx context.Context, ownerID, id string, labels []string) error
	DeleteMessage(ctx context.Context, ownerID, id string) error
}

// Propagator applies actions remote-first. The cache is only touched after
// the provider accepted the change.
type Propagator struct {
	store   Store
	blobs   blob.Store
	opener  gmail.Opener
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates a Propagator. blobs may be nil, in which case trashed bodies
// are left in place.
func New(store Store, blobs blob.Store, opener gmail.Opener, logger *slog.Logger, m *metrics.Metrics) *Propagator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Propagator{
		store:   store,
		blobs:   blobs,
		opener:  opener,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Apply runs action against the message with local id messageID. It
// returns the updated record, or nil for trash.
func (p *Propagator) Apply(ctx context.Context, scope types.RequestScope, messageID string, action types.Action) (*types.Message, error) {
	if _, err := types.ParseAction(string(action)); err != nil {
		p.metrics.Mutation(actionInvalid, err)
		return nil, err
	}
	msg, err := p.apply(ctx, scope, messageID, action)
	p.metrics.Mutation(string(action), err)
	return msg, err
}

func (p *Propagator) apply(ctx context.Context, scope types.RequestScope, messageID string, action types.Action) (*types.Message, error) {
	msg, err := p.store.GetMessage(ctx, scope.OwnerID, messageID)
	if err != nil {
		return nil, err
	}

	mb, err := p.opener.Open(ctx, scope.Credentials)
	if err != nil {
		return nil, err
	}

	log := p.logger.With("owner", scope.OwnerID, "message_id", msg.ID, "action", string(action))

	switch action {
	case types.ActionArchive:
		if err := mb.ApplyLabelDelta(ctx, msg.ProviderMessageID, gmail.LabelDelta{Remove: []string{types.LabelInbox}}); err != nil {
			return nil, err
		}
		labels := without(msg.Labels, types.LabelInbox)
		if err := p.store.SetArchived(ctx, scope.OwnerID, msg.ID, labels); err != nil {
			return nil, p.diverged(log, err)
		}
		msg.IsArchived = true
		msg.Labels = labels

	case types.ActionSpam:
		delta := gmail.LabelDelta{Add: []string{types.LabelSpam}, Remove: []string{types.LabelInbox}}
		if err := mb.ApplyLabelDelta(ctx, msg.ProviderMessageID, delta); err != nil {
			return nil, err
		}
		labels := without(msg.Labels, types.LabelInbox)
		if !msg.HasLabel(types.LabelSpam) {
			labels = append(labels, types.LabelSpam)
		}
		if err := p.store.SetSpam(ctx, scope.OwnerID, msg.ID, labels); err != nil {
			return nil, p.diverged(log, err)
		}
		msg.IsSpam = true
		msg.IsArchived = true
		msg.Labels = labels

	case types.ActionTrash:
		if err := mb.Trash(ctx, msg.ProviderMessageID); err != nil {
			return nil, err
		}
		if err := p.store.DeleteMessage(ctx, scope.OwnerID, msg.ID); err != nil {
			return nil, p.diverged(log, err)
		}
		p.dropBody(ctx, log, msg.BodyRef)
		return nil, nil
	}

	log.Info("mutation applied")
	return msg, nil
}

// diverged reports a cache write that failed after the provider accepted
// the change. The next sync reconciles the cache.
func (p *Propagator) diverged(log *slog.Logger, err error) error {
	log.Error("provider updated but cache write failed, cache is stale until next sync", "error", err)
	if errors.Is(err, types.ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %w", types.ErrStorage, err)
}

func (p *Propagator) dropBody(ctx context.Context, log *slog.Logger, key string) {
	if p.blobs == nil || key == "" {
		return
	}
	if err := p.blobs.Delete(ctx, key); err != nil {
		log.Warn("delete body blob failed", "key", key, "error", err)
	}
}

// Send composes env as the session's user and submits it to the provider.
func (p *Propagator) Send(ctx context.Context, scope types.RequestScope, env compose.Envelope) (string, error) {
	id, err := p.send(ctx, scope, env)
	p.metrics.Mutation("send", err)
	return id, err
}

func (p *Propagator) send(ctx context.Context, scope types.RequestScope, env compose.Envelope) (string, error) {
	raw, err := compose.Build(scope.Email, env, p.now())
	if err != nil {
		return "", err
	}
	mb, err := p.opener.Open(ctx, scope.Credentials)
	if err != nil {
		return "", err
	}
	id, err := mb.Send(ctx, raw)
	if err != nil {
		return "", err
	}
	p.logger.Info("message sent", "owner", scope.OwnerID, "provider_message_id", id, "recipients", len(env.To))
	return id, nil
}

func without(labels []string, drop string) []string {
	return slices.DeleteFunc(slices.Clone(labels), func(l string) bool { return l == drop })
}
