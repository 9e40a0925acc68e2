package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"billboard/internal/email"
	"billboard/internal/middleware"
	"billboard/internal/observability"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/attribute"
)

// ListingIndexer keeps the vector index in step with listings.
type ListingIndexer interface {
	IndexListing(ctx context.Context, listingID uint) error
	UnindexListing(ctx context.Context, listingID uint)
}

// ListingMaintainer runs the periodic listing sweeps.
type ListingMaintainer interface {
	SweepExpired(ctx context.Context) (int64, error)
	SendDeadlineReminders(ctx context.Context) (int, error)
}

// InvitationMaintainer expires stale invitations.
type InvitationMaintainer interface {
	MarkExpiredInvitations(ctx context.Context) (int64, error)
}

// Deliverer sends a templated email.
type Deliverer interface {
	Deliver(ctx context.Context, to, template string, data map[string]any) error
}

// TaskProcessor handles the processing of tasks. Any dependency may be nil;
// tasks needing a missing one are dropped without retry.
type TaskProcessor struct {
	indexer     ListingIndexer
	listings    ListingMaintainer
	invitations InvitationMaintainer
	mailer      Deliverer
}

func NewTaskProcessor(indexer ListingIndexer, listings ListingMaintainer, invitations InvitationMaintainer, mailer Deliverer) *TaskProcessor {
	return &TaskProcessor{
		indexer:     indexer,
		listings:    listings,
		invitations: invitations,
		mailer:      mailer,
	}
}

var errNotConfigured = errors.New("handler dependency not configured")

func (p *TaskProcessor) HandleListingEmbedTask(ctx context.Context, t *asynq.Task) error {
	payload, err := decodeListingPayload(t)
	if err != nil {
		return err
	}
	if p.indexer == nil {
		return fmt.Errorf("%s: %w: %w", t.Type(), errNotConfigured, asynq.SkipRetry)
	}
	return p.indexer.IndexListing(ctx, payload.ListingID)
}

func (p *TaskProcessor) HandleListingUnindexTask(ctx context.Context, t *asynq.Task) error {
	payload, err := decodeListingPayload(t)
	if err != nil {
		return err
	}
	if p.indexer == nil {
		return fmt.Errorf("%s: %w: %w", t.Type(), errNotConfigured, asynq.SkipRetry)
	}
	p.indexer.UnindexListing(ctx, payload.ListingID)
	return nil
}

func (p *TaskProcessor) HandleExpireListingsTask(ctx context.Context, t *asynq.Task) error {
	if p.listings == nil {
		return fmt.Errorf("%s: %w: %w", t.Type(), errNotConfigured, asynq.SkipRetry)
	}
	_, err := p.listings.SweepExpired(ctx)
	return err
}

func (p *TaskProcessor) HandleDeadlineRemindersTask(ctx context.Context, t *asynq.Task) error {
	if p.listings == nil {
		return fmt.Errorf("%s: %w: %w", t.Type(), errNotConfigured, asynq.SkipRetry)
	}
	_, err := p.listings.SendDeadlineReminders(ctx)
	return err
}

func (p *TaskProcessor) HandleExpireInvitationsTask(ctx context.Context, t *asynq.Task) error {
	if p.invitations == nil {
		return fmt.Errorf("%s: %w: %w", t.Type(), errNotConfigured, asynq.SkipRetry)
	}
	_, err := p.invitations.MarkExpiredInvitations(ctx)
	return err
}

// HandleEmailDeliveryTask renders and sends one templated email. Unknown
// templates are never retried; transport errors are.
func (p *TaskProcessor) HandleEmailDeliveryTask(ctx context.Context, t *asynq.Task) error {
	var payload EmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode email payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.To == "" {
		return fmt.Errorf("email payload without recipient: %w", asynq.SkipRetry)
	}
	if p.mailer == nil {
		return fmt.Errorf("%s: %w: %w", t.Type(), errNotConfigured, asynq.SkipRetry)
	}

	err := p.mailer.Deliver(ctx, payload.To, payload.Template, payload.Data)
	if errors.Is(err, email.ErrUnknownTemplate) {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return err
}

// NewServeMux registers every task handler of p.
func NewServeMux(p *TaskProcessor) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Use(instrument)
	mux.HandleFunc(TypeListingEmbed, p.HandleListingEmbedTask)
	mux.HandleFunc(TypeListingUnindex, p.HandleListingUnindexTask)
	mux.HandleFunc(TypeExpireListings, p.HandleExpireListingsTask)
	mux.HandleFunc(TypeExpireInvitations, p.HandleExpireInvitationsTask)
	mux.HandleFunc(TypeDeadlineReminders, p.HandleDeadlineRemindersTask)
	mux.HandleFunc(TypeEmailDelivery, p.HandleEmailDeliveryTask)
	return mux
}

// instrument wraps each task in a span and counts its outcome.
func instrument(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		ctx, span := observability.StartSpan(ctx, "task "+t.Type(),
			attribute.String("task.type", t.Type()))
		defer span.End()

		err := next.ProcessTask(ctx, t)
		span.SetError(err)
		observability.TasksProcessed.WithLabelValues(t.Type(), outcome(err)).Inc()
		if err != nil {
			middleware.Logger.WarnContext(ctx, "task failed",
				"task_type", t.Type(),
				"outcome", outcome(err),
				"error", err,
			)
		}
		return err
	})
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, asynq.SkipRetry):
		return "dropped"
	default:
		return "failed"
	}
}
