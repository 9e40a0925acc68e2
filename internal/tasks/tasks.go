// Package tasks runs background work: listing indexing, maintenance sweeps
// and email delivery.
package tasks

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
)

// Task types.
const (
	TypeListingEmbed      = "listing:embed"
	TypeListingUnindex    = "listing:unindex"
	TypeExpireListings    = "maintenance:listings:expire"
	TypeExpireInvitations = "maintenance:invitations:expire"
	TypeDeadlineReminders = "maintenance:deadlines:remind"
	TypeEmailDelivery     = "email:deliver"
)

// Queues and their priorities.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

var queuePriorities = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
	QueueLow:      1,
}

const embedMaxRetry = 3

// ListingPayload identifies the listing a task works on.
type ListingPayload struct {
	ListingID uint `json:"listing_id"`
}

// EmailPayload is a templated message for one recipient.
type EmailPayload struct {
	To       string         `json:"to"`
	Template string         `json:"template"`
	Data     map[string]any `json:"data"`
}

func NewListingEmbedTask(listingID uint) (*asynq.Task, error) {
	payload, err := json.Marshal(ListingPayload{ListingID: listingID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeListingEmbed, payload, asynq.MaxRetry(embedMaxRetry), asynq.Queue(QueueDefault)), nil
}

func NewListingUnindexTask(listingID uint) (*asynq.Task, error) {
	payload, err := json.Marshal(ListingPayload{ListingID: listingID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeListingUnindex, payload, asynq.MaxRetry(embedMaxRetry), asynq.Queue(QueueLow)), nil
}

func NewEmailTask(to, template string, data map[string]any) (*asynq.Task, error) {
	if strings.TrimSpace(to) == "" {
		return nil, fmt.Errorf("email task without recipient")
	}
	payload, err := json.Marshal(EmailPayload{To: to, Template: template, Data: data})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeEmailDelivery, payload, asynq.Queue(QueueCritical)), nil
}

func decodeListingPayload(t *asynq.Task) (ListingPayload, error) {
	var p ListingPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	if p.ListingID == 0 {
		return p, fmt.Errorf("%s payload without listing id: %w", t.Type(), asynq.SkipRetry)
	}
	return p, nil
}
