package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	ListingKeyPrefix  = "listing:%d"
	UserKeyPrefix     = "user:%d"
	WSTicketKeyPrefix = "ws_ticket:%s"
	PresenceKeyPrefix = "presence:user:%d"
)

const (
	ListingTTL  = 2 * time.Minute
	UserTTL     = 5 * time.Minute
	WSTicketTTL = 60 * time.Second
	PresenceTTL = 90 * time.Second
)

func ListingKey(listingID uint) string {
	return fmt.Sprintf(ListingKeyPrefix, listingID)
}

func UserKey(userID uint) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

func WSTicketKey(ticket string) string {
	return fmt.Sprintf(WSTicketKeyPrefix, ticket)
}

func PresenceKey(userID uint) string {
	return fmt.Sprintf(PresenceKeyPrefix, userID)
}

// Invalidate deletes key, ignoring errors.
func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

func InvalidateListing(ctx context.Context, listingID uint) {
	Invalidate(ctx, ListingKey(listingID))
}
