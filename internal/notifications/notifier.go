// Package notifications provides real-time notification delivery and management.
package notifications

import (
	"context"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"

	"billboard/internal/middleware"

	"github.com/redis/go-redis/v9"
)

const (
	userChannelPrefix    = "notifications:user:"
	listingChannelPrefix = "notifications:listing:"
)

// Notifier provides helpers to publish notifications into Redis channels
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// Enabled reports whether the notifier has a Redis client behind it.
func (n *Notifier) Enabled() bool {
	return n != nil && n.rdb != nil
}

// Publish sends a payload to a channel.
func (n *Notifier) Publish(ctx context.Context, channel string, payload []byte) error {
	if !n.Enabled() {
		return fmt.Errorf("notifier has no redis client")
	}
	return n.rdb.Publish(ctx, channel, payload).Err()
}

// PublishUser sends a notification payload to a user's channel.
func (n *Notifier) PublishUser(ctx context.Context, userID uint, payload []byte) error {
	return n.Publish(ctx, UserChannel(userID), payload)
}

// PublishListing sends a notification payload to a listing room's channel.
func (n *Notifier) PublishListing(ctx context.Context, listingID uint, payload []byte) error {
	return n.Publish(ctx, ListingChannel(listingID), payload)
}

// StartPatternSubscriber subscribes to user and listing channels and calls
// onMessage for each incoming message. It returns once the subscription is
// confirmed so that no message published afterwards is missed.
func (n *Notifier) StartPatternSubscriber(
	ctx context.Context, onMessage func(channel string, payload string),
) error {
	if !n.Enabled() {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, userChannelPrefix+"*", listingChannelPrefix+"*")
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe notifications: %w", err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							middleware.Logger.Error("panic in notification subscriber",
								"panic", r, "stack", string(debug.Stack()))
						}
					}()
					onMessage(msg.Channel, msg.Payload)
				}()
			}
		}
	}()

	return nil
}

// UserChannel derives the Redis channel name for a user.
func UserChannel(userID uint) string {
	return userChannelPrefix + strconv.FormatUint(uint64(userID), 10)
}

// ListingChannel derives the Redis channel name for a listing room.
func ListingChannel(listingID uint) string {
	return listingChannelPrefix + strconv.FormatUint(uint64(listingID), 10)
}

// parseChannel splits a notification channel into its kind and id.
func parseChannel(channel string) (audienceKind, uint, bool) {
	kind := audienceUser
	rest, ok := strings.CutPrefix(channel, userChannelPrefix)
	if !ok {
		kind = audienceRoom
		if rest, ok = strings.CutPrefix(channel, listingChannelPrefix); !ok {
			return audienceNone, 0, false
		}
	}
	id, err := strconv.ParseUint(rest, 10, 64)
	if err != nil || id == 0 {
		return audienceNone, 0, false
	}
	return kind, uint(id), true
}
