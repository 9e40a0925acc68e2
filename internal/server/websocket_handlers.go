package server

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"billboard/internal/cache"
	"billboard/internal/middleware"
	"billboard/internal/models"
	"billboard/internal/notifications"
	"billboard/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// Client control messages on /api/ws.
const (
	msgJoinListing  = "join_listing"
	msgLeaveListing = "leave_listing"
)

type wsInbound struct {
	Type      string `json:"type"`
	ListingID uint   `json:"listing_id"`
}

type wsReply struct {
	Type      string `json:"type"`
	ListingID uint   `json:"listing_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// IssueWSTicket handles POST /api/ws/ticket. The ticket authenticates one
// websocket handshake and expires after cache.WSTicketTTL.
// @Summary Issue a websocket ticket
// @Tags realtime
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{ticket=string,expires_in=int}
// @Failure 503 {object} models.ErrorResponse
// @Router /ws/ticket [post]
func (s *Server) IssueWSTicket(c *fiber.Ctx) error {
	if s.redis == nil {
		return respondError(c, models.NewUpstreamError("Realtime tickets", nil))
	}

	ticket := uuid.NewString()
	userID := currentUserID(c)
	if err := s.redis.Set(c.Context(), cache.WSTicketKey(ticket),
		strconv.FormatUint(uint64(userID), 10), cache.WSTicketTTL).Err(); err != nil {
		return respondError(c, models.NewUpstreamError("Realtime tickets", err))
	}

	return c.JSON(fiber.Map{
		"ticket":     ticket,
		"expires_in": int(cache.WSTicketTTL.Seconds()),
	})
}

// WebsocketHandler serves /api/ws. Authenticated connections receive their
// user's notifications; every connection, anonymous ones included, can join
// listing rooms for comment and like events.
func (s *Server) WebsocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		uid, _ := conn.Locals("userID").(uint)

		client, err := s.hub.Register(uid, conn)
		if err != nil {
			middleware.Logger.Warn("websocket registration failed", "user_id", uid, "error", err)
			_ = conn.WriteJSON(wsReply{Type: "error", Error: err.Error()})
			_ = conn.Close()
			return
		}

		client.IncomingHandler = func(cl *notifications.Client, message []byte) {
			s.handleWSMessage(cl, message)
		}

		go client.WritePump()
		client.ReadPump()
	})
}

func (s *Server) handleWSMessage(client *notifications.Client, message []byte) {
	var in wsInbound
	if err := json.Unmarshal(message, &in); err != nil {
		s.replyWS(client, wsReply{Type: "error", Error: "invalid message"})
		return
	}

	switch in.Type {
	case msgJoinListing:
		if in.ListingID == 0 {
			s.replyWS(client, wsReply{Type: "error", Error: "listing_id is required"})
			return
		}
		// Rooms follow listing visibility: drafts are joinable by their owner only.
		_, err := s.listingService.GetListing(middleware.WithUserID(context.Background(), client.UserID),
			service.GetListingInput{ListingID: in.ListingID, ViewerID: client.UserID})
		if err != nil {
			s.replyWS(client, wsReply{Type: "error", ListingID: in.ListingID, Error: "listing not found"})
			return
		}
		if err := s.hub.JoinRoom(client, in.ListingID); err != nil {
			msg := "unable to join listing"
			if errors.Is(err, notifications.ErrRoomLimit) {
				msg = "too many listing rooms"
			}
			s.replyWS(client, wsReply{Type: "error", ListingID: in.ListingID, Error: msg})
			return
		}
		s.replyWS(client, wsReply{Type: "joined_listing", ListingID: in.ListingID})

	case msgLeaveListing:
		s.hub.LeaveRoom(client, in.ListingID)
		s.replyWS(client, wsReply{Type: "left_listing", ListingID: in.ListingID})

	default:
		s.replyWS(client, wsReply{Type: "error", Error: "unknown message type"})
	}
}

func (s *Server) replyWS(client *notifications.Client, reply wsReply) {
	payload, err := json.Marshal(reply)
	if err != nil {
		return
	}
	client.TrySend(payload)
}
