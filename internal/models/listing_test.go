package models

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyStatus_KeepsFlagsInStep(t *testing.T) {
	tests := []struct {
		status    ListingStatus
		active    bool
		published bool
	}{
		{StatusDraft, false, false},
		{StatusActive, true, true},
		{StatusInactive, false, true},
		{StatusRented, false, true},
		{StatusExpired, false, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			var l Listing
			l.ApplyStatus(tt.status)
			assert.Equal(t, tt.status, l.Status)
			assert.Equal(t, tt.active, l.IsActive)
			assert.Equal(t, tt.published, l.IsPublished)

			cols := StatusColumns(tt.status)
			assert.Equal(t, tt.status, cols["status"])
			assert.Equal(t, tt.active, cols["is_active"])
			assert.Equal(t, tt.published, cols["is_published"])
		})
	}
}

func TestListing_AcceptsApplications(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	l := &Listing{}
	l.ApplyStatus(StatusActive)
	assert.True(t, l.AcceptsApplications(now))

	l.Deadline = &future
	assert.True(t, l.AcceptsApplications(now))

	l.Deadline = &now
	assert.True(t, l.AcceptsApplications(now), "deadline itself is still open")

	l.Deadline = &past
	assert.False(t, l.AcceptsApplications(now))

	l.Deadline = nil
	l.ApplyStatus(StatusDraft)
	assert.False(t, l.AcceptsApplications(now))
}

func TestInvitation_ExpiredAt(t *testing.T) {
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	inv := &Invitation{Status: InvitationPending, ExpiresAt: created.Add(InvitationTTL)}

	assert.False(t, inv.ExpiredAt(created.Add(6*24*time.Hour)))
	assert.True(t, inv.ExpiredAt(created.Add(InvitationTTL)))

	inv.Status = InvitationAccepted
	assert.False(t, inv.ExpiredAt(created.Add(30*24*time.Hour)))
}

func TestStringList_ValueAndScan(t *testing.T) {
	v, err := StringList{"#a", "b"}.Value()
	require.NoError(t, err)
	assert.Equal(t, `["#a","b"]`, v)

	v, err = StringList(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)

	var s StringList
	require.NoError(t, s.Scan([]byte(`["x","y"]`)))
	assert.Equal(t, StringList{"x", "y"}, s)

	require.NoError(t, s.Scan(nil))
	assert.Empty(t, s)

	assert.Error(t, s.Scan(42))
}

func TestRespondWithError_HidesConflictCause(t *testing.T) {
	app := fiber.New()
	app.Get("/dup", func(c *fiber.Ctx) error {
		return RespondWithError(c, fiber.StatusBadRequest,
			NewDuplicateError("Application already exists", ErrConflict))
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/dup", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	dup := NewDuplicateError("Application already exists", ErrConflict)
	assert.True(t, errors.Is(dup, ErrConflict))
	assert.Equal(t, CodeBadRequest, ErrorCode(dup))
	assert.Equal(t, "", ErrorCode(errors.New("plain")))
}
