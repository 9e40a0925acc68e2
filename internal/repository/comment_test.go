package repository

import (
	"context"
	"testing"

	"billboard/internal/models"
	"billboard/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommentRepository_CountFollowsActiveComments(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewCommentRepository(db)
	ctx := context.Background()

	owner := testutil.CreateUser(t, db, "owner")
	guest := testutil.CreateUser(t, db, "guest")
	l := testutil.CreateListing(t, db, owner.ID, "Loft")

	first := &models.Comment{ListingID: l.ID, UserID: guest.ID, Content: "Is it still free?"}
	second := &models.Comment{ListingID: l.ID, UserID: owner.ID, Content: "Yes"}
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))
	assert.Equal(t, 2, testutil.ReloadListing(t, db, l.ID).CommentCount)

	flipped, err := repo.Deactivate(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, flipped)

	flipped, err = repo.Deactivate(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, flipped, "second delete is a no-op")

	assert.Equal(t, 1, testutil.ReloadListing(t, db, l.ID).CommentCount)
	active, err := repo.CountActive(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), active)

	comments, err := repo.ListActive(ctx, l.ID, models.Page{Limit: 10})
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "Yes", comments[0].Content)
	require.NotNil(t, comments[0].User)
	assert.Equal(t, "owner", comments[0].User.Username)
}

func TestCommentRepository_DeactivateMissing(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewCommentRepository(db)

	_, err := repo.Deactivate(context.Background(), 77)
	assert.True(t, IsNotFound(err))
}
