package service

import (
	"fmt"
	"testing"
	"time"

	"marketplace-service/internal/apperr"
	"marketplace-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	userA = Author{ID: "64b7f0c2a1b2c3d4e5f6a001", Name: "Ayesha"}
	userB = Author{ID: "64b7f0c2a1b2c3d4e5f6a002", Name: "Babul"}
)

func TestAddReviewRejectsSecondReviewBySameAuthor(t *testing.T) {
	item := &models.Item{ID: models.NewID()}

	first, err := AddReview(item, userA, 4, "great", time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.ReviewPending, first.Status)
	assert.Equal(t, "Ayesha", first.UserName)

	_, err = AddReview(item, userA, 2, "changed my mind", time.Now())
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.True(t, apperr.IsReason(err, apperr.ReasonDuplicateReview))
	assert.Len(t, item.Reviews, 1)
}

func TestAddReviewRatingBounds(t *testing.T) {
	item := &models.Item{ID: models.NewID()}
	for _, rating := range []int{0, 6, -1} {
		_, err := AddReview(item, userA, rating, "x", time.Now())
		assert.True(t, apperr.IsReason(err, apperr.ReasonInvalidRating), "rating %d", rating)
	}
	assert.Empty(t, item.Reviews)
}

func TestAvgRatingExcludesPendingAndFollowsModeration(t *testing.T) {
	item := &models.Item{
		ID: models.NewID(),
		Reviews: []models.Review{
			{ID: "r1", UserID: userA.ID, Rating: 5, Status: models.ReviewApproved},
			{ID: "r2", UserID: userB.ID, Rating: 3, Status: models.ReviewPending},
		},
	}
	item.AvgRating = RecomputeAvgRating(item)
	assert.Equal(t, 5.0, item.AvgRating)

	_, err := ModerateReview(item, "r2", models.ReviewApproved, nil)
	require.NoError(t, err)
	assert.Equal(t, 4.0, item.AvgRating)

	_, err = ModerateReview(item, "r1", models.ReviewRejected, nil)
	require.NoError(t, err)
	assert.Equal(t, 3.0, item.AvgRating)
}

func TestModerateReviewSetsReply(t *testing.T) {
	item := &models.Item{Reviews: []models.Review{{ID: "r1", Rating: 4, Status: models.ReviewPending, Reply: "old"}}}

	review, err := ModerateReview(item, "r1", models.ReviewPending, nil)
	require.NoError(t, err)
	assert.Equal(t, "old", review.Reply)

	reply := "thanks!"
	review, err = ModerateReview(item, "r1", models.ReviewApproved, &reply)
	require.NoError(t, err)
	assert.Equal(t, "thanks!", review.Reply)
	assert.Equal(t, 4.0, item.AvgRating)
}

func TestModerateReviewErrors(t *testing.T) {
	item := &models.Item{Reviews: []models.Review{{ID: "r1", Rating: 4, Status: models.ReviewPending}}}

	_, err := ModerateReview(item, "r1", "maybe", nil)
	assert.True(t, apperr.IsReason(err, apperr.ReasonInvalidStatus))

	_, err = ModerateReview(item, "missing", models.ReviewApproved, nil)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestRemoveReviewRecomputesOnlyForApproved(t *testing.T) {
	item := &models.Item{
		Reviews: []models.Review{
			{ID: "r1", Rating: 5, Status: models.ReviewApproved},
			{ID: "r2", Rating: 1, Status: models.ReviewApproved},
			{ID: "r3", Rating: 2, Status: models.ReviewPending},
		},
	}
	item.AvgRating = RecomputeAvgRating(item)
	assert.Equal(t, 3.0, item.AvgRating)

	removed, err := RemoveReview(item, "r3")
	require.NoError(t, err)
	assert.Equal(t, "r3", removed.ID)
	assert.Equal(t, 3.0, item.AvgRating)

	_, err = RemoveReview(item, "r2")
	require.NoError(t, err)
	assert.Equal(t, 5.0, item.AvgRating)

	_, err = RemoveReview(item, "r1")
	require.NoError(t, err)
	assert.Zero(t, item.AvgRating)
	assert.Empty(t, item.Reviews)

	_, err = RemoveReview(item, "r1")
	assert.True(t, apperr.IsReason(err, apperr.ReasonReviewNotFound))
}

func TestReplyToReviewKeepsStatus(t *testing.T) {
	item := &models.Item{Reviews: []models.Review{{ID: "r1", Rating: 4, Status: models.ReviewRejected}}}

	review, err := ReplyToReview(item, "r1", "we fixed it")
	require.NoError(t, err)
	assert.Equal(t, models.ReviewRejected, review.Status)
	assert.Equal(t, "we fixed it", item.Reviews[0].Reply)
}

func TestAvgRatingStaysWithinBounds(t *testing.T) {
	statuses := []models.ReviewStatus{models.ReviewApproved, models.ReviewPending, models.ReviewRejected}
	for n := 0; n < 40; n++ {
		item := &models.Item{}
		for i := 0; i <= n%7; i++ {
			item.Reviews = append(item.Reviews, models.Review{
				ID:     fmt.Sprintf("r%d", i),
				Rating: 1 + (n*3+i)%5,
				Status: statuses[(n+i)%3],
			})
		}
		avg := RecomputeAvgRating(item)
		assert.GreaterOrEqual(t, avg, 0.0)
		assert.LessOrEqual(t, avg, 5.0)
	}
}

func TestFilterReviews(t *testing.T) {
	reviews := []models.Review{
		{ID: "r1", Status: models.ReviewApproved},
		{ID: "r2", Status: models.ReviewPending},
		{ID: "r3", Status: models.ReviewRejected},
		{ID: "r4", Status: models.ReviewApproved},
	}

	got, err := FilterReviews(reviews, "")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = FilterReviews(reviews, "pending")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "r2", got[0].ID)

	got, err = FilterReviews(reviews, ReviewFilterAll)
	require.NoError(t, err)
	assert.Len(t, got, 4)

	_, err = FilterReviews(reviews, "true")
	assert.True(t, apperr.IsReason(err, apperr.ReasonInvalidStatus))
}
