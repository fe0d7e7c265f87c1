package service

import (
	"fmt"
	"time"

	"marketplace-service/internal/apperr"
	"marketplace-service/internal/models"
)

// ReviewFilterAll lists reviews of every status.
const ReviewFilterAll = "all"

// Author identifies the user writing a review.
type Author struct {
	ID   string
	Name string
}

// AddReview appends a pending review by author and recomputes the item average.
func AddReview(item *models.Item, author Author, rating int, message string, now time.Time) (*models.Review, error) {
	const op = "AddReview"

	if rating < 1 || rating > 5 {
		return nil, apperr.Validation(apperr.ReasonInvalidRating, op, "rating must be between 1 and 5", "rating")
	}
	for _, r := range item.Reviews {
		if r.UserID == author.ID {
			return nil, apperr.Conflict(apperr.ReasonDuplicateReview, op, "user has already reviewed this item")
		}
	}

	item.Reviews = append(item.Reviews, models.Review{
		ID:        models.NewID(),
		ItemID:    item.ID,
		UserID:    author.ID,
		UserName:  author.Name,
		Rating:    rating,
		Message:   message,
		Status:    models.ReviewPending,
		CreatedAt: now,
	})
	item.AvgRating = RecomputeAvgRating(item)

	return &item.Reviews[len(item.Reviews)-1], nil
}

// ModerateReview sets the review's status and, when reply is non-nil, its reply.
func ModerateReview(item *models.Item, reviewID string, status models.ReviewStatus, reply *string) (*models.Review, error) {
	const op = "ModerateReview"

	if !status.Valid() {
		return nil, apperr.Validation(apperr.ReasonInvalidStatus, op,
			fmt.Sprintf("unknown review status %q", status))
	}
	idx := item.FindReview(reviewID)
	if idx < 0 {
		return nil, apperr.NotFound(apperr.ReasonReviewNotFound, op, "review not found")
	}

	review := &item.Reviews[idx]
	wasApproved := review.Status == models.ReviewApproved
	review.Status = status
	if reply != nil {
		review.Reply = *reply
	}

	if wasApproved != (status == models.ReviewApproved) {
		item.AvgRating = RecomputeAvgRating(item)
	}
	return review, nil
}

// ReplyToReview sets the review's reply without touching its status.
func ReplyToReview(item *models.Item, reviewID, reply string) (*models.Review, error) {
	idx := item.FindReview(reviewID)
	if idx < 0 {
		return nil, apperr.NotFound(apperr.ReasonReviewNotFound, "ReplyToReview", "review not found")
	}
	item.Reviews[idx].Reply = reply
	return &item.Reviews[idx], nil
}

// RemoveReview deletes the review and returns it.
func RemoveReview(item *models.Item, reviewID string) (models.Review, error) {
	idx := item.FindReview(reviewID)
	if idx < 0 {
		return models.Review{}, apperr.NotFound(apperr.ReasonReviewNotFound, "RemoveReview", "review not found")
	}

	removed := item.Reviews[idx]
	item.Reviews = append(item.Reviews[:idx], item.Reviews[idx+1:]...)
	if removed.Status == models.ReviewApproved {
		item.AvgRating = RecomputeAvgRating(item)
	}
	return removed, nil
}

// RecomputeAvgRating is the mean rating of approved reviews, or 0 when there are none.
func RecomputeAvgRating(item *models.Item) float64 {
	sum, count := 0, 0
	for _, r := range item.Reviews {
		if r.Status == models.ReviewApproved {
			sum += r.Rating
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return float64(sum) / float64(count)
}

// FilterReviews returns the reviews with the given status. An empty filter
// means approved; ReviewFilterAll returns every review.
func FilterReviews(reviews []models.Review, filter string) ([]models.Review, error) {
	if filter == "" {
		filter = string(models.ReviewApproved)
	}
	if filter == ReviewFilterAll {
		return append([]models.Review(nil), reviews...), nil
	}

	status := models.ReviewStatus(filter)
	if !status.Valid() {
		return nil, apperr.Validation(apperr.ReasonInvalidStatus, "FilterReviews",
			fmt.Sprintf("unknown review status %q", filter))
	}

	out := make([]models.Review, 0, len(reviews))
	for _, r := range reviews {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}
