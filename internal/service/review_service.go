package service

import (
	"context"
	"fmt"
	"time"

	"marketplace-service/internal/apperr"
	"marketplace-service/internal/models"
	"marketplace-service/internal/util"
	"marketplace-service/internal/validation"

	"go.uber.org/zap"
)

// AddReviewRequest is the payload of a new review. The author comes from the caller's identity.
type AddReviewRequest struct {
	UserID  string `json:"user_id" validate:"required,objectid"`
	Rating  int    `json:"rating"`
	Message string `json:"message" validate:"required"`
}

// ModerateReviewRequest changes a review's status and optionally its reply.
type ModerateReviewRequest struct {
	Status models.ReviewStatus `json:"isApproved"`
	Reply  *string             `json:"message_reply"`
}

// ReviewList is a page of reviews with the item's current average.
type ReviewList struct {
	models.Page[models.Review]
	AvgRating float64 `json:"avg_rating"`
}

// ReviewService serializes review writes per item and persists the aggregate
type ReviewService struct {
	catalog   CatalogStore
	users     IdentityStore
	locker    Locker
	publisher EventPublisher
	validator *validation.Validator
	lockTTL   time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// NewReviewService creates a new review service
func NewReviewService(
	catalog CatalogStore,
	users IdentityStore,
	locker Locker,
	publisher EventPublisher,
	v *validation.Validator,
	lockTTL time.Duration,
) *ReviewService {
	return &ReviewService{
		catalog:   catalog,
		users:     users,
		locker:    locker,
		publisher: publisher,
		validator: v,
		lockTTL:   lockTTL,
		now:       time.Now,
		logger:    util.GetLogger(),
	}
}

// AddReview adds a pending review by req.UserID
func (s *ReviewService) AddReview(ctx context.Context, itemID string, req *AddReviewRequest) (*models.Review, error) {
	const op = "ReviewService.AddReview"
	ctx, span := util.StartSpan(ctx, op)
	defer span.End()

	if !models.IsValidID(req.UserID) {
		return nil, apperr.Validation(apperr.ReasonInvalidID, op, "invalid user id", "user_id")
	}
	if errs := s.validator.Struct(req); len(errs) > 0 {
		return nil, invalidInput(op, "invalid review", errs)
	}
	user, err := s.users.GetUserByID(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, apperr.NotFound(apperr.ReasonUserNotFound, op, "user not found")
	}

	var review models.Review
	err = s.withItem(ctx, op, itemID, func(item *models.Item) error {
		added, err := AddReview(item, Author{ID: user.ID, Name: user.FullName}, req.Rating, req.Message, s.now())
		if err != nil {
			return err
		}
		review = *added
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.changed(ctx, itemID, review.ID, models.ReviewActionAdded)
	return &review, nil
}

// ModerateReview updates a review's status and reply
func (s *ReviewService) ModerateReview(ctx context.Context, itemID, reviewID string, req *ModerateReviewRequest) (*models.Review, error) {
	const op = "ReviewService.ModerateReview"
	ctx, span := util.StartSpan(ctx, op)
	defer span.End()

	var review models.Review
	err := s.withItem(ctx, op, itemID, func(item *models.Item) error {
		moderated, err := ModerateReview(item, reviewID, req.Status, req.Reply)
		if err != nil {
			return err
		}
		review = *moderated
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.changed(ctx, itemID, reviewID, models.ReviewActionModerated)
	return &review, nil
}

// ReplyToReview sets a review's reply
func (s *ReviewService) ReplyToReview(ctx context.Context, itemID, reviewID, reply string) (*models.Review, error) {
	const op = "ReviewService.ReplyToReview"
	ctx, span := util.StartSpan(ctx, op)
	defer span.End()

	var review models.Review
	err := s.withItem(ctx, op, itemID, func(item *models.Item) error {
		replied, err := ReplyToReview(item, reviewID, reply)
		if err != nil {
			return err
		}
		review = *replied
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.changed(ctx, itemID, reviewID, models.ReviewActionReplied)
	return &review, nil
}

// RemoveReview deletes a review
func (s *ReviewService) RemoveReview(ctx context.Context, itemID, reviewID string) error {
	const op = "ReviewService.RemoveReview"
	ctx, span := util.StartSpan(ctx, op)
	defer span.End()

	err := s.withItem(ctx, op, itemID, func(item *models.Item) error {
		_, err := RemoveReview(item, reviewID)
		return err
	})
	if err != nil {
		return err
	}

	s.changed(ctx, itemID, reviewID, models.ReviewActionRemoved)
	return nil
}

// ListReviews returns a page of the item's reviews with the given status
func (s *ReviewService) ListReviews(ctx context.Context, itemID, status string, q models.ListQuery) (*ReviewList, error) {
	const op = "ReviewService.ListReviews"
	ctx, span := util.StartSpan(ctx, op)
	defer span.End()

	item, err := s.loadItem(ctx, op, itemID)
	if err != nil {
		return nil, err
	}

	reviews, err := FilterReviews(item.Reviews, status)
	if err != nil {
		return nil, err
	}
	return &ReviewList{
		Page:      models.Paginate(reviews, q),
		AvgRating: item.AvgRating,
	}, nil
}

// withItem runs fn on the item under the item's review lock and saves the result.
func (s *ReviewService) withItem(ctx context.Context, op, itemID string, fn func(item *models.Item) error) error {
	if !models.IsValidID(itemID) {
		return apperr.Validation(apperr.ReasonInvalidID, op, "invalid item id", "id")
	}

	key := reviewLockKey(itemID)
	token, ok, err := s.locker.AcquireLock(ctx, key, s.lockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire review lock: %w", err)
	}
	if !ok {
		util.ReviewLockContentionTotal.Inc()
		return apperr.Conflict(apperr.ReasonConcurrentEdit, op, "reviews of this item are being updated, retry")
	}
	defer func() {
		if err := s.locker.ReleaseLock(ctx, key, token); err != nil {
			s.logger.Warn("Failed to release review lock", zap.String("item_id", itemID), zap.Error(err))
		}
	}()

	item, err := s.loadItem(ctx, op, itemID)
	if err != nil {
		return err
	}
	if err := fn(item); err != nil {
		return err
	}
	if err := s.catalog.SaveReviews(ctx, item); err != nil {
		return fmt.Errorf("failed to save reviews: %w", err)
	}
	return nil
}

func (s *ReviewService) loadItem(ctx context.Context, op, itemID string) (*models.Item, error) {
	if !models.IsValidID(itemID) {
		return nil, apperr.Validation(apperr.ReasonInvalidID, op, "invalid item id", "id")
	}
	item, err := s.catalog.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	if item == nil {
		return nil, apperr.NotFound(apperr.ReasonItemNotFound, op, "item not found")
	}
	return item, nil
}

func (s *ReviewService) changed(ctx context.Context, itemID, reviewID, action string) {
	util.ReviewsTotal.WithLabelValues(action).Inc()

	item, err := s.catalog.GetItem(ctx, itemID)
	if err != nil || item == nil {
		s.logger.Warn("Failed to reload item after review change", zap.String("item_id", itemID), zap.Error(err))
		return
	}
	s.logger.Info("Review changed",
		zap.String("item_id", itemID),
		zap.String("review_id", reviewID),
		zap.String("action", action),
		zap.Float64("avg_rating", item.AvgRating))

	event := &models.ReviewChangedEvent{
		BaseEvent: newBaseEvent(models.EventTypeReviewChanged),
		ItemID:    itemID,
		ReviewID:  reviewID,
		Action:    action,
		AvgRating: item.AvgRating,
	}
	if err := s.publisher.PublishReviewChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish ReviewChanged event", zap.Error(err))
	}
}

func reviewLockKey(itemID string) string {
	return "lock:item-reviews:" + itemID
}
