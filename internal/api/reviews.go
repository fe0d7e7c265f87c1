package api

import (
	"net/http"

	"marketplace-service/internal/models"
	"marketplace-service/internal/service"

	"github.com/gin-gonic/gin"
)

type replyRequest struct {
	Reply string `json:"message_reply"`
}

func (h *Handler) addReview(c *gin.Context) {
	var req service.AddReviewRequest
	if err := bindJSON(c, &req, "api.addReview", nil); err != nil {
		h.renderError(c, err)
		return
	}

	review, err := h.reviews.AddReview(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, review)
}

// listReviews filters by ?status=, approved when omitted
func (h *Handler) listReviews(c *gin.Context) {
	var q models.ListQuery
	if err := bindQuery(c, &q, "api.listReviews"); err != nil {
		h.renderError(c, err)
		return
	}

	list, err := h.reviews.ListReviews(c.Request.Context(), c.Param("id"), c.Query("status"), q)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) moderateReview(c *gin.Context) {
	var req service.ModerateReviewRequest
	if err := bindJSON(c, &req, "api.moderateReview", nil); err != nil {
		h.renderError(c, err)
		return
	}

	review, err := h.reviews.ModerateReview(c.Request.Context(), c.Param("id"), c.Param("review_id"), &req)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, review)
}

func (h *Handler) replyToReview(c *gin.Context) {
	var req replyRequest
	if err := bindJSON(c, &req, "api.replyToReview", nil); err != nil {
		h.renderError(c, err)
		return
	}

	review, err := h.reviews.ReplyToReview(c.Request.Context(), c.Param("id"), c.Param("review_id"), req.Reply)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, review)
}

func (h *Handler) removeReview(c *gin.Context) {
	if err := h.reviews.RemoveReview(c.Request.Context(), c.Param("id"), c.Param("review_id")); err != nil {
		h.renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
