package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/princeprakhar/movie-watchlist/internal/api/middleware"
	"github.com/princeprakhar/movie-watchlist/internal/services"
	"github.com/princeprakhar/movie-watchlist/internal/utils"
)

type ReviewHandler struct {
	reviewService *services.ReviewService
}

func NewReviewHandler(reviewService *services.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviewService: reviewService}
}

func (h *ReviewHandler) Create(c *gin.Context) {
	titleID, ok := parseID(c, "id", "Movie")
	if !ok {
		return
	}
	var req services.CreateReviewRequest
	if !bindJSON(c, &req) {
		return
	}

	review, err := h.reviewService.SubmitReview(c.Request.Context(), middleware.CurrentIdentity(c), titleID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SendCreated(c, review)
}

func (h *ReviewHandler) List(c *gin.Context) {
	titleID, ok := parseID(c, "id", "Movie")
	if !ok {
		return
	}

	page := services.Page{Limit: queryInt(c, "limit"), Offset: queryInt(c, "start")}.Normalize(0, 0)

	reviews, err := h.reviewService.ListReviews(c.Request.Context(), titleID, page)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SendSuccess(c, reviews)
}

func (h *ReviewHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id", "Review")
	if !ok {
		return
	}

	review, err := h.reviewService.GetReview(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SendSuccess(c, review)
}

// Update replaces a review (PUT) or changes the given fields (PATCH).
func (h *ReviewHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id", "Review")
	if !ok {
		return
	}
	var req services.UpdateReviewRequest
	if !bindJSON(c, &req) {
		return
	}

	partial := c.Request.Method == "PATCH"
	review, err := h.reviewService.UpdateReview(c.Request.Context(), middleware.CurrentIdentity(c), id, req, partial)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SendSuccess(c, review)
}

func (h *ReviewHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id", "Review")
	if !ok {
		return
	}

	if err := h.reviewService.DeleteReview(c.Request.Context(), middleware.CurrentIdentity(c), id); err != nil {
		respondError(c, err)
		return
	}
	utils.SendNoContent(c)
}
