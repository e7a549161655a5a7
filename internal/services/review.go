package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/princeprakhar/movie-watchlist/internal/authz"
	"github.com/princeprakhar/movie-watchlist/internal/metrics"
	"github.com/princeprakhar/movie-watchlist/internal/models"
	"github.com/princeprakhar/movie-watchlist/internal/types"
	"github.com/princeprakhar/movie-watchlist/internal/utils"
)

const maxDescriptionLength = 2000

type ReviewService struct {
	db    *gorm.DB
	authz *authz.Enforcer
}

func NewReviewService(db *gorm.DB, enforcer *authz.Enforcer) *ReviewService {
	return &ReviewService{db: db, authz: enforcer}
}

type CreateReviewRequest struct {
	Rating      *int    `json:"rating"`
	Description *string `json:"description"`
}

// UpdateReviewRequest is used for both PUT and PATCH. Nil fields are left
// untouched on PATCH.
type UpdateReviewRequest struct {
	Rating      *int    `json:"rating"`
	Description *string `json:"description"`
	Active      *bool   `json:"active"`
}

type ReviewResponse struct {
	ID          uint      `json:"id"`
	Reviewer    string    `json:"reviewer"`
	TitleID     uint      `json:"watchlist"`
	Rating      int       `json:"rating"`
	Description *string   `json:"description"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created"`
	UpdatedAt   time.Time `json:"update"`
}

func newReviewResponse(r *models.Review) ReviewResponse {
	return ReviewResponse{
		ID:          r.ID,
		Reviewer:    r.Reviewer.Username,
		TitleID:     r.TitleID,
		Rating:      r.Rating,
		Description: r.Description,
		Active:      r.Active,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// checkReview validates the fields present in a review payload.
func checkReview(rating *int, ratingRequired bool, description *string) error {
	verr := &ValidationError{}
	switch {
	case rating == nil && ratingRequired:
		verr.Add("rating", "This field is required.")
	case rating != nil && !utils.IsValidRating(*rating):
		verr.Add("rating", "Ensure this value is between 1 and 5.")
	}
	if description != nil && len([]rune(utils.SanitizeString(*description))) > maxDescriptionLength {
		verr.Add("description", fmt.Sprintf("Ensure this field has no more than %d characters.", maxDescriptionLength))
	}
	return verr.OrNil()
}

func cleanDescription(desc *string) *string {
	if desc == nil {
		return nil
	}
	clean := utils.SanitizeString(*desc)
	return &clean
}

// SubmitReview records caller's review of a title and folds the rating into
// the title aggregate. The title row stays locked from the duplicate check
// until the review is written.
func (s *ReviewService) SubmitReview(ctx context.Context, caller *types.Identity, titleID uint, req CreateReviewRequest) (*ReviewResponse, error) {
	if caller == nil {
		metrics.ReviewsRejected.WithLabelValues("unauthorized").Inc()
		return nil, ErrUnauthorized
	}
	if err := checkReview(req.Rating, true, req.Description); err != nil {
		metrics.ReviewsRejected.WithLabelValues("invalid").Inc()
		return nil, err
	}

	review := models.Review{
		ReviewerID:  caller.UserID,
		TitleID:     titleID,
		Rating:      *req.Rating,
		Description: cleanDescription(req.Description),
		Active:      true,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var title models.Title
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&title, titleID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("Movie")
		}
		if err != nil {
			return fmt.Errorf("failed to lock title: %w", err)
		}

		var existing int64
		if err := tx.Model(&models.Review{}).
			Where("title_id = ? AND reviewer_id = ?", titleID, caller.UserID).
			Count(&existing).Error; err != nil {
			return fmt.Errorf("failed to check existing review: %w", err)
		}
		if existing > 0 {
			return ErrAlreadyReviewed
		}

		title.RecordRating(review.Rating)
		if err := tx.Model(&title).Updates(map[string]interface{}{
			"average_rating":    title.AverageRating,
			"number_of_ratings": title.NumberOfRatings,
		}).Error; err != nil {
			return fmt.Errorf("failed to update title rating: %w", err)
		}

		if err := tx.Create(&review).Error; err != nil {
			return fmt.Errorf("failed to create review: %w", err)
		}
		return nil
	})
	if err != nil {
		var nf *NotFoundError
		switch {
		case errors.As(err, &nf):
			metrics.ReviewsRejected.WithLabelValues("not_found").Inc()
		case errors.Is(err, ErrAlreadyReviewed):
			metrics.ReviewsRejected.WithLabelValues("duplicate").Inc()
		}
		return nil, err
	}

	metrics.ReviewsSubmitted.Inc()
	review.Reviewer = models.User{ID: caller.UserID, Username: caller.Username}
	resp := newReviewResponse(&review)
	return &resp, nil
}

// ListReviews returns a title's reviews in insertion order. An unknown title
// yields an empty list.
func (s *ReviewService) ListReviews(ctx context.Context, titleID uint, page Page) ([]ReviewResponse, error) {
	var reviews []models.Review
	query := s.db.WithContext(ctx).
		Preload("Reviewer").
		Where("title_id = ?", titleID).
		Order("id ASC")
	if err := page.apply(query).Find(&reviews).Error; err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}

	out := make([]ReviewResponse, 0, len(reviews))
	for i := range reviews {
		out = append(out, newReviewResponse(&reviews[i]))
	}
	return out, nil
}

func (s *ReviewService) GetReview(ctx context.Context, id uint) (*ReviewResponse, error) {
	review, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := newReviewResponse(review)
	return &resp, nil
}

func (s *ReviewService) find(ctx context.Context, id uint) (*models.Review, error) {
	var review models.Review
	err := s.db.WithContext(ctx).Preload("Reviewer").First(&review, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("Review")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load review: %w", err)
	}
	return &review, nil
}

// authorize allows the reviewer and anyone who may moderate reviews.
func (s *ReviewService) authorize(caller *types.Identity, review *models.Review) error {
	if caller == nil {
		return ErrUnauthorized
	}
	if caller.UserID == review.ReviewerID {
		return nil
	}
	if s.authz.Allowed(types.RoleName(caller), authz.ObjectReview, authz.ActionModerate) {
		return nil
	}
	return ErrForbidden
}

// UpdateReview changes a review in place. A full update (partial unset)
// requires rating. The title aggregate is not recomputed.
func (s *ReviewService) UpdateReview(ctx context.Context, caller *types.Identity, id uint, req UpdateReviewRequest, partial bool) (*ReviewResponse, error) {
	review, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(caller, review); err != nil {
		return nil, err
	}

	if err := checkReview(req.Rating, !partial, req.Description); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Rating != nil {
		updates["rating"] = *req.Rating
	}
	if req.Description != nil {
		updates["description"] = *cleanDescription(req.Description)
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(review).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update review: %w", err)
		}
	}

	return s.GetReview(ctx, id)
}

// DeleteReview removes a review. The title aggregate is not recomputed.
func (s *ReviewService) DeleteReview(ctx context.Context, caller *types.Identity, id uint) error {
	review, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorize(caller, review); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(&models.Review{}, review.ID).Error; err != nil {
		return fmt.Errorf("failed to delete review: %w", err)
	}
	return nil
}
