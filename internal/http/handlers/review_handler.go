// Review HTTP handlers.
//
// This file exposes the review endpoints:
//   - GET    /reviews/{bookId}                 (list, newest first, ETag support)
//   - GET    /reviews/{bookId}/rating          (rating statistics)
//   - POST   /reviews                          (create)
//   - PUT    /reviews/{reviewId}               (partial update)
//   - DELETE /reviews/{reviewId}               (delete)
//   - GET    /reviews/{bookId}/user/{userId}   (one user's review or null)
//   - GET    /reviews/user/{userId}            (all reviews by a user)
//
// Every write recomputes the book's rating aggregate inside the service.
package handlers

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-library-backend/internal/domain"
	"github.com/tbourn/go-library-backend/internal/services"
)

//
// DTOs
//

// CreateReviewRequest is the JSON payload for creating a review. rating may
// be a JSON number or a numeric string; fractions are truncated.
type CreateReviewRequest struct {
	BookID   string          `json:"bookId"   example:"64b7f0c2a1b2c3d4e5f60718"`
	UserID   string          `json:"userId"   example:"64b7f0c2a1b2c3d4e5f60719"`
	UserName string          `json:"userName" binding:"max=255" example:"Ursula"`
	Rating   json.RawMessage `json:"rating"   swaggertype:"integer" example:"5"`
	Comment  string          `json:"comment"  binding:"max=5000" example:"A quiet masterpiece."`
}

// reviewRating converts a create payload's rating to a whole star count.
// An absent, null or zero rating reads as 0 (reported as missing by the
// service). msg is non-empty when the value cannot be used.
func reviewRating(raw json.RawMessage) (n int, msg string) {
	f, isNum := parseRating(raw)
	if !isNum || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, "Rating must be a number"
	}
	t := math.Trunc(f)
	if f != 0 && (t < services.MinRating || t > services.MaxRating) {
		return 0, "Rating must be between 1 and 5"
	}
	return int(t), ""
}

// UpdateReviewRequest is the JSON payload for a partial review update.
// Omitted fields are left unchanged.
type UpdateReviewRequest struct {
	Rating  *int    `json:"rating,omitempty"  example:"4"`
	Comment *string `json:"comment,omitempty" binding:"omitempty,max=5000" example:"Better on a second read."`
}

// reviewsETag derives a weak validator from the listed reviews. Any create,
// update or delete changes it.
func reviewsETag(bookID string, rs []domain.Review) string {
	h := fnv.New64a()
	for _, r := range rs {
		fmt.Fprintf(h, "%s|%d|%d|%s\n", r.ID, r.Rating, r.CreatedAt.UnixNano(), r.Comment)
	}
	return fmt.Sprintf(`W/"reviews:%s:%d:%x"`, bookID, len(rs), h.Sum64())
}

//
// Handlers
//

// ListReviews godoc
// @ID          listReviews
// @Summary     List reviews of a book
// @Description Returns all reviews of the book, newest first. Supports If-None-Match.
// @Tags        Reviews
// @Produce     json
// @Param       bookId         path    string  true   "Book ID"
// @Param       If-None-Match  header  string  false  "ETag from a previous response"
// @Success     200  {array}   domain.Review
// @Success     304  "Not modified"
// @Failure     500  {object}  handlers.ErrorResponse  "Failed to fetch reviews"
// @Router      /reviews/{bookId} [get]
func (h *Handlers) ListReviews(c *gin.Context) {
	bookID := c.Param("bookId")
	rs, err := h.reviewSvc.ListByBook(c.Request.Context(), bookID)
	if err != nil {
		writeError(c, err, "Failed to fetch reviews")
		return
	}
	etag := reviewsETag(bookID, rs)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return
	}
	ok(c, http.StatusOK, rs)
}

// RatingStats godoc
// @ID          getRatingStats
// @Summary     Rating statistics of a book
// @Description Average (1 decimal), total and 1..5 distribution of the book's reviews.
// @Tags        Reviews
// @Produce     json
// @Param       bookId  path  string  true  "Book ID"
// @Success     200  {object}  domain.RatingStats
// @Failure     500  {object}  handlers.ErrorResponse  "Failed to calculate rating statistics"
// @Router      /reviews/{bookId}/rating [get]
func (h *Handlers) RatingStats(c *gin.Context) {
	st, err := h.reviewSvc.RatingStats(c.Request.Context(), c.Param("bookId"))
	if err != nil {
		writeError(c, err, "Failed to calculate rating statistics")
		return
	}
	ok(c, http.StatusOK, st)
}

// CreateReview godoc
// @ID          createReview
// @Summary     Create a review
// @Description One review per user and book. The book's rating is recomputed from all its reviews.
// @Tags        Reviews
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.CreateReviewRequest  true  "Review"
// @Success     201  {object}  domain.Review
// @Failure     400  {object}  handlers.ErrorResponse  "Missing field or rating out of range"
// @Failure     409  {object}  handlers.ErrorResponse  "Already reviewed"
// @Failure     500  {object}  handlers.ErrorResponse  "Failed to add review"
// @Router      /reviews [post]
func (h *Handlers) CreateReview(c *gin.Context) {
	var req CreateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return
	}
	rating, msg := reviewRating(req.Rating)
	if msg != "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, msg)
		return
	}
	r, err := h.reviewSvc.Create(c.Request.Context(), services.NewReview{
		BookID:   req.BookID,
		UserID:   req.UserID,
		UserName: req.UserName,
		Rating:   rating,
		Comment:  req.Comment,
	})
	if err != nil {
		writeError(c, err, "Failed to add review")
		return
	}
	ok(c, http.StatusCreated, r)
}

// UpdateReview godoc
// @ID          updateReview
// @Summary     Update a review
// @Tags        Reviews
// @Accept      json
// @Produce     json
// @Param       reviewId  path  string                        true  "Review ID"
// @Param       body      body  handlers.UpdateReviewRequest  true  "Fields to change"
// @Success     200  {object}  domain.Review
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid id or no valid fields"
// @Failure     404  {object}  handlers.ErrorResponse  "Review not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Failed to update review"
// @Router      /reviews/{reviewId} [put]
func (h *Handlers) UpdateReview(c *gin.Context) {
	var req UpdateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return
	}
	r, err := h.reviewSvc.Update(c.Request.Context(), c.Param("reviewId"), domain.ReviewPatch{
		Rating:  req.Rating,
		Comment: req.Comment,
	})
	if err != nil {
		writeError(c, err, "Failed to update review")
		return
	}
	ok(c, http.StatusOK, r)
}

// DeleteReview godoc
// @ID          deleteReview
// @Summary     Delete a review
// @Tags        Reviews
// @Produce     json
// @Param       reviewId  path  string  true  "Review ID"
// @Success     200  {object}  handlers.MessageResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid review id"
// @Failure     404  {object}  handlers.ErrorResponse  "Review not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Failed to delete review"
// @Router      /reviews/{reviewId} [delete]
func (h *Handlers) DeleteReview(c *gin.Context) {
	if err := h.reviewSvc.Delete(c.Request.Context(), c.Param("reviewId")); err != nil {
		writeError(c, err, "Failed to delete review")
		return
	}
	message(c, http.StatusOK, "Review deleted successfully")
}

// GetUserReview godoc
// @ID          getUserReview
// @Summary     A user's review of a book
// @Description Returns the review, or null when the user has not reviewed the book.
// @Tags        Reviews
// @Produce     json
// @Param       bookId  path  string  true  "Book ID"
// @Param       userId  path  string  true  "User ID"
// @Success     200  {object}  domain.Review
// @Failure     500  {object}  handlers.ErrorResponse  "Failed to fetch user review"
// @Router      /reviews/{bookId}/user/{userId} [get]
func (h *Handlers) GetUserReview(c *gin.Context) {
	r, err := h.reviewSvc.GetOne(c.Request.Context(), c.Param("bookId"), c.Param("userId"))
	if err != nil {
		writeError(c, err, "Failed to fetch user review")
		return
	}
	if r == nil {
		ok(c, http.StatusOK, nil)
		return
	}
	ok(c, http.StatusOK, r)
}

// ListUserReviews godoc
// @ID          listUserReviews
// @Summary     Reviews written by a user
// @Tags        Reviews
// @Produce     json
// @Param       userId  path  string  true  "User ID"
// @Success     200  {array}   domain.Review
// @Failure     500  {object}  handlers.ErrorResponse  "Failed to fetch user reviews"
// @Router      /reviews/user/{userId} [get]
func (h *Handlers) ListUserReviews(c *gin.Context) {
	rs, err := h.reviewSvc.ListByUser(c.Request.Context(), c.Param("userId"))
	if err != nil {
		writeError(c, err, "Failed to fetch user reviews")
		return
	}
	ok(c, http.StatusOK, rs)
}
