// Book HTTP handlers.
//
// Public catalog:
//   - GET  /books              (list, optional genre filter and paging)
//   - GET  /books/search       (relevance search)
//   - GET  /books/{id}         (one book)
//   - POST /books/{id}/rate    (quick-rate, Idempotency-Key aware)
//
// Admin catalog (RequireAdmin):
//   - POST   /admin/books
//   - PUT    /admin/books/{id}
//   - DELETE /admin/books/{id}
//   - GET    /admin/stats
package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-library-backend/internal/domain"
	"github.com/tbourn/go-library-backend/internal/http/middleware"
	"github.com/tbourn/go-library-backend/internal/search"
	"github.com/tbourn/go-library-backend/internal/services"
	"github.com/tbourn/go-library-backend/internal/utils"
)

//
// DTOs
//

// BookRequest is the JSON payload for creating or updating a book. On update,
// omitted fields are left unchanged. Rating fields are not accepted.
type BookRequest struct {
	Title         *string  `json:"title,omitempty"         binding:"omitempty,max=255" example:"The Left Hand of Darkness"`
	Author        *string  `json:"author,omitempty"        binding:"omitempty,max=255" example:"Ursula K. Le Guin"`
	Description   *string  `json:"description,omitempty"`
	Genre         *string  `json:"genre,omitempty"         binding:"omitempty,max=64" example:"science fiction"`
	CoverImage    *string  `json:"coverImage,omitempty"`
	PDFURL        *string  `json:"pdfUrl,omitempty"`
	Pages         *int     `json:"pages,omitempty"         example:"304"`
	PublishedDate *string  `json:"publishedDate,omitempty" example:"1969"`
	ISBN          *string  `json:"isbn,omitempty"          binding:"omitempty,max=32"`
	Type          *string  `json:"type,omitempty"          example:"ebook"`
	PriceBuy      *float64 `json:"priceBuy,omitempty"      example:"299"`
	PriceRent     *float64 `json:"priceRent,omitempty"     example:"99"`
	Stock         *int     `json:"stock,omitempty"         example:"10"`
	Format        *string  `json:"format,omitempty"        example:"PDF"`
}

func (r BookRequest) newBook() services.NewBook {
	return services.NewBook{
		Title:         deref(r.Title),
		Author:        deref(r.Author),
		Description:   deref(r.Description),
		Genre:         deref(r.Genre),
		CoverImage:    deref(r.CoverImage),
		PDFURL:        deref(r.PDFURL),
		Pages:         deref(r.Pages),
		PublishedDate: deref(r.PublishedDate),
		ISBN:          deref(r.ISBN),
		Type:          deref(r.Type),
		PriceBuy:      r.PriceBuy,
		PriceRent:     r.PriceRent,
		Stock:         r.Stock,
		Format:        deref(r.Format),
	}
}

func (r BookRequest) patch() domain.BookPatch {
	return domain.BookPatch{
		Title:         r.Title,
		Author:        r.Author,
		Description:   r.Description,
		Genre:         r.Genre,
		CoverImage:    r.CoverImage,
		PDFURL:        r.PDFURL,
		Pages:         r.Pages,
		PublishedDate: r.PublishedDate,
		ISBN:          r.ISBN,
		Type:          r.Type,
		PriceBuy:      r.PriceBuy,
		PriceRent:     r.PriceRent,
		Stock:         r.Stock,
		Format:        r.Format,
	}
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// QuickRateRequest is the quick-rate payload. rating may be a JSON number or
// a numeric string.
type QuickRateRequest struct {
	Rating json.RawMessage `json:"rating" swaggertype:"number" example:"4.5"`
}

// parseRating reads a quick-rate value. An absent or null rating reads as 0,
// which the service rejects as out of range.
func parseRating(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, true
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f, err == nil
}

//
// Public handlers
//

// ListBooks godoc
// @ID          listBooks
// @Summary     List books
// @Description Books ordered by title. Without page_size every book is returned.
// @Tags        Books
// @Produce     json
// @Param       genre      query  string  false  "Genre (case-insensitive)"
// @Param       page       query  int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page"  minimum(1) maximum(100)
// @Success     200  {array}   domain.Book
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /books [get]
func (h *Handlers) ListBooks(c *gin.Context) {
	pg := pageQuery(c)
	books, err := h.bookSvc.List(c.Request.Context(), c.Query("genre"), pg.Number, pg.Size)
	if err != nil {
		writeError(c, err, "Failed to fetch books")
		return
	}
	ok(c, http.StatusOK, books)
}

// SearchBooks godoc
// @ID          searchBooks
// @Summary     Search books
// @Description Ranks books by word overlap with title, author, genre and description.
// @Tags        Books
// @Produce     json
// @Param       q  query  string  true   "Search text"
// @Param       k  query  int     false  "Max results"  minimum(1) maximum(50) default(10)
// @Success     200  {array}   domain.Book
// @Failure     400  {object}  handlers.ErrorResponse  "Missing q"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /books/search [get]
func (h *Handlers) SearchBooks(c *gin.Context) {
	const maxK = 50
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Query parameter q is required")
		return
	}
	k := utils.Clamp(utils.AtoiDefault(c.Query("k"), search.DefaultK), 1, maxK)
	books, err := h.bookSvc.Search(c.Request.Context(), q, k)
	if err != nil {
		writeError(c, err, "Failed to search books")
		return
	}
	ok(c, http.StatusOK, books)
}

// GetBook godoc
// @ID          getBook
// @Summary     Get a book
// @Tags        Books
// @Produce     json
// @Param       id  path  string  true  "Book ID"
// @Success     200  {object}  domain.Book
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid book id"
// @Failure     404  {object}  handlers.ErrorResponse  "Book not found"
// @Router      /books/{id} [get]
func (h *Handlers) GetBook(c *gin.Context) {
	b, err := h.bookSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, "Failed to fetch book")
		return
	}
	ok(c, http.StatusOK, b)
}

// QuickRate godoc
// @ID          quickRate
// @Summary     Quick-rate a book
// @Description Folds one rating into the book's running average without creating a review.
// @Description With an Idempotency-Key, retries return the first response and set Idempotency-Replayed: true.
// @Tags        Books
// @Accept      json
// @Produce     json
// @Param       id               path    string                     true   "Book ID"
// @Param       Idempotency-Key  header  string                     false  "Idempotency key for safe retries"
// @Param       body             body    handlers.QuickRateRequest  true   "Rating 1..5"
// @Success     200  {object}  domain.Book
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid id or rating"
// @Failure     404  {object}  handlers.ErrorResponse  "Book not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Concurrent update, retry"
// @Router      /books/{id}/rate [post]
func (h *Handlers) QuickRate(c *gin.Context) {
	id := c.Param("id")
	if !domain.IsValidID(id) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Invalid book id")
		return
	}
	raw, err := c.GetRawData()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return
	}
	var req QuickRateRequest
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
			return
		}
	}
	value, isNum := parseRating(req.Rating)
	if !isNum {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Rating must be a number")
		return
	}

	key, _ := middleware.GetIdempotencyKey(c)
	body, replayed, err := h.ratingSvc.QuickRateOnce(c.Request.Context(), middleware.Subject(c), id, key, value)
	if err != nil {
		writeError(c, err, "Failed to rate book")
		return
	}
	if replayed {
		c.Header(middleware.HeaderIdempotencyReplayed, "true")
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

//
// Admin handlers
//

// CreateBook godoc
// @ID          createBook
// @Summary     Create a book (admin)
// @Description title and author are required. Commerce fields default to type=ebook, priceBuy=299, priceRent=99, stock=10, format=PDF.
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.BookRequest  true  "Book"
// @Success     201  {object}  domain.Book
// @Failure     400  {object}  handlers.ErrorResponse  "Validation error"
// @Failure     401  {object}  handlers.ErrorResponse  "Authentication required"
// @Failure     403  {object}  handlers.ErrorResponse  "Admin access required"
// @Router      /admin/books [post]
func (h *Handlers) CreateBook(c *gin.Context) {
	var req BookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return
	}
	b, err := h.bookSvc.Create(c.Request.Context(), req.newBook())
	if err != nil {
		writeError(c, err, "Failed to create book")
		return
	}
	ok(c, http.StatusCreated, b)
}

// UpdateBook godoc
// @ID          updateBook
// @Summary     Update a book (admin)
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string                true  "Book ID"
// @Param       body  body  handlers.BookRequest  true  "Fields to change"
// @Success     200  {object}  domain.Book
// @Failure     400  {object}  handlers.ErrorResponse  "Validation error"
// @Failure     403  {object}  handlers.ErrorResponse  "Admin access required"
// @Failure     404  {object}  handlers.ErrorResponse  "Book not found"
// @Router      /admin/books/{id} [put]
func (h *Handlers) UpdateBook(c *gin.Context) {
	var req BookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return
	}
	b, err := h.bookSvc.Update(c.Request.Context(), c.Param("id"), req.patch())
	if err != nil {
		writeError(c, err, "Failed to update book")
		return
	}
	ok(c, http.StatusOK, b)
}

// DeleteBook godoc
// @ID          deleteBook
// @Summary     Delete a book and its reviews (admin)
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Book ID"
// @Success     200  {object}  handlers.MessageResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid book id"
// @Failure     403  {object}  handlers.ErrorResponse  "Admin access required"
// @Failure     404  {object}  handlers.ErrorResponse  "Book not found"
// @Router      /admin/books/{id} [delete]
func (h *Handlers) DeleteBook(c *gin.Context) {
	if err := h.bookSvc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err, "Failed to delete book")
		return
	}
	message(c, http.StatusOK, "Book deleted successfully")
}

// AdminStats godoc
// @ID          adminStats
// @Summary     Dashboard statistics (admin)
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  domain.AdminStats
// @Failure     403  {object}  handlers.ErrorResponse  "Admin access required"
// @Failure     500  {object}  handlers.ErrorResponse  "Failed to retrieve stats"
// @Router      /admin/stats [get]
func (h *Handlers) AdminStats(c *gin.Context) {
	st, err := h.adminSvc.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err, "Failed to retrieve stats")
		return
	}
	ok(c, http.StatusOK, st)
}
