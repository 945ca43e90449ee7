package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-library-backend/internal/domain"
	"github.com/tbourn/go-library-backend/internal/http/middleware"
	"github.com/tbourn/go-library-backend/internal/services"
	"github.com/tbourn/go-library-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// ReviewService manages reviews and per-book rating statistics.
type ReviewService interface {
	Create(ctx context.Context, in services.NewReview) (*domain.Review, error)
	Update(ctx context.Context, id string, p domain.ReviewPatch) (*domain.Review, error)
	Delete(ctx context.Context, id string) error
	ListByBook(ctx context.Context, bookID string) ([]domain.Review, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Review, error)
	// GetOne returns nil (and no error) when the user has not reviewed the book.
	GetOne(ctx context.Context, bookID, userID string) (*domain.Review, error)
	RatingStats(ctx context.Context, bookID string) (*domain.RatingStats, error)
}

// RatingService applies quick ratings.
type RatingService interface {
	// QuickRateOnce returns the JSON body of the updated book. replayed is
	// true when the body was served from a stored idempotency record.
	QuickRateOnce(ctx context.Context, subject, bookID, key string, value float64) (body []byte, replayed bool, err error)
}

// BookService manages the catalog.
type BookService interface {
	Create(ctx context.Context, in services.NewBook) (*domain.Book, error)
	Get(ctx context.Context, id string) (*domain.Book, error)
	List(ctx context.Context, genre string, page, pageSize int) ([]domain.Book, error)
	Update(ctx context.Context, id string, p domain.BookPatch) (*domain.Book, error)
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, q string, k int) ([]domain.Book, error)
}

// UserService manages accounts and sessions.
type UserService interface {
	Register(ctx context.Context, in services.NewUser) (*domain.User, error)
	CreateAdmin(ctx context.Context, in services.NewUser, callerIsAdmin bool) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*services.Session, error)
	AdminLogin(ctx context.Context, email, password string) (*services.Session, error)
	Get(ctx context.Context, id string) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	Update(ctx context.Context, id string, p domain.UserPatch) (*domain.User, error)
	SetProfileImage(ctx context.Context, id, filename string, r io.Reader) (string, error)
	ClearProfileImage(ctx context.Context, id string) error
}

// AdminService computes the dashboard summary.
type AdminService interface {
	Stats(ctx context.Context) (*domain.AdminStats, error)
}

//
// Handler wiring
//

// Services bundles the dependencies of Handlers.
type Services struct {
	Reviews ReviewService
	Ratings RatingService
	Books   BookService
	Users   UserService
	Admin   AdminService
}

// Handlers groups every HTTP endpoint. It depends on service interfaces only.
type Handlers struct {
	reviewSvc ReviewService
	ratingSvc RatingService
	bookSvc   BookService
	userSvc   UserService
	adminSvc  AdminService
}

// New constructs Handlers bound to the given services.
func New(s Services) *Handlers {
	return &Handlers{
		reviewSvc: s.Reviews,
		ratingSvc: s.Ratings,
		bookSvc:   s.Books,
		userSvc:   s.Users,
		adminSvc:  s.Admin,
	}
}

// selfOrAdmin aborts with 403 unless the caller is the user id or an admin.
func selfOrAdmin(c *gin.Context, id string) bool {
	if middleware.UserID(c) == id || middleware.IsAdmin(c) {
		return true
	}
	fail(c, http.StatusForbidden, ErrCodeForbidden, "Access denied")
	return false
}

// pageQuery parses optional page/page_size. A missing page_size yields an
// unpaged request.
func pageQuery(c *gin.Context) utils.Page {
	const maxPageSize = 100
	return utils.ParsePage(c.Query("page"), c.Query("page_size"), maxPageSize)
}
