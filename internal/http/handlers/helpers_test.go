package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-library-backend/internal/auth"
	"github.com/tbourn/go-library-backend/internal/domain"
	"github.com/tbourn/go-library-backend/internal/events"
	"github.com/tbourn/go-library-backend/internal/http/middleware"
	"github.com/tbourn/go-library-backend/internal/lock"
	"github.com/tbourn/go-library-backend/internal/media"
	"github.com/tbourn/go-library-backend/internal/repo"
	"github.com/tbourn/go-library-backend/internal/services"
)

const testSecret = "0123456789abcdef0123"

// testApp is a gin engine mounting every handler over real services backed by
// a private in-memory SQLite database.
type testApp struct {
	t      *testing.T
	r      *gin.Engine
	store  *repo.Store
	tokens *auth.Tokens
	hasher *auth.Hasher
	books  *services.BookService
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := newStore(t)
	tokens := auth.NewTokens(testSecret, time.Hour, time.Hour)
	hasher := auth.NewHasher(bcrypt.MinCost)

	ratings := services.NewRatingService(st, lock.NewLocal(), events.Nop{})
	books := services.NewBookService(st)
	h := New(Services{
		Reviews: services.NewReviewService(st, ratings, events.Nop{}),
		Ratings: ratings,
		Books:   books,
		Users:   services.NewUserService(st, tokens, hasher, media.NewProcessor(64)),
		Admin:   services.NewAdminService(st),
	})

	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Authenticate(tokens),
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil),
	)
	authed := r.Group("", middleware.RequireAuth())
	admin := r.Group("", middleware.RequireAdmin())

	r.GET("/reviews/:bookId", h.ListReviews)
	r.GET("/reviews/:bookId/rating", h.RatingStats)
	r.GET("/reviews/:bookId/user/:userId", h.GetUserReview)
	r.GET("/reviews/user/:userId", h.ListUserReviews)
	r.POST("/reviews", h.CreateReview)
	r.PUT("/reviews/:reviewId", h.UpdateReview)
	r.DELETE("/reviews/:reviewId", h.DeleteReview)

	r.GET("/books", h.ListBooks)
	r.GET("/books/search", h.SearchBooks)
	r.GET("/books/:id", h.GetBook)
	r.POST("/books/:id/rate", h.QuickRate)
	admin.POST("/admin/books", h.CreateBook)
	admin.PUT("/admin/books/:id", h.UpdateBook)
	admin.DELETE("/admin/books/:id", h.DeleteBook)
	admin.GET("/admin/stats", h.AdminStats)

	r.POST("/register", h.Register)
	r.POST("/login", h.Login)
	r.POST("/admin/login", h.AdminLogin)
	r.POST("/create-admin", h.CreateAdmin)
	admin.GET("/users", h.ListUsers)
	authed.GET("/user/:id", h.GetUser)
	authed.PUT("/user/:id", h.UpdateUser)
	authed.POST("/user/:id/profile-image", h.UploadProfileImage)
	authed.DELETE("/user/:id/profile-image", h.DeleteProfileImage)

	return &testApp{t: t, r: r, store: st, tokens: tokens, hasher: hasher, books: books}
}

func newStore(t *testing.T) *repo.Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:h_%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return repo.NewStore(db)
}

// do sends a request. body may be nil, a string, []byte, or any value that is
// marshaled to JSON.
func (a *testApp) do(method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	a.t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	case []byte:
		rd = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			a.t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	return w
}

// user stores an account with password "secret" and returns it with a token.
func (a *testApp) user(name, role string) (*domain.User, string) {
	a.t.Helper()
	hash, err := a.hasher.Hash("secret")
	if err != nil {
		a.t.Fatalf("hash: %v", err)
	}
	u := &domain.User{
		Name:     name,
		Email:    strings.ToLower(name) + "@example.com",
		Password: hash,
		Role:     role,
	}
	if err := a.store.CreateUser(context.Background(), u); err != nil {
		a.t.Fatalf("create user: %v", err)
	}
	tok, err := a.tokens.Issue(u, role == domain.RoleAdmin)
	if err != nil {
		a.t.Fatalf("issue: %v", err)
	}
	return u, tok
}

func (a *testApp) book(title string) *domain.Book {
	a.t.Helper()
	b := &domain.Book{Title: title, Author: "Author", Genre: "Fiction", Description: title + " description"}
	b.ApplyDefaults()
	if err := a.store.CreateBook(context.Background(), b); err != nil {
		a.t.Fatalf("create book: %v", err)
	}
	return b
}

func wantStatus(t *testing.T, w *httptest.ResponseRecorder, code int) {
	t.Helper()
	if w.Code != code {
		t.Fatalf("status=%d want %d body=%s", w.Code, code, w.Body.String())
	}
}

func wantError(t *testing.T, w *httptest.ResponseRecorder, code int, errCode, msg string) {
	t.Helper()
	wantStatus(t, w, code)
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("json: %v (%s)", err, w.Body.String())
	}
	if er.Code != errCode || er.Message != msg {
		t.Fatalf("error body=%+v, want code=%q message=%q", er, errCode, msg)
	}
	if er.RequestID == "" {
		t.Fatalf("missing request_id")
	}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("json: %v (%s)", err, w.Body.String())
	}
	return v
}
