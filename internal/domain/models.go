// Package domain defines the persistence models for books, reviews, and
// users. The same types are mapped with GORM (relational backends) and
// converted to BSON documents by the Mongo store, and they form the core data
// layer of the library backend.
package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Roles a User may hold.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Rating sources record which mutation path owns Book.Rating/TotalRatings.
const (
	RatingSourceNone    = ""
	RatingSourceReviews = "reviews"
	RatingSourceQuick   = "quick"
)

// Commerce defaults applied when a book is created without them.
const (
	DefaultBookType  = "ebook"
	DefaultPriceBuy  = 299.0
	DefaultPriceRent = 99.0
	DefaultStock     = 10
	DefaultFormat    = "PDF"
)

// Store-level sentinels shared by every backend.
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

// NewID returns a fresh identifier. Identifiers are 24-char hex ObjectIDs in
// every backend so that ids stay portable between Mongo and SQL stores.
func NewID() string { return primitive.NewObjectID().Hex() }

// IsValidID reports whether s is a well-formed identifier.
func IsValidID(s string) bool { return primitive.IsValidObjectID(s) }

// Book is a catalog entry carrying the denormalized rating aggregate.
//
// Fields:
//   - Rating / TotalRatings: aggregate maintained by the rating aggregator.
//   - RatingSource: which path ("reviews" or "quick") last wrote the aggregate.
//   - Type, PriceBuy, PriceRent, Stock, Format: commerce fields (see defaults).
type Book struct {
	ID            string    `json:"_id"           gorm:"type:char(24);primaryKey"`
	Title         string    `json:"title"         gorm:"type:varchar(255);not null;index"`
	Author        string    `json:"author"        gorm:"type:varchar(255);not null"`
	Description   string    `json:"description"   gorm:"type:text"`
	Genre         string    `json:"genre"         gorm:"type:varchar(64);index"`
	CoverImage    string    `json:"coverImage"    gorm:"type:text"`
	PDFURL        string    `json:"pdfUrl"        gorm:"column:pdf_url;type:text"`
	Pages         int       `json:"pages"`
	PublishedDate string    `json:"publishedDate" gorm:"type:varchar(32)"`
	ISBN          string    `json:"isbn"          gorm:"column:isbn;type:varchar(32)"`
	Rating        float64   `json:"rating"        gorm:"type:double precision;not null;default:0"`
	TotalRatings  int       `json:"totalRatings"  gorm:"not null;default:0;check:total_ratings >= 0"`
	RatingSource  string    `json:"ratingSource"  gorm:"type:varchar(16);not null;default:''"`
	Type          string    `json:"type"          gorm:"type:varchar(32)"`
	PriceBuy      float64   `json:"priceBuy"`
	PriceRent     float64   `json:"priceRent"`
	Stock         int       `json:"stock"`
	Format        string    `json:"format"        gorm:"type:varchar(32)"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// TableName returns the database table name for Book.
func (Book) TableName() string { return "books" }

// MarshalJSON adds "bookId" mirroring "_id"; clients address books by either.
func (b Book) MarshalJSON() ([]byte, error) {
	type plain Book
	return json.Marshal(struct {
		plain
		BookID string `json:"bookId"`
	}{plain: plain(b), BookID: b.ID})
}

// Aggregate returns the book's current rating aggregate.
func (b Book) Aggregate() RatingAggregate {
	return RatingAggregate{Rating: b.Rating, TotalRatings: b.TotalRatings, Source: b.RatingSource}
}

// ApplyDefaults fills the commerce fields left at their zero value.
func (b *Book) ApplyDefaults() {
	if strings.TrimSpace(b.Type) == "" {
		b.Type = DefaultBookType
	}
	if strings.TrimSpace(b.Format) == "" {
		b.Format = DefaultFormat
	}
}

// RatingAggregate is the denormalized (rating, totalRatings) pair plus its owner.
type RatingAggregate struct {
	Rating       float64 `json:"rating"`
	TotalRatings int     `json:"totalRatings"`
	Source       string  `json:"ratingSource"`
}

// Review is a single user's rating and comment on a book. At most one review
// exists per (book_id, user_id), enforced by a unique index.
type Review struct {
	ID        string    `json:"_id"       gorm:"type:char(24);primaryKey"`
	BookID    string    `json:"bookId"    gorm:"type:varchar(64);not null;uniqueIndex:ux_reviews_book_user,priority:1;index:idx_reviews_book_created,priority:1"`
	UserID    string    `json:"userId"    gorm:"type:varchar(64);not null;uniqueIndex:ux_reviews_book_user,priority:2;index:idx_reviews_user"`
	UserName  string    `json:"userName"  gorm:"type:varchar(255);not null"`
	Rating    int       `json:"rating"    gorm:"not null;check:rating BETWEEN 1 AND 5"`
	Comment   string    `json:"comment"   gorm:"type:text;not null"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null;index:idx_reviews_book_created,priority:2,sort:desc"`
}

// TableName returns the database table name for Review.
func (Review) TableName() string { return "reviews" }

// User is an account. Password holds a bcrypt hash and is never serialized.
type User struct {
	ID              string    `json:"_id"             gorm:"type:char(24);primaryKey"`
	Name            string    `json:"name"            gorm:"type:varchar(255);not null"`
	Email           string    `json:"email"           gorm:"type:varchar(255);not null;uniqueIndex:ux_users_email"`
	Password        string    `json:"-"               gorm:"type:varchar(255);not null"`
	Phone           string    `json:"phone"           gorm:"type:varchar(64)"`
	Address         string    `json:"address"         gorm:"type:text"`
	ProfileImageURL string    `json:"profileImageUrl" gorm:"type:text"`
	Role            string    `json:"role"            gorm:"type:varchar(16);not null;default:'user';check:role IN ('user','admin')"`
	CreatedAt       time.Time `json:"createdAt"       gorm:"index"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// RatingStats summarizes the reviews of one book.
type RatingStats struct {
	BookID             string      `json:"bookId"`
	AverageRating      float64     `json:"averageRating"`
	TotalReviews       int         `json:"totalReviews"`
	RatingDistribution map[int]int `json:"ratingDistribution"`
}

// AdminStats is the admin dashboard summary.
type AdminStats struct {
	TotalUsers    int64     `json:"totalUsers"`
	TotalBooks    int64     `json:"totalBooks"`
	TotalAdmins   int64     `json:"totalAdmins"`
	TotalReviews  int64     `json:"totalReviews"`
	RecentUsers   int64     `json:"recentUsers"`
	RecentReviews int64     `json:"recentReviews"`
	AverageRating float64   `json:"averageRating"`
	LastUpdated   time.Time `json:"lastUpdated"`
}
