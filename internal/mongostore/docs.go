package mongostore

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tbourn/go-library-backend/internal/domain"
)

type bookDoc struct {
	ID            primitive.ObjectID `bson:"_id"`
	Title         string             `bson:"title"`
	Author        string             `bson:"author"`
	Description   string             `bson:"description,omitempty"`
	Genre         string             `bson:"genre,omitempty"`
	CoverImage    string             `bson:"coverImage,omitempty"`
	PDFURL        string             `bson:"pdfUrl,omitempty"`
	Pages         int                `bson:"pages,omitempty"`
	PublishedDate string             `bson:"publishedDate,omitempty"`
	ISBN          string             `bson:"isbn,omitempty"`
	Rating        float64            `bson:"rating"`
	TotalRatings  int                `bson:"totalRatings"`
	RatingSource  string             `bson:"ratingSource"`
	Type          string             `bson:"type,omitempty"`
	PriceBuy      *float64           `bson:"priceBuy,omitempty"`
	PriceRent     *float64           `bson:"priceRent,omitempty"`
	Stock         *int               `bson:"stock,omitempty"`
	Format        string             `bson:"format,omitempty"`
	CreatedAt     time.Time          `bson:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt"`
}

func newBookDoc(b *domain.Book, id primitive.ObjectID) bookDoc {
	priceBuy, priceRent, stock := b.PriceBuy, b.PriceRent, b.Stock
	return bookDoc{
		ID:            id,
		Title:         b.Title,
		Author:        b.Author,
		Description:   b.Description,
		Genre:         b.Genre,
		CoverImage:    b.CoverImage,
		PDFURL:        b.PDFURL,
		Pages:         b.Pages,
		PublishedDate: b.PublishedDate,
		ISBN:          b.ISBN,
		Rating:        b.Rating,
		TotalRatings:  b.TotalRatings,
		RatingSource:  b.RatingSource,
		Type:          b.Type,
		PriceBuy:      &priceBuy,
		PriceRent:     &priceRent,
		Stock:         &stock,
		Format:        b.Format,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
}

// book converts the document, filling commerce defaults for documents that
// were written without them.
func (d bookDoc) book() domain.Book {
	b := domain.Book{
		ID:            d.ID.Hex(),
		Title:         d.Title,
		Author:        d.Author,
		Description:   d.Description,
		Genre:         d.Genre,
		CoverImage:    d.CoverImage,
		PDFURL:        d.PDFURL,
		Pages:         d.Pages,
		PublishedDate: d.PublishedDate,
		ISBN:          d.ISBN,
		Rating:        d.Rating,
		TotalRatings:  d.TotalRatings,
		RatingSource:  d.RatingSource,
		Type:          d.Type,
		PriceBuy:      domain.DefaultPriceBuy,
		PriceRent:     domain.DefaultPriceRent,
		Stock:         domain.DefaultStock,
		Format:        d.Format,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	if d.PriceBuy != nil {
		b.PriceBuy = *d.PriceBuy
	}
	if d.PriceRent != nil {
		b.PriceRent = *d.PriceRent
	}
	if d.Stock != nil {
		b.Stock = *d.Stock
	}
	b.ApplyDefaults()
	return b
}

type reviewDoc struct {
	ID        primitive.ObjectID `bson:"_id"`
	BookID    string             `bson:"bookId"`
	UserID    string             `bson:"userId"`
	UserName  string             `bson:"userName"`
	Rating    int                `bson:"rating"`
	Comment   string             `bson:"comment"`
	CreatedAt time.Time          `bson:"createdAt"`
}

func (d reviewDoc) review() domain.Review {
	return domain.Review{
		ID:        d.ID.Hex(),
		BookID:    d.BookID,
		UserID:    d.UserID,
		UserName:  d.UserName,
		Rating:    d.Rating,
		Comment:   d.Comment,
		CreatedAt: d.CreatedAt,
	}
}

type userDoc struct {
	ID              primitive.ObjectID `bson:"_id"`
	Name            string             `bson:"name"`
	Email           string             `bson:"email"`
	Password        string             `bson:"password"`
	Phone           string             `bson:"phone,omitempty"`
	Address         string             `bson:"address,omitempty"`
	ProfileImageURL string             `bson:"profileImageUrl,omitempty"`
	Role            string             `bson:"role"`
	CreatedAt       time.Time          `bson:"createdAt"`
}

func (d userDoc) user() domain.User {
	role := d.Role
	if role == "" {
		role = domain.RoleUser
	}
	return domain.User{
		ID:              d.ID.Hex(),
		Name:            d.Name,
		Email:           d.Email,
		Password:        d.Password,
		Phone:           d.Phone,
		Address:         d.Address,
		ProfileImageURL: d.ProfileImageURL,
		Role:            role,
		CreatedAt:       d.CreatedAt,
	}
}

type idemDoc struct {
	ID        string    `bson:"_id"`
	Subject   string    `bson:"subject"`
	BookID    string    `bson:"bookId"`
	Key       string    `bson:"key"`
	Status    int       `bson:"status"`
	Response  string    `bson:"response"`
	CreatedAt time.Time `bson:"createdAt"`
	ExpiresAt time.Time `bson:"expiresAt"`
}

func (d idemDoc) record() domain.Idempotency {
	return domain.Idempotency{
		ID:        d.ID,
		Subject:   d.Subject,
		BookID:    d.BookID,
		Key:       d.Key,
		Status:    d.Status,
		Response:  d.Response,
		CreatedAt: d.CreatedAt,
		ExpiresAt: d.ExpiresAt,
	}
}
