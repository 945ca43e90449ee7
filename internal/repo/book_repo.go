// Package repo implements the relational persistence layer. This file
// provides repository functions for the Book model, including the rating
// aggregate writes used by the rating aggregator.
//
// The repository follows a "thin" approach: it performs persistence and simple
// query composition, leaving business rules to the services package.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-library-backend/internal/domain"
)

// CreateBook inserts b, assigning an id and timestamps when missing.
func CreateBook(ctx context.Context, db *gorm.DB, b *domain.Book) error {
	now := time.Now().UTC()
	if b.ID == "" {
		b.ID = domain.NewID()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	if err := db.WithContext(ctx).Create(b).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetBook returns the book with id or ErrNotFound.
func GetBook(ctx context.Context, db *gorm.DB, id string) (*domain.Book, error) {
	var b domain.Book
	if err := db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

// ListBooks returns books ordered by title, optionally filtered by genre and
// paginated when f.Limit > 0.
func ListBooks(ctx context.Context, db *gorm.DB, f domain.BookFilter) ([]domain.Book, error) {
	q := db.WithContext(ctx).Model(&domain.Book{})
	if f.Genre != "" {
		q = q.Where("LOWER(genre) = LOWER(?)", f.Genre)
	}
	if f.Limit > 0 {
		q = q.Offset(f.Offset).Limit(f.Limit)
	}
	out := []domain.Book{}
	err := q.Order("title ASC").Order("id ASC").Find(&out).Error
	return out, err
}

// CountBooks returns the number of books.
func CountBooks(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Book{}).Count(&n).Error
	return n, err
}

// UpdateBook applies the non-nil fields of p and returns the stored book.
func UpdateBook(ctx context.Context, db *gorm.DB, id string, p domain.BookPatch) (*domain.Book, error) {
	cols := bookColumns(p)
	cols["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).Model(&domain.Book{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return GetBook(ctx, db, id)
}

// DeleteBook removes the book with id.
func DeleteBook(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Book{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetRating overwrites the rating aggregate of book id.
func SetRating(ctx context.Context, db *gorm.DB, id string, agg domain.RatingAggregate) error {
	res := db.WithContext(ctx).Model(&domain.Book{}).Where("id = ?", id).Updates(ratingColumns(agg))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SwapRating writes next only while the stored aggregate still equals prev.
// It returns false when the row changed (or vanished) since prev was read.
func SwapRating(ctx context.Context, db *gorm.DB, id string, prev, next domain.RatingAggregate) (bool, error) {
	res := db.WithContext(ctx).Model(&domain.Book{}).
		Where("id = ? AND rating = ? AND total_ratings = ? AND rating_source = ?",
			id, prev.Rating, prev.TotalRatings, prev.Source).
		Updates(ratingColumns(next))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// AverageBookRating returns the mean of the rating column over all books
// (0 when there are none).
func AverageBookRating(ctx context.Context, db *gorm.DB) (float64, error) {
	var avg *float64
	row := db.WithContext(ctx).Model(&domain.Book{}).Select("AVG(rating)").Row()
	if err := row.Scan(&avg); err != nil {
		return 0, err
	}
	if avg == nil {
		return 0, nil
	}
	return *avg, nil
}

// ratingColumns maps an aggregate to its columns. A map is used so that zero
// values (rating 0, count 0, source "") are written.
func ratingColumns(agg domain.RatingAggregate) map[string]any {
	return map[string]any{
		"rating":        agg.Rating,
		"total_ratings": agg.TotalRatings,
		"rating_source": agg.Source,
		"updated_at":    time.Now().UTC(),
	}
}

func bookColumns(p domain.BookPatch) map[string]any {
	m := map[string]any{}
	for col, v := range map[string]any{
		"title":          p.Title,
		"author":         p.Author,
		"description":    p.Description,
		"genre":          p.Genre,
		"cover_image":    p.CoverImage,
		"pdf_url":        p.PDFURL,
		"published_date": p.PublishedDate,
		"isbn":           p.ISBN,
		"type":           p.Type,
		"format":         p.Format,
	} {
		if s, ok := v.(*string); ok && s != nil {
			m[col] = *s
		}
	}
	if p.Pages != nil {
		m["pages"] = *p.Pages
	}
	if p.Stock != nil {
		m["stock"] = *p.Stock
	}
	if p.PriceBuy != nil {
		m["price_buy"] = *p.PriceBuy
	}
	if p.PriceRent != nil {
		m["price_rent"] = *p.PriceRent
	}
	return m
}
