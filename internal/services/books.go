// Package services – BookService
//
// BookService manages the catalog: admin CRUD with commerce defaults, genre
// normalization, cascade deletion of reviews, an in-memory relevance index
// rebuilt after every mutation, and an optional Markdown seed for empty
// stores. Rating fields are never written here; see RatingService.
package services

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-library-backend/internal/domain"
	"github.com/tbourn/go-library-backend/internal/search"
	"github.com/tbourn/go-library-backend/internal/utils"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NewBook is the input of BookService.Create. Nil commerce fields take the
// catalog defaults.
type NewBook struct {
	Title         string
	Author        string
	Description   string
	Genre         string
	CoverImage    string
	PDFURL        string
	Pages         int
	PublishedDate string
	ISBN          string
	Type          string
	PriceBuy      *float64
	PriceRent     *float64
	Stock         *int
	Format        string
}

// BookService provides catalog operations.
type BookService struct {
	Books   BookStore
	Reviews ReviewStore
	Index   *search.Live

	// GenreLocale drives genre title-casing. Und means English.
	GenreLocale language.Tag
}

// NewBookService wires a BookService over st with an empty search index.
func NewBookService(st Store) *BookService {
	return &BookService{Books: st, Reviews: st, Index: &search.Live{}}
}

// Create validates in, applies defaults and stores the new book.
func (s *BookService) Create(ctx context.Context, in NewBook) (*domain.Book, error) {
	b, err := s.build(in)
	if err != nil {
		return nil, err
	}
	if err := s.Books.CreateBook(ctx, b); err != nil {
		return nil, storageErr("create book", err)
	}
	s.reindex(ctx)
	return b, nil
}

func (s *BookService) build(in NewBook) (*domain.Book, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	if in.Title == "" {
		return nil, validationErr("title is required")
	}
	if in.Author == "" {
		return nil, validationErr("author is required")
	}
	if in.Pages < 0 {
		return nil, validationErr("pages must not be negative")
	}

	b := &domain.Book{
		Title:         in.Title,
		Author:        in.Author,
		Description:   strings.TrimSpace(in.Description),
		Genre:         s.normalizeGenre(in.Genre),
		CoverImage:    strings.TrimSpace(in.CoverImage),
		PDFURL:        strings.TrimSpace(in.PDFURL),
		Pages:         in.Pages,
		PublishedDate: strings.TrimSpace(in.PublishedDate),
		ISBN:          strings.TrimSpace(in.ISBN),
		Type:          strings.TrimSpace(in.Type),
		PriceBuy:      domain.DefaultPriceBuy,
		PriceRent:     domain.DefaultPriceRent,
		Stock:         domain.DefaultStock,
		Format:        strings.TrimSpace(in.Format),
	}
	if in.PriceBuy != nil {
		b.PriceBuy = *in.PriceBuy
	}
	if in.PriceRent != nil {
		b.PriceRent = *in.PriceRent
	}
	if in.Stock != nil {
		b.Stock = *in.Stock
	}
	if b.PriceBuy < 0 || b.PriceRent < 0 || b.Stock < 0 {
		return nil, validationErr("prices and stock must not be negative")
	}
	b.ApplyDefaults()
	return b, nil
}

// Get returns book id.
func (s *BookService) Get(ctx context.Context, id string) (*domain.Book, error) {
	if !domain.IsValidID(id) {
		return nil, validationErr("Invalid book id")
	}
	b, err := s.Books.GetBook(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, notFoundErr("Book not found")
	}
	if err != nil {
		return nil, storageErr("get book", err)
	}
	return b, nil
}

// List returns books ordered by title, optionally filtered by genre
// (case-insensitive). pageSize <= 0 returns every book.
func (s *BookService) List(ctx context.Context, genre string, page, pageSize int) ([]domain.Book, error) {
	f := domain.BookFilter{Genre: strings.TrimSpace(genre)}
	if p := (utils.Page{Number: page, Size: pageSize}); !p.Unpaged() {
		f.Offset, f.Limit = p.Offset(), p.Size
	}
	out, err := s.Books.ListBooks(ctx, f)
	if err != nil {
		return nil, storageErr("list books", err)
	}
	if out == nil {
		out = []domain.Book{}
	}
	return out, nil
}

// Update applies p to book id. An empty patch returns the book unchanged.
func (s *BookService) Update(ctx context.Context, id string, p domain.BookPatch) (*domain.Book, error) {
	if !domain.IsValidID(id) {
		return nil, validationErr("Invalid book id")
	}
	if p.Empty() {
		return s.Get(ctx, id)
	}
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return nil, validationErr("title is required")
	}
	if p.Author != nil && strings.TrimSpace(*p.Author) == "" {
		return nil, validationErr("author is required")
	}
	if (p.Pages != nil && *p.Pages < 0) || (p.Stock != nil && *p.Stock < 0) ||
		(p.PriceBuy != nil && *p.PriceBuy < 0) || (p.PriceRent != nil && *p.PriceRent < 0) {
		return nil, validationErr("prices and stock must not be negative")
	}
	if p.Genre != nil {
		g := s.normalizeGenre(*p.Genre)
		p.Genre = &g
	}

	b, err := s.Books.UpdateBook(ctx, id, p)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, notFoundErr("Book not found")
	}
	if err != nil {
		return nil, storageErr("update book", err)
	}
	s.reindex(ctx)
	return b, nil
}

// Delete removes book id together with all of its reviews.
func (s *BookService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	n, err := s.Reviews.DeleteReviewsByBook(ctx, id)
	if err != nil {
		return storageErr("delete reviews", err)
	}
	if err := s.Books.DeleteBook(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return notFoundErr("Book not found")
		}
		return storageErr("delete book", err)
	}
	zerolog.Ctx(ctx).Info().Str("book_id", id).Int64("reviews_deleted", n).Msg("book deleted")
	s.reindex(ctx)
	return nil
}

// Search returns up to k books ranked by relevance to q.
func (s *BookService) Search(ctx context.Context, q string, k int) ([]domain.Book, error) {
	out := []domain.Book{}
	if s.Index == nil {
		return out, nil
	}
	for _, r := range s.Index.TopK(q, k) {
		b, err := s.Books.GetBook(ctx, r.ID)
		if errors.Is(err, domain.ErrNotFound) {
			// deleted since the index was built
			continue
		}
		if err != nil {
			return nil, storageErr("get book", err)
		}
		out = append(out, *b)
	}
	return out, nil
}

// Reindex rebuilds the search index from the whole catalog.
func (s *BookService) Reindex(ctx context.Context) error {
	if s.Index == nil {
		return nil
	}
	books, err := s.Books.ListBooks(ctx, domain.BookFilter{})
	if err != nil {
		return storageErr("list books", err)
	}
	docs := make([]search.Doc, 0, len(books))
	for _, b := range books {
		docs = append(docs, search.Doc{
			ID:   b.ID,
			Text: strings.Join([]string{b.Title, b.Author, b.Genre, b.Description}, " "),
		})
	}
	s.Index.Store(search.NewIndex(docs))
	return nil
}

func (s *BookService) reindex(ctx context.Context) {
	if err := s.Reindex(ctx); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("rebuild search index")
	}
}

// Seed imports the Markdown catalog table at path when the store holds no
// books. It returns how many books were created.
func (s *BookService) Seed(ctx context.Context, path string) (int, error) {
	n, err := s.Books.CountBooks(ctx)
	if err != nil {
		return 0, storageErr("count books", err)
	}
	if n > 0 {
		return 0, nil
	}
	recs, err := search.ReadCatalogFile(path)
	if err != nil {
		return 0, err
	}

	created := 0
	for i, rec := range recs {
		b, err := s.build(bookFromRecord(rec))
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Int("row", i+1).Msg("skip catalog row")
			continue
		}
		if err := s.Books.CreateBook(ctx, b); err != nil {
			return created, storageErr("create book", err)
		}
		created++
	}
	s.reindex(ctx)
	return created, nil
}

func bookFromRecord(r search.Record) NewBook {
	in := NewBook{
		Title:         r.Get("title"),
		Author:        r.Get("author"),
		Description:   r.Get("description", "summary"),
		Genre:         r.Get("genre"),
		CoverImage:    r.Get("coverimage", "cover"),
		PDFURL:        r.Get("pdfurl", "pdf"),
		PublishedDate: r.Get("publisheddate", "published", "year"),
		ISBN:          r.Get("isbn"),
		Type:          r.Get("type"),
		Format:        r.Get("format"),
	}
	if v, err := strconv.Atoi(r.Get("pages")); err == nil {
		in.Pages = v
	}
	if v, err := strconv.ParseFloat(r.Get("pricebuy", "price"), 64); err == nil {
		in.PriceBuy = &v
	}
	if v, err := strconv.ParseFloat(r.Get("pricerent"), 64); err == nil {
		in.PriceRent = &v
	}
	if v, err := strconv.Atoi(r.Get("stock")); err == nil {
		in.Stock = &v
	}
	return in
}

// normalizeGenre trims, collapses inner whitespace and title-cases g.
func (s *BookService) normalizeGenre(g string) string {
	g = strings.Join(strings.Fields(g), " ")
	if g == "" {
		return ""
	}
	tag := s.GenreLocale
	if tag == language.Und {
		tag = language.English
	}
	return cases.Title(tag).String(g)
}
