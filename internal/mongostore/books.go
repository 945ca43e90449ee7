package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tbourn/go-library-backend/internal/domain"
)

func (s *Store) CreateBook(ctx context.Context, b *domain.Book) error {
	id := primitive.NewObjectID()
	if b.ID != "" {
		var err error
		if id, err = primitive.ObjectIDFromHex(b.ID); err != nil {
			return err
		}
	}
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	if _, err := s.books.InsertOne(ctx, newBookDoc(b, id)); err != nil {
		return mapErr(err)
	}
	b.ID = id.Hex()
	return nil
}

func (s *Store) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	o, err := oid(id)
	if err != nil {
		return nil, err
	}
	var d bookDoc
	if err := s.books.FindOne(ctx, bson.M{"_id": o}).Decode(&d); err != nil {
		return nil, mapErr(err)
	}
	b := d.book()
	return &b, nil
}

func (s *Store) ListBooks(ctx context.Context, f domain.BookFilter) ([]domain.Book, error) {
	filter := bson.M{}
	if f.Genre != "" {
		filter["genre"] = bson.M{"$regex": "^" + regexQuote(f.Genre) + "$", "$options": "i"}
	}
	opts := options.Find().SetSort(bson.D{{Key: "title", Value: 1}, {Key: "_id", Value: 1}})
	if f.Limit > 0 {
		opts.SetSkip(int64(f.Offset)).SetLimit(int64(f.Limit))
	}
	cur, err := s.books.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []domain.Book{}
	for cur.Next(ctx) {
		var d bookDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, d.book())
	}
	return out, cur.Err()
}

func (s *Store) CountBooks(ctx context.Context) (int64, error) {
	return s.books.CountDocuments(ctx, bson.M{})
}

func (s *Store) UpdateBook(ctx context.Context, id string, p domain.BookPatch) (*domain.Book, error) {
	o, err := oid(id)
	if err != nil {
		return nil, err
	}
	set := bookSet(p)
	set["updatedAt"] = time.Now().UTC()
	var d bookDoc
	err = s.books.FindOneAndUpdate(ctx, bson.M{"_id": o}, bson.M{"$set": set}, afterUpdate).Decode(&d)
	if err != nil {
		return nil, mapErr(err)
	}
	b := d.book()
	return &b, nil
}

func (s *Store) DeleteBook(ctx context.Context, id string) error {
	o, err := oid(id)
	if err != nil {
		return err
	}
	res, err := s.books.DeleteOne(ctx, bson.M{"_id": o})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) SetRating(ctx context.Context, id string, agg domain.RatingAggregate) error {
	o, err := oid(id)
	if err != nil {
		return err
	}
	res, err := s.books.UpdateOne(ctx, bson.M{"_id": o}, bson.M{"$set": ratingSet(agg)})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) SwapRating(ctx context.Context, id string, prev, next domain.RatingAggregate) (bool, error) {
	o, err := oid(id)
	if err != nil {
		return false, err
	}
	filter := bson.M{
		"_id":          o,
		"rating":       eqOrMissing(prev.Rating, prev.Rating == 0),
		"totalRatings": eqOrMissing(prev.TotalRatings, prev.TotalRatings == 0),
		"ratingSource": eqOrMissing(prev.Source, prev.Source == ""),
	}
	res, err := s.books.UpdateOne(ctx, filter, bson.M{"$set": ratingSet(next)})
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

func (s *Store) AverageBookRating(ctx context.Context) (float64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: nil}, {Key: "avg", Value: bson.D{{Key: "$avg", Value: "$rating"}}}}}},
	}
	cur, err := s.books.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, err
	}
	defer cur.Close(ctx)

	var rows []struct {
		Avg *float64 `bson:"avg"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return 0, err
	}
	if len(rows) == 0 || rows[0].Avg == nil {
		return 0, nil
	}
	return *rows[0].Avg, nil
}

func ratingSet(agg domain.RatingAggregate) bson.M {
	return bson.M{
		"rating":       agg.Rating,
		"totalRatings": agg.TotalRatings,
		"ratingSource": agg.Source,
		"updatedAt":    time.Now().UTC(),
	}
}

func bookSet(p domain.BookPatch) bson.M {
	m := bson.M{}
	strs := map[string]*string{
		"title":         p.Title,
		"author":        p.Author,
		"description":   p.Description,
		"genre":         p.Genre,
		"coverImage":    p.CoverImage,
		"pdfUrl":        p.PDFURL,
		"publishedDate": p.PublishedDate,
		"isbn":          p.ISBN,
		"type":          p.Type,
		"format":        p.Format,
	}
	for k, v := range strs {
		if v != nil {
			m[k] = *v
		}
	}
	if p.Pages != nil {
		m["pages"] = *p.Pages
	}
	if p.Stock != nil {
		m["stock"] = *p.Stock
	}
	if p.PriceBuy != nil {
		m["priceBuy"] = *p.PriceBuy
	}
	if p.PriceRent != nil {
		m["priceRent"] = *p.PriceRent
	}
	return m
}
