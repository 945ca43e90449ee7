package mongostore

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tbourn/go-library-backend/internal/domain"
)

var newestFirst = options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})

func (s *Store) CreateReview(ctx context.Context, r *domain.Review) error {
	id := primitive.NewObjectID()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	d := reviewDoc{
		ID:        id,
		BookID:    r.BookID,
		UserID:    r.UserID,
		UserName:  r.UserName,
		Rating:    r.Rating,
		Comment:   r.Comment,
		CreatedAt: r.CreatedAt,
	}
	if _, err := s.reviews.InsertOne(ctx, d); err != nil {
		return mapErr(err)
	}
	r.ID = id.Hex()
	return nil
}

func (s *Store) GetReview(ctx context.Context, id string) (*domain.Review, error) {
	o, err := oid(id)
	if err != nil {
		return nil, err
	}
	return s.findReview(ctx, bson.M{"_id": o})
}

func (s *Store) FindReview(ctx context.Context, bookID, userID string) (*domain.Review, error) {
	return s.findReview(ctx, bson.M{"bookId": bookID, "userId": userID})
}

func (s *Store) findReview(ctx context.Context, filter bson.M) (*domain.Review, error) {
	var d reviewDoc
	if err := s.reviews.FindOne(ctx, filter).Decode(&d); err != nil {
		return nil, mapErr(err)
	}
	r := d.review()
	return &r, nil
}

func (s *Store) ListReviewsByBook(ctx context.Context, bookID string) ([]domain.Review, error) {
	return s.listReviews(ctx, bson.M{"bookId": bookID})
}

func (s *Store) ListReviewsByUser(ctx context.Context, userID string) ([]domain.Review, error) {
	return s.listReviews(ctx, bson.M{"userId": userID})
}

func (s *Store) listReviews(ctx context.Context, filter bson.M) ([]domain.Review, error) {
	cur, err := s.reviews.Find(ctx, filter, newestFirst)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []domain.Review{}
	for cur.Next(ctx) {
		var d reviewDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, d.review())
	}
	return out, cur.Err()
}

func (s *Store) UpdateReview(ctx context.Context, id string, p domain.ReviewPatch) (*domain.Review, error) {
	o, err := oid(id)
	if err != nil {
		return nil, err
	}
	set := bson.M{}
	if p.Rating != nil {
		set["rating"] = *p.Rating
	}
	if p.Comment != nil {
		set["comment"] = strings.TrimSpace(*p.Comment)
	}
	if len(set) == 0 {
		return s.GetReview(ctx, id)
	}
	var d reviewDoc
	err = s.reviews.FindOneAndUpdate(ctx, bson.M{"_id": o}, bson.M{"$set": set}, afterUpdate).Decode(&d)
	if err != nil {
		return nil, mapErr(err)
	}
	r := d.review()
	return &r, nil
}

func (s *Store) DeleteReview(ctx context.Context, id string) error {
	o, err := oid(id)
	if err != nil {
		return err
	}
	res, err := s.reviews.DeleteOne(ctx, bson.M{"_id": o})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteReviewsByBook(ctx context.Context, bookID string) (int64, error) {
	res, err := s.reviews.DeleteMany(ctx, bson.M{"bookId": bookID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (s *Store) RatingsForBook(ctx context.Context, bookID string) ([]int, error) {
	cur, err := s.reviews.Find(ctx, bson.M{"bookId": bookID}, options.Find().SetProjection(bson.M{"rating": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []int{}
	for cur.Next(ctx) {
		var row struct {
			Rating float64 `bson:"rating"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out = append(out, int(row.Rating))
	}
	return out, cur.Err()
}

func (s *Store) CountReviews(ctx context.Context, since time.Time) (int64, error) {
	filter := bson.M{}
	if !since.IsZero() {
		filter["createdAt"] = bson.M{"$gte": since}
	}
	return s.reviews.CountDocuments(ctx, filter)
}
