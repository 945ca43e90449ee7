package mongostore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/tbourn/go-library-backend/internal/domain"
)

func newMock(t *testing.T) *mtest.T {
	return mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
}

func bookNS(mt *mtest.T) string   { return mt.DB.Name() + "." + BooksCollection }
func reviewNS(mt *mtest.T) string { return mt.DB.Name() + "." + ReviewsCollection }

func TestBooks(t *testing.T) {
	mt := newMock(t)

	mt.Run("create assigns id", func(mt *mtest.T) {
		s := New(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		b := &domain.Book{Title: "Dune", Author: "Herbert", Type: "ebook", Format: "PDF", PriceBuy: 299, PriceRent: 99, Stock: 10}
		require.NoError(mt, s.CreateBook(context.Background(), b))
		assert.True(mt, domain.IsValidID(b.ID))
		assert.False(mt, b.CreatedAt.IsZero())
	})

	mt.Run("get fills commerce defaults", func(mt *mtest.T) {
		s := New(mt.DB)
		id := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, bookNS(mt), mtest.FirstBatch, bson.D{
			{Key: "_id", Value: id},
			{Key: "title", Value: "Dune"},
			{Key: "author", Value: "Herbert"},
			{Key: "rating", Value: 4.5},
			{Key: "totalRatings", Value: 2},
		}))

		b, err := s.GetBook(context.Background(), id.Hex())
		require.NoError(mt, err)
		assert.Equal(mt, id.Hex(), b.ID)
		assert.Equal(mt, 4.5, b.Rating)
		assert.Equal(mt, 2, b.TotalRatings)
		assert.Equal(mt, domain.DefaultPriceBuy, b.PriceBuy)
		assert.Equal(mt, domain.DefaultPriceRent, b.PriceRent)
		assert.Equal(mt, domain.DefaultStock, b.Stock)
		assert.Equal(mt, domain.DefaultBookType, b.Type)
		assert.Equal(mt, domain.DefaultFormat, b.Format)
	})

	mt.Run("get missing and malformed", func(mt *mtest.T) {
		s := New(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, bookNS(mt), mtest.FirstBatch))

		_, err := s.GetBook(context.Background(), primitive.NewObjectID().Hex())
		assert.ErrorIs(mt, err, domain.ErrNotFound)

		_, err = s.GetBook(context.Background(), "not-an-id")
		assert.ErrorIs(mt, err, domain.ErrNotFound)
	})

	mt.Run("update returns new document", func(mt *mtest.T) {
		s := New(mt.DB)
		id := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: bson.D{
			{Key: "_id", Value: id},
			{Key: "title", Value: "Dune Messiah"},
			{Key: "author", Value: "Herbert"},
		}}))

		title := "Dune Messiah"
		b, err := s.UpdateBook(context.Background(), id.Hex(), domain.BookPatch{Title: &title})
		require.NoError(mt, err)
		assert.Equal(mt, "Dune Messiah", b.Title)
	})

	mt.Run("update missing", func(mt *mtest.T) {
		s := New(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}))

		title := "x"
		_, err := s.UpdateBook(context.Background(), primitive.NewObjectID().Hex(), domain.BookPatch{Title: &title})
		assert.ErrorIs(mt, err, domain.ErrNotFound)
	})

	mt.Run("delete missing", func(mt *mtest.T) {
		s := New(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))
		err := s.DeleteBook(context.Background(), primitive.NewObjectID().Hex())
		assert.ErrorIs(mt, err, domain.ErrNotFound)
	})

	mt.Run("list decodes every document", func(mt *mtest.T) {
		s := New(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, bookNS(mt), mtest.FirstBatch,
			bson.D{{Key: "_id", Value: primitive.NewObjectID()}, {Key: "title", Value: "A"}},
			bson.D{{Key: "_id", Value: primitive.NewObjectID()}, {Key: "title", Value: "B"}},
		))
		books, err := s.ListBooks(context.Background(), domain.BookFilter{Genre: "Sci-Fi"})
		require.NoError(mt, err)
		require.Len(mt, books, 2)
		assert.Equal(mt, "A", books[0].Title)
	})
}

func TestSwapRating(t *testing.T) {
	mt := newMock(t)
	prev := domain.RatingAggregate{}
	next := domain.RatingAggregate{Rating: 4, TotalRatings: 1, Source: domain.RatingSourceQuick}

	mt.Run("matched", func(mt *mtest.T) {
		s := New(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))
		ok, err := s.SwapRating(context.Background(), primitive.NewObjectID().Hex(), prev, next)
		require.NoError(mt, err)
		assert.True(mt, ok)

		cmd := mt.GetStartedEvent().Command
		assert.Contains(mt, cmd.String(), `"totalRatings"`)
	})

	mt.Run("lost race", func(mt *mtest.T) {
		s := New(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))
		ok, err := s.SwapRating(context.Background(), primitive.NewObjectID().Hex(), prev, next)
		require.NoError(mt, err)
		assert.False(mt, ok)
	})

	mt.Run("set rating on missing book", func(mt *mtest.T) {
		s := New(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))
		err := s.SetRating(context.Background(), primitive.NewObjectID().Hex(), next)
		assert.ErrorIs(mt, err, domain.ErrNotFound)
	})
}

func TestAverageBookRating(t *testing.T) {
	mt := newMock(t)

	mt.Run("value", func(mt *mtest.T) {
		s := New(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, bookNS(mt), mtest.FirstBatch,
			bson.D{{Key: "_id", Value: nil}, {Key: "avg", Value: 3.25}}))
		avg, err := s.AverageBookRating(context.Background())
		require.NoError(mt, err)
		assert.Equal(mt, 3.25, avg)
	})

	mt.Run("no books", func(mt *mtest.T) {
		s := New(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, bookNS(mt), mtest.FirstBatch))
		avg, err := s.AverageBookRating(context.Background())
		require.NoError(mt, err)
		assert.Zero(mt, avg)
	})
}

func TestReviews(t *testing.T) {
	mt := newMock(t)
	bookID := primitive.NewObjectID().Hex()

	mt.Run("duplicate maps to ErrDuplicate", func(mt *mtest.T) {
		s := New(mt.DB)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index: 0, Code: 11000, Message: "E11000 duplicate key error",
		}))
		err := s.CreateReview(context.Background(), &domain.Review{BookID: bookID, UserID: "u1", UserName: "Ann", Rating: 4, Comment: "c"})
		assert.ErrorIs(mt, err, domain.ErrDuplicate)
	})

	mt.Run("list newest first as returned", func(mt *mtest.T) {
		s := New(mt.DB)
		now := time.Now().UTC().Truncate(time.Millisecond)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, reviewNS(mt), mtest.FirstBatch,
			bson.D{{Key: "_id", Value: primitive.NewObjectID()}, {Key: "bookId", Value: bookID}, {Key: "userId", Value: "u2"}, {Key: "rating", Value: 5}, {Key: "createdAt", Value: now}},
			bson.D{{Key: "_id", Value: primitive.NewObjectID()}, {Key: "bookId", Value: bookID}, {Key: "userId", Value: "u1"}, {Key: "rating", Value: 3}, {Key: "createdAt", Value: now.Add(-time.Hour)}},
		))
		list, err := s.ListReviewsByBook(context.Background(), bookID)
		require.NoError(mt, err)
		require.Len(mt, list, 2)
		assert.Equal(mt, "u2", list[0].UserID)
		assert.Equal(mt, 5, list[0].Rating)
	})

	mt.Run("empty list is non-nil", func(mt *mtest.T) {
		s := New(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, reviewNS(mt), mtest.FirstBatch))
		list, err := s.ListReviewsByUser(context.Background(), "nobody")
		require.NoError(mt, err)
		assert.NotNil(mt, list)
		assert.Empty(mt, list)
	})

	mt.Run("ratings truncate doubles", func(mt *mtest.T) {
		s := New(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, reviewNS(mt), mtest.FirstBatch,
			bson.D{{Key: "_id", Value: primitive.NewObjectID()}, {Key: "rating", Value: 4}},
			bson.D{{Key: "_id", Value: primitive.NewObjectID()}, {Key: "rating", Value: 2.9}},
		))
		ratings, err := s.RatingsForBook(context.Background(), bookID)
		require.NoError(mt, err)
		assert.Equal(mt, []int{4, 2}, ratings)
	})

	mt.Run("count", func(mt *mtest.T) {
		s := New(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, reviewNS(mt), mtest.FirstBatch, bson.D{{Key: "n", Value: int64(7)}}))
		n, err := s.CountReviews(context.Background(), time.Now().Add(-30*24*time.Hour))
		require.NoError(mt, err)
		assert.Equal(mt, int64(7), n)
	})

	mt.Run("find missing", func(mt *mtest.T) {
		s := New(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, reviewNS(mt), mtest.FirstBatch))
		_, err := s.FindReview(context.Background(), bookID, "u9")
		assert.ErrorIs(mt, err, domain.ErrNotFound)
	})
}

func TestUsersAndIdempotency(t *testing.T) {
	mt := newMock(t)

	mt.Run("create normalizes email", func(mt *mtest.T) {
		s := New(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		u := &domain.User{Name: "Ann", Email: " Ann@X.io ", Password: "hash"}
		require.NoError(mt, s.CreateUser(context.Background(), u))
		assert.Equal(mt, "ann@x.io", u.Email)
		assert.Equal(mt, domain.RoleUser, u.Role)
	})

	mt.Run("legacy user without role", func(mt *mtest.T) {
		s := New(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, mt.DB.Name()+"."+UsersCollection, mtest.FirstBatch,
			bson.D{{Key: "_id", Value: primitive.NewObjectID()}, {Key: "email", Value: "a@x.io"}, {Key: "password", Value: "h"}}))
		u, err := s.GetUserByEmail(context.Background(), "A@x.io")
		require.NoError(mt, err)
		assert.Equal(mt, domain.RoleUser, u.Role)
	})

	mt.Run("idempotency hit", func(mt *mtest.T) {
		s := New(mt.DB)
		exp := time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, mt.DB.Name()+"."+IdempotencyCollection, mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "r1"}, {Key: "subject", Value: "u1"}, {Key: "bookId", Value: "b1"}, {Key: "key", Value: "k1"},
				{Key: "status", Value: 200}, {Key: "response", Value: `{"rating":4}`}, {Key: "expiresAt", Value: exp}}))
		rec, err := s.GetIdempotency(context.Background(), "u1", "b1", "k1", time.Now())
		require.NoError(mt, err)
		assert.Equal(mt, `{"rating":4}`, rec.Response)
		assert.Equal(mt, 200, rec.Status)
	})

	mt.Run("idempotency duplicate", func(mt *mtest.T) {
		s := New(mt.DB)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}),
			mtest.CreateWriteErrorsResponse(mtest.WriteError{Code: 11000, Message: "E11000 duplicate key error"}),
		)
		now := time.Now().UTC()
		err := s.CreateIdempotency(context.Background(), &domain.Idempotency{Subject: "u1", BookID: "b1", Key: "k1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)})
		assert.ErrorIs(mt, err, domain.ErrDuplicate)
	})
}

func TestRegexQuote(t *testing.T) {
	assert.Equal(t, "Sci-Fi", regexQuote("Sci-Fi"))
	assert.Equal(t, `a\.b\*`, regexQuote("a.b*"))
}
