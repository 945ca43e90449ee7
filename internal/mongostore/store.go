// Package mongostore implements the service store contracts on MongoDB, the
// default backend. Documents use camelCase field names and ObjectID keys so
// that existing library databases are readable as-is.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/tbourn/go-library-backend/internal/domain"
)

// Collection names.
const (
	BooksCollection       = "books"
	ReviewsCollection     = "reviews"
	UsersCollection       = "users"
	IdempotencyCollection = "idempotency"
)

// Store is a MongoDB-backed implementation of every store contract.
type Store struct {
	client  *mongo.Client
	books   *mongo.Collection
	reviews *mongo.Collection
	users   *mongo.Collection
	idem    *mongo.Collection
}

// Open connects to uri, verifies the connection, and returns a Store over
// database dbName.
func Open(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return New(client.Database(dbName)), nil
}

// New wraps an existing database handle.
func New(db *mongo.Database) *Store {
	return &Store{
		client:  db.Client(),
		books:   db.Collection(BooksCollection),
		reviews: db.Collection(ReviewsCollection),
		users:   db.Collection(UsersCollection),
		idem:    db.Collection(IdempotencyCollection),
	}
}

// EnsureIndexes creates the indexes the store relies on. It is idempotent.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	plan := []struct {
		coll   *mongo.Collection
		models []mongo.IndexModel
	}{
		{s.reviews, []mongo.IndexModel{
			{Keys: bson.D{{Key: "bookId", Value: 1}, {Key: "userId", Value: 1}}, Options: options.Index().SetUnique(true).SetName("ux_reviews_book_user")},
			{Keys: bson.D{{Key: "bookId", Value: 1}, {Key: "createdAt", Value: -1}}, Options: options.Index().SetName("idx_reviews_book_created")},
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}, Options: options.Index().SetName("idx_reviews_user")},
		}},
		{s.users, []mongo.IndexModel{
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetName("ux_users_email")},
		}},
		{s.books, []mongo.IndexModel{
			{Keys: bson.D{{Key: "genre", Value: 1}}, Options: options.Index().SetName("idx_books_genre")},
		}},
		{s.idem, []mongo.IndexModel{
			{Keys: bson.D{{Key: "subject", Value: 1}, {Key: "bookId", Value: 1}, {Key: "key", Value: 1}}, Options: options.Index().SetUnique(true).SetName("ux_subject_book_key")},
			{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0).SetName("ttl_expires_at")},
		}},
	}
	for _, ix := range plan {
		if _, err := ix.coll.Indexes().CreateMany(ctx, ix.models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", ix.coll.Name(), err)
		}
	}
	return nil
}

// Ping checks the primary is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.client.Ping(ctx, readpref.Primary()) }

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error { return s.client.Disconnect(ctx) }

// oid parses a hex id. Malformed ids can never match a document, so they are
// reported as not found.
func oid(id string) (primitive.ObjectID, error) {
	o, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, domain.ErrNotFound
	}
	return o, nil
}

// mapErr translates driver errors into the store sentinels.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return domain.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return domain.ErrDuplicate
	default:
		return err
	}
}

// eqOrMissing matches v, or an absent field when v is the zero value. Older
// documents may predate a field entirely.
func eqOrMissing(v any, zero bool) any {
	if zero {
		return bson.M{"$in": bson.A{v, nil}}
	}
	return v
}

var afterUpdate = options.FindOneAndUpdate().SetReturnDocument(options.After)
