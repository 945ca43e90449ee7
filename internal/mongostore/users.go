package mongostore

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tbourn/go-library-backend/internal/domain"
)

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	id := primitive.NewObjectID()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if u.Role == "" {
		u.Role = domain.RoleUser
	}
	u.Email = normalizeEmail(u.Email)
	d := userDoc{
		ID:              id,
		Name:            u.Name,
		Email:           u.Email,
		Password:        u.Password,
		Phone:           u.Phone,
		Address:         u.Address,
		ProfileImageURL: u.ProfileImageURL,
		Role:            u.Role,
		CreatedAt:       u.CreatedAt,
	}
	if _, err := s.users.InsertOne(ctx, d); err != nil {
		return mapErr(err)
	}
	u.ID = id.Hex()
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	o, err := oid(id)
	if err != nil {
		return nil, err
	}
	return s.findUser(ctx, bson.M{"_id": o})
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.findUser(ctx, bson.M{"email": normalizeEmail(email)})
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (*domain.User, error) {
	var d userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&d); err != nil {
		return nil, mapErr(err)
	}
	u := d.user()
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	cur, err := s.users.Find(ctx, bson.M{}, newestFirst)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []domain.User{}
	for cur.Next(ctx) {
		var d userDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, d.user())
	}
	return out, cur.Err()
}

func (s *Store) UpdateUser(ctx context.Context, id string, p domain.UserPatch) (*domain.User, error) {
	o, err := oid(id)
	if err != nil {
		return nil, err
	}
	set := bson.M{}
	if p.Name != nil {
		set["name"] = *p.Name
	}
	if p.Email != nil {
		set["email"] = normalizeEmail(*p.Email)
	}
	if p.Phone != nil {
		set["phone"] = *p.Phone
	}
	if p.Address != nil {
		set["address"] = *p.Address
	}
	if p.ProfileImageURL != nil {
		set["profileImageUrl"] = *p.ProfileImageURL
	}
	if len(set) == 0 {
		return s.GetUser(ctx, id)
	}
	var d userDoc
	err = s.users.FindOneAndUpdate(ctx, bson.M{"_id": o}, bson.M{"$set": set}, afterUpdate).Decode(&d)
	if err != nil {
		return nil, mapErr(err)
	}
	u := d.user()
	return &u, nil
}

func (s *Store) CountUsers(ctx context.Context, f domain.UserFilter) (int64, error) {
	filter := bson.M{}
	switch {
	case f.Role != "":
		filter["role"] = f.Role
	case f.ExcludeRole != "":
		filter["role"] = bson.M{"$ne": f.ExcludeRole}
	}
	if !f.Since.IsZero() {
		filter["createdAt"] = bson.M{"$gte": f.Since}
	}
	return s.users.CountDocuments(ctx, filter)
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// regexQuote escapes s for use inside a $regex pattern.
func regexQuote(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`\.+*?()|[]{}^$`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
