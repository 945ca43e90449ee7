// Package services – UserService
//
// UserService covers registration, password login (regular and admin), the
// first-admin bootstrap, profile reads and updates, and profile pictures.
package services

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tbourn/go-library-backend/internal/auth"
	"github.com/tbourn/go-library-backend/internal/domain"
	"github.com/tbourn/go-library-backend/internal/media"
)

var validate = validator.New()

// NewUser is the input of Register and CreateAdmin.
type NewUser struct {
	Name     string
	Email    string
	Password string
	Phone    string
	Address  string
}

// Session is the result of a successful login.
type Session struct {
	Token string
	User  *domain.User
}

// UserService manages accounts.
type UserService struct {
	Users  UserStore
	Tokens *auth.Tokens
	Hasher *auth.Hasher
	Images *media.Processor
}

// NewUserService wires a UserService.
func NewUserService(st UserStore, tokens *auth.Tokens, hasher *auth.Hasher, images *media.Processor) *UserService {
	if hasher == nil {
		hasher = auth.NewHasher(0)
	}
	if images == nil {
		images = media.NewProcessor(0)
	}
	return &UserService{Users: st, Tokens: tokens, Hasher: hasher, Images: images}
}

// Register creates a regular user.
func (s *UserService) Register(ctx context.Context, in NewUser) (*domain.User, error) {
	return s.create(ctx, in, domain.RoleUser)
}

// CreateAdmin creates an admin account. Anyone may call it while no admin
// exists; afterwards only an admin (callerIsAdmin) may.
func (s *UserService) CreateAdmin(ctx context.Context, in NewUser, callerIsAdmin bool) (*domain.User, error) {
	if !callerIsAdmin {
		n, err := s.Users.CountUsers(ctx, domain.UserFilter{Role: domain.RoleAdmin})
		if err != nil {
			return nil, storageErr("count admins", err)
		}
		if n > 0 {
			return nil, forbiddenErr("Admin access required")
		}
	}
	return s.create(ctx, in, domain.RoleAdmin)
}

func (s *UserService) create(ctx context.Context, in NewUser, role string) (*domain.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	switch {
	case in.Name == "":
		return nil, validationErr("name is required")
	case in.Email == "":
		return nil, validationErr("email is required")
	case in.Password == "":
		return nil, validationErr("password is required")
	}
	if err := validate.Var(in.Email, "email"); err != nil {
		return nil, validationErr("Invalid email address")
	}

	if _, err := s.Users.GetUserByEmail(ctx, in.Email); err == nil {
		return nil, conflictErr("User already exists")
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, storageErr("get user by email", err)
	}

	hash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		return nil, validationErr("Invalid password")
	}
	u := &domain.User{
		Name:     in.Name,
		Email:    in.Email,
		Password: hash,
		Phone:    strings.TrimSpace(in.Phone),
		Address:  strings.TrimSpace(in.Address),
		Role:     role,
	}
	if err := s.Users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return nil, conflictErr("User already exists")
		}
		return nil, storageErr("create user", err)
	}
	return u, nil
}

// Login checks email and password and issues a token.
func (s *UserService) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.credentials(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.session(u, false)
}

// AdminLogin is Login restricted to admins; its token uses the admin TTL.
func (s *UserService) AdminLogin(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, validationErr("Email and password required")
	}
	u, err := s.Users.GetUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, storageErr("get user by email", err)
	}
	if u == nil || !u.IsAdmin() {
		return nil, notFoundErr("Admin not found")
	}
	if !s.Hasher.Check(u.Password, password) {
		return nil, unauthorizedErr("Incorrect password")
	}
	return s.session(u, true)
}

func (s *UserService) credentials(ctx context.Context, email, password string) (*domain.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, validationErr("Email and password required")
	}
	u, err := s.Users.GetUserByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, notFoundErr("User not found")
	}
	if err != nil {
		return nil, storageErr("get user by email", err)
	}
	if !s.Hasher.Check(u.Password, password) {
		return nil, unauthorizedErr("Incorrect password")
	}
	return u, nil
}

func (s *UserService) session(u *domain.User, admin bool) (*Session, error) {
	tok, err := s.Tokens.Issue(u, admin)
	if err != nil {
		return nil, &Error{Kind: ErrStorage, Err: err}
	}
	return &Session{Token: tok, User: u}, nil
}

// Get returns user id.
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	if !domain.IsValidID(id) {
		return nil, validationErr("Invalid user id")
	}
	u, err := s.Users.GetUser(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, notFoundErr("User not found")
	}
	if err != nil {
		return nil, storageErr("get user", err)
	}
	return u, nil
}

// List returns every user, newest first.
func (s *UserService) List(ctx context.Context) ([]domain.User, error) {
	out, err := s.Users.ListUsers(ctx)
	if err != nil {
		return nil, storageErr("list users", err)
	}
	if out == nil {
		out = []domain.User{}
	}
	return out, nil
}

// Update applies a partial profile update. An empty patch returns the user
// unchanged.
func (s *UserService) Update(ctx context.Context, id string, p domain.UserPatch) (*domain.User, error) {
	if !domain.IsValidID(id) {
		return nil, validationErr("Invalid user id")
	}
	if p.Empty() {
		return s.Get(ctx, id)
	}
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return nil, validationErr("name is required")
	}
	if p.Email != nil {
		e := normalizeEmail(*p.Email)
		if err := validate.Var(e, "required,email"); err != nil {
			return nil, validationErr("Invalid email address")
		}
		p.Email = &e
	}
	return s.update(ctx, id, p)
}

// SetProfileImage stores the upload read from r as the user's profile image
// and returns its data URL.
func (s *UserService) SetProfileImage(ctx context.Context, id, filename string, r io.Reader) (string, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return "", err
	}
	url, err := s.Images.DataURL(filename, r)
	switch {
	case errors.Is(err, media.ErrUnsupportedType):
		return "", validationErr("Invalid file type. Only PNG, JPG, JPEG, GIF allowed")
	case errors.Is(err, media.ErrEmpty):
		return "", validationErr("No file selected")
	case errors.Is(err, media.ErrContentMismatch):
		return "", validationErr("Image content does not match its file type")
	case err != nil:
		return "", validationErr("Could not read image")
	}
	if _, err := s.update(ctx, id, domain.UserPatch{ProfileImageURL: &url}); err != nil {
		return "", err
	}
	return url, nil
}

// ClearProfileImage removes the user's profile image.
func (s *UserService) ClearProfileImage(ctx context.Context, id string) error {
	if !domain.IsValidID(id) {
		return validationErr("Invalid user id")
	}
	empty := ""
	_, err := s.update(ctx, id, domain.UserPatch{ProfileImageURL: &empty})
	return err
}

func (s *UserService) update(ctx context.Context, id string, p domain.UserPatch) (*domain.User, error) {
	u, err := s.Users.UpdateUser(ctx, id, p)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil, notFoundErr("User not found")
	case errors.Is(err, domain.ErrDuplicate):
		return nil, conflictErr("Email already in use")
	case err != nil:
		return nil, storageErr("update user", err)
	}
	return u, nil
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
