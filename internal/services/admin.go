package services

import (
	"context"
	"fmt"
	"time"

	"github.com/tbourn/go-library-backend/internal/domain"
)

// RecentWindow is the look-back window of the "recent" admin counters.
const RecentWindow = 30 * 24 * time.Hour

// AdminService computes the admin dashboard.
type AdminService struct {
	Books   BookStore
	Reviews ReviewStore
	Users   UserStore

	Now func() time.Time
}

// NewAdminService wires an AdminService over st.
func NewAdminService(st Store) *AdminService {
	return &AdminService{Books: st, Reviews: st, Users: st, Now: func() time.Time { return time.Now().UTC() }}
}

// Stats gathers the dashboard counters. Any failing query fails the whole
// call.
func (s *AdminService) Stats(ctx context.Context) (*domain.AdminStats, error) {
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now()
	}
	since := now.Add(-RecentWindow)

	st := &domain.AdminStats{LastUpdated: now}
	var err error
	fail := func(op string, err error) (*domain.AdminStats, error) {
		return nil, &Error{Kind: ErrStorage, Msg: "Failed to retrieve stats", Err: fmt.Errorf("%s: %w", op, err)}
	}

	if st.TotalUsers, err = s.Users.CountUsers(ctx, domain.UserFilter{ExcludeRole: domain.RoleAdmin}); err != nil {
		return fail("count users", err)
	}
	if st.TotalBooks, err = s.Books.CountBooks(ctx); err != nil {
		return fail("count books", err)
	}
	if st.TotalAdmins, err = s.Users.CountUsers(ctx, domain.UserFilter{Role: domain.RoleAdmin}); err != nil {
		return fail("count admins", err)
	}
	if st.TotalReviews, err = s.Reviews.CountReviews(ctx, time.Time{}); err != nil {
		return fail("count reviews", err)
	}
	if st.RecentUsers, err = s.Users.CountUsers(ctx, domain.UserFilter{ExcludeRole: domain.RoleAdmin, Since: since}); err != nil {
		return fail("count recent users", err)
	}
	if st.RecentReviews, err = s.Reviews.CountReviews(ctx, since); err != nil {
		return fail("count recent reviews", err)
	}
	avg, err := s.Books.AverageBookRating(ctx)
	if err != nil {
		return fail("average rating", err)
	}
	st.AverageRating = round(avg, 1)
	return st, nil
}
