package domain

import "time"

// BookPatch is a partial update of catalog and commerce fields. Nil fields are
// left untouched. Rating fields are deliberately absent: only the rating
// aggregator writes them.
type BookPatch struct {
	Title         *string
	Author        *string
	Description   *string
	Genre         *string
	CoverImage    *string
	PDFURL        *string
	Pages         *int
	PublishedDate *string
	ISBN          *string
	Type          *string
	PriceBuy      *float64
	PriceRent     *float64
	Stock         *int
	Format        *string
}

// Empty reports whether the patch changes nothing.
func (p BookPatch) Empty() bool {
	return p.Title == nil && p.Author == nil && p.Description == nil && p.Genre == nil &&
		p.CoverImage == nil && p.PDFURL == nil && p.Pages == nil && p.PublishedDate == nil &&
		p.ISBN == nil && p.Type == nil && p.PriceBuy == nil && p.PriceRent == nil &&
		p.Stock == nil && p.Format == nil
}

// ReviewPatch is a partial update of a review.
type ReviewPatch struct {
	Rating  *int
	Comment *string
}

// Empty reports whether the patch changes nothing.
func (p ReviewPatch) Empty() bool { return p.Rating == nil && p.Comment == nil }

// UserPatch is a partial update of profile fields.
type UserPatch struct {
	Name            *string
	Email           *string
	Phone           *string
	Address         *string
	ProfileImageURL *string
}

// Empty reports whether the patch changes nothing.
func (p UserPatch) Empty() bool {
	return p.Name == nil && p.Email == nil && p.Phone == nil && p.Address == nil && p.ProfileImageURL == nil
}

// BookFilter narrows ListBooks. Zero values mean "no constraint".
type BookFilter struct {
	Genre  string
	Offset int
	Limit  int
}

// UserFilter narrows CountUsers.
//
// Role selects an exact role; ExcludeRole drops one; Since keeps users created
// at or after the given instant.
type UserFilter struct {
	Role        string
	ExcludeRole string
	Since       time.Time
}
