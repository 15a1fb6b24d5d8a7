package domain

import "time"

// Favorite marks a book as a favorite of a user. A user can favorite a book once.
type Favorite struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId" validate:"required,max=128"`
	BookID    string    `json:"bookId" validate:"required,max=128"`
	CreatedAt time.Time `json:"createdAt"`
}

// Kind implements Entity.
func (*Favorite) Kind() Kind { return KindFavorites }

// EntityID implements Entity.
func (f *Favorite) EntityID() string { return f.ID }

// NaturalKey returns "userId/bookId".
func (f *Favorite) NaturalKey() string { return PairKey(f.UserID, f.BookID) }

// PairKey formats a (user, book) natural key. It returns "" when either half is
// missing.
func PairKey(userID, bookID string) string {
	if userID == "" || bookID == "" {
		return ""
	}
	return userID + "/" + bookID
}
