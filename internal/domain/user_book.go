package domain

import "time"

// ReadingStatus tracks where a user is with a book.
type ReadingStatus string

// Reading statuses.
const (
	StatusWantToRead ReadingStatus = "want_to_read"
	StatusReading    ReadingStatus = "reading"
	StatusRead       ReadingStatus = "read"
)

// Valid reports whether s is a known status.
func (s ReadingStatus) Valid() bool {
	switch s {
	case StatusWantToRead, StatusReading, StatusRead:
		return true
	}
	return false
}

// UserBook is a book on a user's personal shelf. It either references a catalog
// book by BookID or describes a custom entry through the Custom* fields.
type UserBook struct {
	ID               string        `json:"id"`
	UserID           string        `json:"userId" validate:"required,max=128"`
	BookID           string        `json:"bookId,omitempty" validate:"required_without=CustomTitle,max=128"`
	CustomTitle      string        `json:"customTitle,omitempty" validate:"max=500"`
	CustomAuthor     string        `json:"customAuthor,omitempty" validate:"max=300"`
	CustomCoverImage string        `json:"customCoverImage,omitempty" validate:"omitempty,max=2048"`
	Status           ReadingStatus `json:"status" validate:"omitempty,oneof=want_to_read reading read"`
	PersonalRating   int           `json:"personalRating,omitempty" validate:"min=0,max=5"`
	Progress         int           `json:"progress,omitempty" validate:"min=0,max=100"`
	Notes            string        `json:"notes,omitempty" validate:"max=10000"`
	StartedAt        *time.Time    `json:"startedAt,omitempty"`
	CompletedAt      *time.Time    `json:"completedAt,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`

	// Book is the resolved catalog book. It is populated by listing helpers and
	// never persisted.
	Book *Book `json:"book,omitempty"`
}

// Kind implements Entity.
func (*UserBook) Kind() Kind { return KindUserBooks }

// EntityID implements Entity.
func (u *UserBook) EntityID() string { return u.ID }

// NaturalKey returns "userId/bookId", or "" for custom entries.
func (u *UserBook) NaturalKey() string { return PairKey(u.UserID, u.BookID) }

// IsCustom reports whether the entry describes a book outside the catalog.
func (u *UserBook) IsCustom() bool { return u.BookID == "" }

// InitTimestamps sets both CreatedAt and UpdatedAt to now.
func (u *UserBook) InitTimestamps() {
	now := Now()
	u.CreatedAt = now
	u.UpdatedAt = now
}
