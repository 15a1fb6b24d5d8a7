package domain

import "time"

// Book is a catalog entry.
type Book struct {
	ID            string    `json:"id"`
	Title         string    `json:"title" validate:"required,max=500"`
	Author        string    `json:"author" validate:"required,max=300"`
	ISBN          string    `json:"isbn,omitempty" validate:"omitempty,max=32"`
	Description   string    `json:"description,omitempty" validate:"max=10000"`
	CoverImage    string    `json:"coverImage,omitempty" validate:"omitempty,max=2048"`
	CoverURL      string    `json:"coverUrl,omitempty"` // alias of CoverImage, never stored
	PublishedYear int       `json:"publishedYear,omitempty" validate:"min=0,max=9999"`
	Publisher     string    `json:"publisher,omitempty" validate:"max=300"`
	PageCount     int       `json:"pageCount,omitempty" validate:"min=0"`
	Language      string    `json:"language,omitempty" validate:"max=16"`
	Genres        []string  `json:"genres" validate:"dive,max=100"`
	Rating        float64   `json:"rating,omitempty" validate:"min=0,max=5"`
	TotalRatings  int       `json:"totalRatings,omitempty" validate:"min=0"`
	CreatedBy     string    `json:"createdBy,omitempty"`
	UserGenerated bool      `json:"isUserGenerated"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Kind implements Entity.
func (*Book) Kind() Kind { return KindBooks }

// EntityID implements Entity.
func (b *Book) EntityID() string { return b.ID }

// NaturalKey returns the ISBN.
func (b *Book) NaturalKey() string { return b.ISBN }

// InitTimestamps sets both CreatedAt and UpdatedAt to now.
func (b *Book) InitTimestamps() {
	now := Now()
	b.CreatedAt = now
	b.UpdatedAt = now
}

// Touch updates UpdatedAt to now.
func (b *Book) Touch() {
	b.UpdatedAt = Now()
}

// SyncCover makes CoverURL mirror CoverImage.
func (b *Book) SyncCover() {
	b.CoverURL = b.CoverImage
}
