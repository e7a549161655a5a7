// models/catalog.go
package models

import (
	"time"
)

// Platform is a streaming service that carries titles.
type Platform struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"size:20;not null;index"`
	About     string    `json:"about" gorm:"size:200;not null"`
	Website   string    `json:"website" gorm:"size:200;not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Deleting a platform removes its titles.
	Titles []Title `json:"-" gorm:"foreignKey:PlatformID;constraint:OnDelete:CASCADE"`
}

// Title is a watchable entry. AverageRating and NumberOfRatings are only ever
// written by review submission.
type Title struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	Title           string    `json:"title" gorm:"size:50;not null;index"`
	Storyline       string    `json:"storyline" gorm:"size:200;not null"`
	PlatformID      uint      `json:"platform_id" gorm:"not null;index"`
	AverageRating   float64   `json:"average_rating" gorm:"default:0;not null"`
	NumberOfRatings int       `json:"number_of_ratings" gorm:"default:0;not null;check:number_of_ratings >= 0"`
	PosterURL       string    `json:"poster_url"`
	PosterKey       string    `json:"-"`
	Active          bool      `json:"active" gorm:"default:true"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	Platform Platform `json:"-" gorm:"foreignKey:PlatformID"`
	Reviews  []Review `json:"-" gorm:"foreignKey:TitleID;constraint:OnDelete:CASCADE"`
}

// RecordRating folds a new rating into the aggregate. The first rating is
// adopted verbatim; every later one is averaged with the previous value only,
// so the result is not a cumulative mean.
func (t *Title) RecordRating(rating int) {
	if t.NumberOfRatings == 0 {
		t.AverageRating = float64(rating)
	} else {
		t.AverageRating = (t.AverageRating + float64(rating)) / 2
	}
	t.NumberOfRatings++
}

// Rating reports the aggregate, reading as zero while no rating exists.
func (t *Title) Rating() float64 {
	if t.NumberOfRatings == 0 {
		return 0
	}
	return t.AverageRating
}
