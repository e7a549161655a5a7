package models

import (
	"time"

	"github.com/lib/pq"
)

// Review is one reviewer's opinion of a title. At most one review exists per
// (reviewer, title); the check happens at submission time under a lock on the
// title row rather than through a unique index.
type Review struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	ReviewerID  uint      `json:"reviewer_id" gorm:"not null;index:idx_reviews_title_reviewer,priority:2"`
	TitleID     uint      `json:"title_id" gorm:"not null;index:idx_reviews_title_reviewer,priority:1"`
	Rating      int       `json:"rating" gorm:"not null;check:rating >= 1 AND rating <= 5"`
	Description *string   `json:"description" gorm:"size:2000"`
	Active      bool      `json:"active" gorm:"default:true"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Relations
	Reviewer User  `json:"-" gorm:"foreignKey:ReviewerID;constraint:OnDelete:CASCADE"`
	Title    Title `json:"-" gorm:"foreignKey:TitleID"`
}

// ThrottleCounter is the request log of one throttle bucket, shared by every
// server instance. Hits holds the accepted request times in unix microseconds
// that are still inside the window; Blocked records whether the latest
// request was refused.
type ThrottleCounter struct {
	BucketKey string        `gorm:"primaryKey;size:255"`
	Hits      pq.Int64Array `gorm:"type:bigint[];not null;default:'{}'"`
	Blocked   bool          `gorm:"not null;default:false"`
	ExpiresAt time.Time     `gorm:"not null;index"`
}

func (ThrottleCounter) TableName() string {
	return "throttle_counters"
}
