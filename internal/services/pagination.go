package services

import "gorm.io/gorm"

const (
	TitlePageSize      = 2
	DefaultFilterLimit = 3
	MaxFilterLimit     = 5
)

// Page is a limit/offset window. A zero Limit means no limit.
type Page struct {
	Limit  int
	Offset int
}

// Normalize clamps the window: negative offsets become zero, a missing limit
// takes def and limits above max are capped. def 0 keeps "no limit".
func (p Page) Normalize(def, max int) Page {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = def
	}
	if max > 0 && p.Limit > max {
		p.Limit = max
	}
	return p
}

func (p Page) apply(query *gorm.DB) *gorm.DB {
	if p.Offset > 0 {
		query = query.Offset(p.Offset)
	}
	if p.Limit > 0 {
		query = query.Limit(p.Limit)
	}
	return query
}
