package model

import "time"

// Mapping represents a shortened URL entry in the system
type Mapping struct {
	ID             int64      `json:"-" db:"id"`
	OriginalURL    string     `json:"url" db:"original_url"`
	ShortCode      string     `json:"short_code" db:"short_code"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	ExpirationTime *time.Time `json:"expires_at,omitempty" db:"expiration_time"`
}

// Expired reports whether the mapping is logically expired at the given
// instant. A nil ExpirationTime means the mapping never expires. Expired
// rows may still exist physically until swept.
func (m *Mapping) Expired(now time.Time) bool {
	return m.ExpirationTime != nil && now.After(*m.ExpirationTime)
}
