package model

import "time"

// SystemMarker is a named instant kept by the backend.
type SystemMarker struct {
	Name      string    `gorm:"primaryKey;size:64"`
	At        int64     `gorm:"not null"` // epoch ms
	UpdatedAt time.Time `gorm:"not null"`
}
