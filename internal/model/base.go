package model

import (
	"time"

	"github.com/google/uuid"
)

// Base contains the store-maintained fields shared by persisted models
type Base struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Envelope is the frame pushed to real-time subscribers
type Envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}
