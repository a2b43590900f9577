package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func init() {
	registerForAutomigration(&Sequence{})
}

// Sequence is the catalog entry for one sequence file held by a store.
type Sequence struct {
	gorm.Model
	UUID      string `gorm:"uniqueIndex"`
	CacheKey  string `gorm:"index"`
	Width     int
	Height    int
	ColorType uint8
	AlphaType uint8
	RowBytes  int
	NumFrames int
	FrameRate float64
	Complete  bool
}

func (s *Sequence) BeforeCreate(tx *gorm.DB) error {
	if len(s.UUID) == 0 {
		s.UUID = uuid.NewString()
	}
	return nil
}

// Temporary reports whether the entry belongs to a keyless sequence.
func (s *Sequence) Temporary() bool {
	return len(s.CacheKey) == 0
}
