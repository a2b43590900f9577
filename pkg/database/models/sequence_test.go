package models_test

import (
	"testing"

	"github.com/matryer/is"
	"github.com/tauraamui/framecache/pkg/database/models"
)

func TestEmptySequenceBeforeCreateShouldGenerateUUID(t *testing.T) {
	is := is.New(t)
	seq := models.Sequence{}

	is.NoErr(seq.BeforeCreate(nil))
	is.True(len(seq.UUID) > 0)
	is.True(seq.Temporary())
}

func TestPopulatedSequenceBeforeCreateKeepsUUID(t *testing.T) {
	is := is.New(t)
	seq := models.Sequence{UUID: "fixed-id", CacheKey: "/anims/intro.json.100x100"}

	is.NoErr(seq.BeforeCreate(nil))
	is.Equal(seq.UUID, "fixed-id")
	is.True(!seq.Temporary())
}
