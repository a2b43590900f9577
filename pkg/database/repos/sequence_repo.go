package repos

import (
	"errors"

	"github.com/tauraamui/framecache/pkg/database/dbconn"
	"github.com/tauraamui/framecache/pkg/database/models"
	"github.com/tauraamui/xerror"
	"gorm.io/gorm"
)

type SequenceRepository struct {
	DB dbconn.GormWrapper
}

// Track records seq, replacing any entry with the same UUID.
func (r *SequenceRepository) Track(seq *models.Sequence) error {
	existing := models.Sequence{}
	err := r.DB.Where("uuid = ?", seq.UUID).First(&existing).Error()
	if err == nil {
		seq.ID = existing.ID
		seq.CreatedAt = existing.CreatedAt
		if err := r.DB.Save(seq).Error(); err != nil {
			return xerror.Errorf("unable to update sequence %s: %w", seq.UUID, err)
		}
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return xerror.Errorf("unable to look up sequence %s: %w", seq.UUID, err)
	}
	if err := r.DB.Create(seq).Error(); err != nil {
		return xerror.Errorf("unable to create sequence %s: %w", seq.UUID, err)
	}
	return nil
}

func (r *SequenceRepository) MarkComplete(uuid string) error {
	err := r.DB.Model(&models.Sequence{}).Where("uuid = ?", uuid).Update("complete", true).Error()
	if err != nil {
		return xerror.Errorf("unable to mark sequence %s complete: %w", uuid, err)
	}
	return nil
}

func (r *SequenceRepository) FindByUUID(uuid string) (models.Sequence, error) {
	seq := models.Sequence{}
	if err := r.DB.Where("uuid = ?", uuid).First(&seq).Error(); err != nil {
		return seq, xerror.Errorf("sequence of uuid %s not found", uuid)
	}
	return seq, nil
}

func (r *SequenceRepository) FindByKey(key string) ([]models.Sequence, error) {
	seqs := []models.Sequence{}
	if err := r.DB.Where("cache_key = ?", key).Find(&seqs).Error(); err != nil {
		return nil, xerror.Errorf("unable to find sequences of key %s: %w", key, err)
	}
	return seqs, nil
}

func (r *SequenceRepository) All() ([]models.Sequence, error) {
	seqs := []models.Sequence{}
	if err := r.DB.Find(&seqs).Error(); err != nil {
		return nil, xerror.Errorf("unable to list sequences: %w", err)
	}
	return seqs, nil
}

func (r *SequenceRepository) DeleteByUUID(uuid string) error {
	if err := r.DB.Unscoped().Where("uuid = ?", uuid).Delete(&models.Sequence{}).Error(); err != nil {
		return xerror.Errorf("unable to delete sequence %s: %w", uuid, err)
	}
	return nil
}
