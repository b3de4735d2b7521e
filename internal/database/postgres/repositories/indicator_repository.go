package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"powietrze-import/internal/models"
)

type IndicatorRepository struct {
	db *gorm.DB
}

func NewIndicatorRepository(db *gorm.DB) *IndicatorRepository {
	return &IndicatorRepository{db: db}
}

// FindOrCreate returns the indicator with the given (name, unit) pair,
// creating it when missing. Same name with a different unit is a separate
// indicator.
func (r *IndicatorRepository) FindOrCreate(ctx context.Context, name, unit string) (*models.Indicator, error) {
	var indicator models.Indicator

	err := r.db.WithContext(ctx).Where("name = ? AND unit = ?", name, unit).First(&indicator).Error
	if err == nil {
		return &indicator, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	indicator = models.Indicator{Name: name, Unit: unit}
	if err := r.db.WithContext(ctx).Create(&indicator).Error; err != nil {
		var existing models.Indicator
		if readErr := r.db.WithContext(ctx).Where("name = ? AND unit = ?", name, unit).First(&existing).Error; readErr == nil {
			return &existing, nil
		}
		return nil, err
	}

	return &indicator, nil
}

func (r *IndicatorRepository) FindAll(ctx context.Context) ([]models.Indicator, error) {
	var indicators []models.Indicator
	err := r.db.WithContext(ctx).Order("name, unit").Find(&indicators).Error
	return indicators, err
}
