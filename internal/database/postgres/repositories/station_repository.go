package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"powietrze-import/internal/models"
)

type StationRepository struct {
	db *gorm.DB
}

func NewStationRepository(db *gorm.DB) *StationRepository {
	return &StationRepository{db: db}
}

// FindOrCreate returns the station with the given code, creating it when it
// does not exist yet. The create is committed immediately so the unique index
// on code catches concurrent creators; on a duplicate-key race the row is
// re-read instead of failing the import.
func (r *StationRepository) FindOrCreate(ctx context.Context, code string) (*models.Station, error) {
	var station models.Station

	err := r.db.WithContext(ctx).Where("code = ?", code).First(&station).Error
	if err == nil {
		return &station, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	station = models.Station{Code: code}
	if err := r.db.WithContext(ctx).Create(&station).Error; err != nil {
		var existing models.Station
		if readErr := r.db.WithContext(ctx).Where("code = ?", code).First(&existing).Error; readErr == nil {
			return &existing, nil
		}
		return nil, err
	}

	return &station, nil
}

func (r *StationRepository) FindByCode(ctx context.Context, code string) (*models.Station, error) {
	var station models.Station
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&station).Error
	if err != nil {
		return nil, err
	}
	return &station, nil
}

func (r *StationRepository) FindAll(ctx context.Context) ([]models.Station, error) {
	var stations []models.Station
	err := r.db.WithContext(ctx).Order("code").Find(&stations).Error
	return stations, err
}
