package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"powietrze-import/internal/models"
)

// ErrAlreadyCompleted is returned by MarkInProgress when the file finished in
// another run between the completed-check and the claim.
var ErrAlreadyCompleted = errors.New("import file already completed")

type ImportFileRepository struct {
	db *gorm.DB
}

func NewImportFileRepository(db *gorm.DB) *ImportFileRepository {
	return &ImportFileRepository{db: db}
}

func (r *ImportFileRepository) GetOrCreate(ctx context.Context, archiveName, filename string) (*models.ImportFile, error) {
	var file models.ImportFile

	err := r.db.WithContext(ctx).
		Where("archive_name = ? AND filename = ?", archiveName, filename).
		First(&file).Error
	if err == nil {
		return &file, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	file = models.ImportFile{
		ArchiveName: archiveName,
		Filename:    filename,
		Status:      models.ImportStatusPending,
	}
	if err := r.db.WithContext(ctx).Create(&file).Error; err != nil {
		var existing models.ImportFile
		if readErr := r.db.WithContext(ctx).
			Where("archive_name = ? AND filename = ?", archiveName, filename).
			First(&existing).Error; readErr == nil {
			return &existing, nil
		}
		return nil, err
	}

	return &file, nil
}

func (r *ImportFileRepository) IsCompleted(ctx context.Context, archiveName, filename string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ImportFile{}).
		Where("archive_name = ? AND filename = ? AND status = ?",
			archiveName, filename, models.ImportStatusCompleted).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MarkInProgress claims the file for processing. The update is conditional on
// the file not being completed, so a run that lost the race to a finished
// sibling does not reprocess it.
func (r *ImportFileRepository) MarkInProgress(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Model(&models.ImportFile{}).
		Where("id = ? AND status <> ?", id, models.ImportStatusCompleted).
		Updates(map[string]interface{}{
			"status":        models.ImportStatusInProgress,
			"error_message": "",
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("claim import file %d: %w", id, ErrAlreadyCompleted)
	}
	return nil
}

func (r *ImportFileRepository) MarkCompleted(ctx context.Context, id uint, imported, skipped int) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&models.ImportFile{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":           models.ImportStatusCompleted,
			"records_imported": imported,
			"records_skipped":  skipped,
			"completed_at":     &now,
		}).Error
}

func (r *ImportFileRepository) MarkFailed(ctx context.Context, id uint, message string) error {
	return r.db.WithContext(ctx).Model(&models.ImportFile{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        models.ImportStatusFailed,
			"error_message": message,
		}).Error
}

// ResetFailed moves failed and stuck in-progress files back to pending so the
// next run retries them. Returns the number of files reset.
func (r *ImportFileRepository) ResetFailed(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.ImportFile{}).
		Where("status IN ?", []models.ImportStatus{
			models.ImportStatusFailed,
			models.ImportStatusInProgress,
		}).
		Updates(map[string]interface{}{
			"status":        models.ImportStatusPending,
			"error_message": "",
			"completed_at":  nil,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *ImportFileRepository) FindByStatus(ctx context.Context, status models.ImportStatus) ([]models.ImportFile, error) {
	var files []models.ImportFile
	err := r.db.WithContext(ctx).Where("status = ?", status).Order("id").Find(&files).Error
	return files, err
}
