package models

import "time"

type ImportStatus string

const (
	ImportStatusPending    ImportStatus = "pending"
	ImportStatusInProgress ImportStatus = "in_progress"
	ImportStatusCompleted  ImportStatus = "completed"
	ImportStatusFailed     ImportStatus = "failed"
)

// ImportFile tracks one spreadsheet member of one archive. The
// (archive_name, filename) pair is the unit of resumability: a completed row
// is skipped on rerun, a failed one can be reset back to pending.
type ImportFile struct {
	ID              uint         `gorm:"primaryKey" json:"id"`
	ArchiveName     string       `gorm:"uniqueIndex:uq_import_file;not null" json:"archive_name"`
	Filename        string       `gorm:"uniqueIndex:uq_import_file;not null" json:"filename"`
	Status          ImportStatus `gorm:"type:text;not null;default:pending" json:"status"`
	RecordsImported int          `gorm:"default:0" json:"records_imported"`
	RecordsSkipped  int          `gorm:"default:0" json:"records_skipped"`
	ErrorMessage    string       `json:"error_message"`
	CreatedAt       time.Time    `json:"created_at"`
	CompletedAt     *time.Time   `json:"completed_at"`
}
