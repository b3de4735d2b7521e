package models

import "time"

// Measurement is the fact row. The (station, indicator, averaging_time,
// measured_at) tuple is globally unique; re-importing the same tuple
// overwrites value and import_file_id instead of duplicating the row.
type Measurement struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	StationID     uint      `gorm:"uniqueIndex:uq_measurement;index:ix_measurement_station_indicator;not null" json:"station_id"`
	IndicatorID   uint      `gorm:"uniqueIndex:uq_measurement;index:ix_measurement_station_indicator;not null" json:"indicator_id"`
	ImportFileID  uint      `gorm:"not null" json:"import_file_id"`
	AveragingTime string    `gorm:"uniqueIndex:uq_measurement;not null" json:"averaging_time"`
	MeasuredAt    time.Time `gorm:"uniqueIndex:uq_measurement;index:ix_measurement_measured_at;not null" json:"measured_at"`
	Value         float64   `gorm:"type:numeric(10,2)" json:"value"`

	Station    *Station    `gorm:"foreignKey:StationID" json:"station,omitempty"`
	Indicator  *Indicator  `gorm:"foreignKey:IndicatorID" json:"indicator,omitempty"`
	ImportFile *ImportFile `gorm:"foreignKey:ImportFileID" json:"import_file,omitempty"`
}
