package models

// Station is a measuring station, addressed by its unique natural code.
// Stations are created lazily on first sighting and never updated or deleted
// by the pipeline.
type Station struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Code string `gorm:"uniqueIndex;not null" json:"code"`
}
