package models

// Indicator is a measured quantity, e.g. PM10 in ug/m3. The same name under a
// different unit is a distinct indicator.
type Indicator struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"uniqueIndex:uq_indicator_name_unit;not null" json:"name"`
	Unit string `gorm:"uniqueIndex:uq_indicator_name_unit" json:"unit"`
}
