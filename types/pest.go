package types

import (
	"gorm.io/gorm"
)

// Pest is a shared library entry covering pests, diseases and deficiencies.
type Pest struct {
	gorm.Model
	Name          string `json:"name" gorm:"uniqueIndex"`
	Category      string `json:"category" gorm:"default:'pest'"`
	Description   string `json:"description"`
	SeverityHint  string `json:"severityHint"`
	AffectedCrops string `json:"affectedCrops"`
}
