package types

import (
	"time"

	"gorm.io/gorm"
)

type ScoutingRun struct {
	gorm.Model
	UserID       uint          `json:"-"`
	User         User          `json:"-"`
	Token        string        `json:"token" gorm:"uniqueIndex"`
	Field        string        `json:"field"`
	Crop         string        `json:"crop"`
	Notes        string        `json:"notes"`
	Observations []Observation `json:"observations"`
	CreatedAt    time.Time     `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt    *time.Time    `json:"-" gorm:"autoUpdateTime"`
	DeletedAt    *time.Time    `json:"-"`
}

type Observation struct {
	gorm.Model
	ScoutingRunID uint      `json:"-"`
	PestID        uint      `json:"pestId"`
	Pest          Pest      `json:"-"`
	Severity      int       `json:"severity"`
	Count         int       `json:"count"`
	Note          string    `json:"note"`
	CreatedAt     time.Time `json:"createdAt" gorm:"autoCreateTime"`
}
