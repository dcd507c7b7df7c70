package types

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	Name              string             `json:"name"`
	Email             string             `json:"email" gorm:"uniqueIndex"`
	Password          string             `json:"-"`
	Role              string             `json:"role"`
	PushSubscriptions []PushSubscription `json:"-"`
	ScoutingRuns      []ScoutingRun      `json:"-"`
	AlertRules        []AlertRule        `json:"-"`
	CreatedAt         time.Time          `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt         *time.Time         `json:"-" gorm:"autoUpdateTime"`
	DeletedAt         *time.Time         `json:"-"`
}

func (u User) IsAdmin() bool {
	return u.Role == "admin"
}
