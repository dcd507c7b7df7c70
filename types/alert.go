package types

import (
	"gorm.io/gorm"
)

// AlertRule notifies its owner when a scouting observation matches. PestID 0
// matches any pest; an empty Field matches any field.
type AlertRule struct {
	gorm.Model
	UserID      uint   `json:"-"`
	PestID      uint   `json:"pestId"`
	MinSeverity int    `json:"minSeverity"`
	Field       string `json:"field"`
	Active      bool   `json:"active" gorm:"default:true"`
}

func (r AlertRule) Matches(run ScoutingRun, obs Observation) bool {
	if !r.Active {
		return false
	}
	if r.PestID != 0 && r.PestID != obs.PestID {
		return false
	}
	if r.Field != "" && r.Field != run.Field {
		return false
	}
	return obs.Severity >= r.MinSeverity
}
