package types

import (
	"gorm.io/gorm"
)

// PushSubscription is a browser-issued push registration. The endpoint is the
// natural key: push services may rotate keys for a stable endpoint, so
// re-subscribing upserts on it rather than inserting a second row.
type PushSubscription struct {
	gorm.Model
	UserID   uint   `json:"-"`
	Endpoint string `json:"endpoint" gorm:"uniqueIndex"`
	P256DH   string `json:"p256dh"`
	Auth     string `json:"auth"`
	Keys     string `json:"-"`
}
