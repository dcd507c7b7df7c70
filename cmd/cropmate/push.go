package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cropmate/cropmate/lib/pushsender"
	"github.com/cropmate/cropmate/types"
)

// testPushLimit caps how many of the caller's devices a test send fans out to.
const testPushLimit = 10

type subscribeRequest struct {
	Endpoint       string   `json:"endpoint" validate:"required,url"`
	ExpirationTime *float64 `json:"expirationTime"`
	Keys           struct {
		P256DH string `json:"p256dh" validate:"required"`
		Auth   string `json:"auth" validate:"required"`
	} `json:"keys"`
}

func vapidPublicKey(cfg types.Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"key": cfg.VapidPublicKey})
	}
}

func saveSubscription(db *gorm.DB) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, ok := GetSessionUser(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		}

		var req subscribeRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": errors.Wrap(err, "binding subscription").Error()})
		}
		if err := validate.Struct(req); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}

		keys, err := json.Marshal(req.Keys)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": errors.Wrap(err, "marshalling subscription keys").Error()})
		}

		pushSubscription := types.PushSubscription{
			UserID:   user.ID,
			Endpoint: req.Endpoint,
			P256DH:   req.Keys.P256DH,
			Auth:     req.Keys.Auth,
			Keys:     string(keys),
		}

		// The endpoint is the natural key: push services rotate encryption keys
		// for a stable endpoint, so a re-subscribe overwrites in place.
		err = db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_id", "p256_dh", "auth", "keys", "updated_at", "deleted_at"}),
		}).Create(&pushSubscription).Error
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": errors.Wrap(err, "saving subscription").Error()})
		}

		return c.JSON(http.StatusOK, echo.Map{"ok": true})
	}
}

func removeSubscription(db *gorm.DB) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, ok := GetSessionUser(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		}

		if err := db.Where("user_id = ?", user.ID).Delete(&types.PushSubscription{}).Error; err != nil {
			return errors.Wrap(err, "removing subscription")
		}

		return c.JSON(http.StatusOK, echo.Map{"ok": true})
	}
}

func testPush(cfg types.Config, db *gorm.DB, sender *pushsender.Sender) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, ok := GetSessionUser(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Not authenticated"})
		}

		var subs []types.PushSubscription
		if err := db.Where("user_id = ?", user.ID).Limit(testPushLimit).Find(&subs).Error; err != nil {
			return errors.Wrap(err, "finding subscriptions")
		}

		payload := pushsender.Payload{
			Title: "CropMate",
			Body:  "Test notification: push alerts are working on this device.",
			Icon:  fmt.Sprintf("https://%s/static/icon-192.png", cfg.Hostname),
			Badge: fmt.Sprintf("https://%s/static/badge-128.png", cfg.Hostname),
			Tag:   "cropmate-test",
			URL:   "/",
		}

		// Partial failure is a normal outcome: every subscription is attempted
		// and count reports the attempts, not the successes.
		report := sender.SendAll(subs, payload)
		pruneGoneSubscriptions(db, report)

		return c.JSON(http.StatusOK, echo.Map{"ok": true, "count": len(report.Results)})
	}
}

// pruneGoneSubscriptions deletes rows the relay reported as permanently dead.
func pruneGoneSubscriptions(db *gorm.DB, report pushsender.Report) {
	for _, res := range report.Gone() {
		logrus.WithField("subscription", res.SubscriptionID).Info("Subscriber no longer active")
		if err := db.Delete(&types.PushSubscription{}, res.SubscriptionID).Error; err != nil {
			logrus.Error(errors.Wrap(err, "deleting subscription"))
		}
	}
}
