package main

import (
	"fmt"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/cropmate/cropmate/lib/pushsender"
	"github.com/cropmate/cropmate/types"
)

var triggerAlertChan = make(chan uint, 16)

// triggerAlertEvaluation queues a scouting run for rule matching without
// blocking the request that created it.
func triggerAlertEvaluation(runID uint) {
	select {
	case triggerAlertChan <- runID:
	default:
		logrus.Warnf("Alert evaluation queue full, dropping run %d", runID)
	}
}

func startAlertWorker(cfg types.Config, db *gorm.DB, sender *pushsender.Sender) (func(), error) {
	go func() {
		for runID := range triggerAlertChan {
			if err := evaluateRunAlerts(cfg, db, sender, runID); err != nil {
				logrus.Error(errors.Wrap(err, "evaluating run alerts"))
			}
		}
	}()

	c := cron.New()
	_, err := c.AddFunc("0 18 * * *", func() {
		if err := sendDailyDigest(cfg, db, sender); err != nil {
			logrus.Error(errors.Wrap(err, "sending daily digest"))
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "registering digest schedule")
	}
	c.Start()

	return func() { c.Stop() }, nil
}

// evaluateRunAlerts matches one run's observations against every active rule
// and notifies each matching rule's owner. Push failures are isolated per
// subscription; a dead device never blocks the rest of the fan-out.
func evaluateRunAlerts(cfg types.Config, db *gorm.DB, sender *pushsender.Sender, runID uint) error {
	var run types.ScoutingRun
	if err := db.Preload("Observations").First(&run, "id = ?", runID).Error; err != nil {
		return errors.Wrap(err, "loading scouting run")
	}

	var rules []types.AlertRule
	if err := db.Where("active = ?", true).Find(&rules).Error; err != nil {
		return errors.Wrap(err, "loading alert rules")
	}

	// One notification per (rule owner, observation) match.
	for _, rule := range rules {
		for _, obs := range run.Observations {
			if !rule.Matches(run, obs) {
				continue
			}

			var pest types.Pest
			if err := db.First(&pest, "id = ?", obs.PestID).Error; err != nil {
				logrus.Error(errors.Wrap(err, "loading pest for alert"))
				continue
			}

			var subs []types.PushSubscription
			if err := db.Where("user_id = ?", rule.UserID).Find(&subs).Error; err != nil {
				logrus.Error(errors.Wrap(err, "loading subscriptions for alert"))
				continue
			}
			if len(subs) == 0 {
				continue
			}

			logrus.WithField("rule", rule.ID).Infof("Alert match: %s severity %d in %s", pest.Name, obs.Severity, run.Field)
			report := sender.SendAll(subs, pushsender.Payload{
				Title: "CropMate alert",
				Body:  fmt.Sprintf("%s at severity %d spotted in %s (%s)", pest.Name, obs.Severity, run.Field, run.Crop),
				Icon:  fmt.Sprintf("https://%s/static/icon-192.png", cfg.Hostname),
				Tag:   fmt.Sprintf("cropmate-alert-%d", rule.ID),
				URL:   fmt.Sprintf("/?run=%s", url.QueryEscape(run.Token)),
			})
			pruneGoneSubscriptions(db, report)
		}
	}
	return nil
}

// sendDailyDigest pushes a scouting summary of the last 24h to every user who
// has devices registered.
func sendDailyDigest(cfg types.Config, db *gorm.DB, sender *pushsender.Sender) error {
	var users []types.User
	if err := db.Preload("PushSubscriptions").Find(&users).Error; err != nil {
		return errors.Wrap(err, "getting all users")
	}

	since := time.Now().Add(-24 * time.Hour)
	for _, user := range users {
		if len(user.PushSubscriptions) == 0 {
			continue
		}

		var runCount int64
		err := db.Model(&types.ScoutingRun{}).
			Where("user_id = ? AND created_at > ?", user.ID, since).
			Count(&runCount).Error
		if err != nil {
			logrus.Error(errors.Wrap(err, "counting runs for digest"))
			continue
		}

		body := "No scouting runs logged today. Take a walk through your fields!"
		if runCount > 0 {
			body = fmt.Sprintf("You logged %d scouting run(s) today. Review your fields' trends.", runCount)
		}

		report := sender.SendAll(user.PushSubscriptions, pushsender.Payload{
			Title: "CropMate daily digest",
			Body:  body,
			Icon:  fmt.Sprintf("https://%s/static/icon-192.png", cfg.Hostname),
			Tag:   "cropmate-daily-digest",
			URL:   "/",
		})
		pruneGoneSubscriptions(db, report)
	}
	return nil
}
