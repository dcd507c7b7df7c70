package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/cropmate/cropmate/types"
)

type analyticsSummaryRow struct {
	Runs         int64   `json:"runs"`
	Observations int64   `json:"observations"`
	AvgSeverity  float64 `json:"avgSeverity"`
	ActiveAlerts int64   `json:"activeAlerts"`
}

func analyticsSummary(db *gorm.DB) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, ok := GetSessionUser(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		}

		var row analyticsSummaryRow

		err := db.Model(&types.ScoutingRun{}).Where("user_id = ?", user.ID).Count(&row.Runs).Error
		if err != nil {
			return errors.Wrap(err, "counting runs")
		}

		err = db.Model(&types.Observation{}).
			Joins("JOIN scouting_runs ON scouting_runs.id = observations.scouting_run_id").
			Where("scouting_runs.user_id = ?", user.ID).
			Count(&row.Observations).Error
		if err != nil {
			return errors.Wrap(err, "counting observations")
		}

		if row.Observations > 0 {
			err = db.Model(&types.Observation{}).
				Joins("JOIN scouting_runs ON scouting_runs.id = observations.scouting_run_id").
				Where("scouting_runs.user_id = ?", user.ID).
				Select("AVG(observations.severity)").
				Scan(&row.AvgSeverity).Error
			if err != nil {
				return errors.Wrap(err, "averaging severity")
			}
		}

		err = db.Model(&types.AlertRule{}).Where("user_id = ? AND active = ?", user.ID, true).Count(&row.ActiveAlerts).Error
		if err != nil {
			return errors.Wrap(err, "counting alert rules")
		}

		return c.JSON(http.StatusOK, row)
	}
}

type severityBreakdownRow struct {
	PestName     string  `json:"pestName"`
	Observations int64   `json:"observations"`
	AvgSeverity  float64 `json:"avgSeverity"`
	MaxSeverity  int     `json:"maxSeverity"`
}

func analyticsSeverity(db *gorm.DB) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, ok := GetSessionUser(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		}

		rows := []severityBreakdownRow{}
		err := db.Model(&types.Observation{}).
			Joins("JOIN scouting_runs ON scouting_runs.id = observations.scouting_run_id").
			Joins("JOIN pests ON pests.id = observations.pest_id").
			Where("scouting_runs.user_id = ?", user.ID).
			Group("pests.name").
			Select("pests.name AS pest_name, COUNT(*) AS observations, AVG(observations.severity) AS avg_severity, MAX(observations.severity) AS max_severity").
			Order("observations DESC").
			Scan(&rows).Error
		if err != nil {
			return errors.Wrap(err, "aggregating severity breakdown")
		}

		return c.JSON(http.StatusOK, rows)
	}
}

type trendRow struct {
	Day          string `json:"day"`
	Observations int64  `json:"observations"`
}

func analyticsTrend(db *gorm.DB) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, ok := GetSessionUser(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		}

		days := 30
		if d := c.QueryParam("days"); d != "" {
			parsed, err := strconv.Atoi(d)
			if err != nil || parsed < 1 || parsed > 365 {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "days must be between 1 and 365"})
			}
			days = parsed
		}
		since := time.Now().AddDate(0, 0, -days)

		rows := []trendRow{}
		err := db.Model(&types.Observation{}).
			Joins("JOIN scouting_runs ON scouting_runs.id = observations.scouting_run_id").
			Where("scouting_runs.user_id = ? AND observations.created_at > ?", user.ID, since).
			Group("day").
			Select("date(observations.created_at) AS day, COUNT(*) AS observations").
			Order("day ASC").
			Scan(&rows).Error
		if err != nil {
			return errors.Wrap(err, "aggregating trend")
		}

		return c.JSON(http.StatusOK, rows)
	}
}
