package main

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/cropmate/cropmate/types"
)

type observationRequest struct {
	PestID   uint   `json:"pestId" validate:"required"`
	Severity int    `json:"severity" validate:"required,min=1,max=5"`
	Count    int    `json:"count" validate:"min=0"`
	Note     string `json:"note"`
}

type createScoutingRunRequest struct {
	Field        string               `json:"field" validate:"required"`
	Crop         string               `json:"crop" validate:"required"`
	Notes        string               `json:"notes"`
	Observations []observationRequest `json:"observations" validate:"dive"`
}

func createScoutingRun(db *gorm.DB) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, ok := GetSessionUser(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		}

		var req createScoutingRunRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
		}
		if err := validate.Struct(req); err != nil {
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error()})
		}

		run := types.ScoutingRun{
			UserID:    user.ID,
			Token:     uuid.NewString(),
			Field:     req.Field,
			Crop:      req.Crop,
			Notes:     req.Notes,
			CreatedAt: time.Now(),
		}
		for _, obs := range req.Observations {
			run.Observations = append(run.Observations, types.Observation{
				PestID:   obs.PestID,
				Severity: obs.Severity,
				Count:    obs.Count,
				Note:     obs.Note,
			})
		}

		if err := db.Create(&run).Error; err != nil {
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": errors.Wrap(err, "saving scouting run").Error()})
		}

		// Hand the run to the alert worker; evaluation happens off-request.
		triggerAlertEvaluation(run.ID)

		return c.JSON(http.StatusOK, run)
	}
}

func listScoutingRuns(db *gorm.DB) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, ok := GetSessionUser(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		}

		runs := []types.ScoutingRun{}
		err := db.Preload("Observations").
			Where("user_id = ?", user.ID).
			Order("created_at DESC").
			Limit(50).
			Find(&runs).Error
		if err != nil {
			return errors.Wrap(err, "Looking for scouting runs")
		}
		return c.JSON(http.StatusOK, runs)
	}
}

func getScoutingRun(db *gorm.DB) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, ok := GetSessionUser(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		}

		var run types.ScoutingRun
		err := db.Preload("Observations").First(&run, "token = ?", c.Param("token")).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return c.JSON(http.StatusNotFound, echo.Map{"error": "scouting run not found"})
			}
			return errors.Wrap(err, "getting scouting run from db")
		}

		if run.UserID != user.ID && !user.IsAdmin() {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "You are not authorized to view this scouting run"})
		}
		return c.JSON(http.StatusOK, run)
	}
}
