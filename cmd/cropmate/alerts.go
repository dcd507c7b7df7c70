package main

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/cropmate/cropmate/types"
)

type createAlertRuleRequest struct {
	PestID      uint   `json:"pestId"`
	MinSeverity int    `json:"minSeverity" validate:"required,min=1,max=5"`
	Field       string `json:"field"`
}

func createAlertRule(db *gorm.DB) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, ok := GetSessionUser(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		}

		var req createAlertRuleRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
		}
		if err := validate.Struct(req); err != nil {
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error()})
		}

		if req.PestID != 0 {
			var pest types.Pest
			if err := db.First(&pest, "id = ?", req.PestID).Error; err != nil {
				return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "unknown pest"})
			}
		}

		rule := types.AlertRule{
			UserID:      user.ID,
			PestID:      req.PestID,
			MinSeverity: req.MinSeverity,
			Field:       req.Field,
			Active:      true,
		}
		if err := db.Create(&rule).Error; err != nil {
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": errors.Wrap(err, "saving alert rule").Error()})
		}

		return c.JSON(http.StatusOK, rule)
	}
}

func listAlertRules(db *gorm.DB) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, ok := GetSessionUser(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		}

		rules := []types.AlertRule{}
		if err := db.Where("user_id = ?", user.ID).Order("created_at DESC").Find(&rules).Error; err != nil {
			return errors.Wrap(err, "listing alert rules")
		}
		return c.JSON(http.StatusOK, rules)
	}
}

func deleteAlertRule(db *gorm.DB) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, ok := GetSessionUser(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		}

		var rule types.AlertRule
		if err := db.First(&rule, "id = ?", c.Param("id")).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return c.JSON(http.StatusNotFound, echo.Map{"error": "alert rule not found"})
			}
			return errors.Wrap(err, "getting alert rule from db")
		}

		if rule.UserID != user.ID {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "You are not authorized to delete this alert rule"})
		}

		if err := db.Delete(&rule).Error; err != nil {
			return errors.Wrap(err, "deleting alert rule from db")
		}

		return c.JSON(http.StatusOK, echo.Map{"ok": true})
	}
}
