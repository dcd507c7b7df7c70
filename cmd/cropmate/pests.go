package main

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/cropmate/cropmate/types"
)

func listPests(db *gorm.DB) echo.HandlerFunc {
	return func(c echo.Context) error {
		query := db.Order("name ASC")
		if category := c.QueryParam("category"); category != "" {
			query = query.Where("category = ?", category)
		}

		pests := []types.Pest{}
		if err := query.Find(&pests).Error; err != nil {
			return errors.Wrap(err, "listing pests")
		}
		return c.JSON(http.StatusOK, pests)
	}
}

func getPest(db *gorm.DB) echo.HandlerFunc {
	return func(c echo.Context) error {
		var pest types.Pest
		if err := db.First(&pest, "id = ?", c.Param("id")).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return c.JSON(http.StatusNotFound, echo.Map{"error": "pest not found"})
			}
			return errors.Wrap(err, "getting pest from db")
		}
		return c.JSON(http.StatusOK, pest)
	}
}

type createPestRequest struct {
	Name          string `json:"name" validate:"required"`
	Category      string `json:"category" validate:"required,oneof=pest disease deficiency"`
	Description   string `json:"description"`
	SeverityHint  string `json:"severityHint"`
	AffectedCrops string `json:"affectedCrops"`
}

func createPest(db *gorm.DB) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, ok := GetSessionUser(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		}
		if !user.IsAdmin() {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized, must be admin"})
		}

		var req createPestRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
		}
		if err := validate.Struct(req); err != nil {
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error()})
		}

		pest := types.Pest{
			Name:          req.Name,
			Category:      req.Category,
			Description:   req.Description,
			SeverityHint:  req.SeverityHint,
			AffectedCrops: req.AffectedCrops,
		}
		if err := db.Create(&pest).Error; err != nil {
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": errors.Wrap(err, "saving pest").Error()})
		}

		return c.JSON(http.StatusOK, pest)
	}
}

// seedPests loads the starter reference library on an empty database.
func seedPests(db *gorm.DB) error {
	var count int64
	if err := db.Model(&types.Pest{}).Count(&count).Error; err != nil {
		return errors.Wrap(err, "counting pests")
	}
	if count > 0 {
		return nil
	}

	seed := []types.Pest{
		{Name: "Aphids", Category: "pest", Description: "Small sap-sucking insects clustering on new growth.", SeverityHint: "Colonies double within days in warm weather.", AffectedCrops: "lettuce,kale,tomato,pepper"},
		{Name: "Spider mites", Category: "pest", Description: "Tiny mites causing stippled leaves and fine webbing.", SeverityHint: "Thrive in hot, dry conditions.", AffectedCrops: "tomato,cucumber,bean,strawberry"},
		{Name: "Cabbage loopers", Category: "pest", Description: "Green caterpillars chewing ragged holes in brassica leaves.", SeverityHint: "Worst mid-summer.", AffectedCrops: "cabbage,broccoli,kale"},
		{Name: "Colorado potato beetle", Category: "pest", Description: "Striped beetles defoliating nightshades.", SeverityHint: "Larvae do most of the damage.", AffectedCrops: "potato,eggplant,tomato"},
		{Name: "Powdery mildew", Category: "disease", Description: "White powdery fungal coating on leaf surfaces.", SeverityHint: "Spreads fastest in humid, still air.", AffectedCrops: "squash,cucumber,pumpkin,pea"},
		{Name: "Late blight", Category: "disease", Description: "Water-soaked lesions that collapse foliage within days.", SeverityHint: "Can destroy a planting in under a week.", AffectedCrops: "tomato,potato"},
		{Name: "Downy mildew", Category: "disease", Description: "Yellow patches above, gray fuzz below the leaf.", SeverityHint: "Favors cool, wet nights.", AffectedCrops: "basil,cucumber,onion,spinach"},
		{Name: "Nitrogen deficiency", Category: "deficiency", Description: "Uniform yellowing starting on older leaves.", SeverityHint: "Progresses slowly, recoverable.", AffectedCrops: "corn,lettuce,brassicas"},
		{Name: "Calcium deficiency", Category: "deficiency", Description: "Blossom end rot and distorted new growth.", SeverityHint: "Often watering-related rather than soil-related.", AffectedCrops: "tomato,pepper,squash"},
	}
	if err := db.Create(&seed).Error; err != nil {
		return errors.Wrap(err, "seeding pest library")
	}
	return nil
}
