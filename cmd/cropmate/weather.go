package main

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/cropmate/cropmate/lib/weatherclient"
)

func getWeather(client *weatherclient.Client) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, ok := GetSessionUser(c); !ok {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		}

		lat, err := strconv.ParseFloat(c.QueryParam("lat"), 64)
		if err != nil || lat < -90 || lat > 90 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "lat must be a number between -90 and 90"})
		}
		lon, err := strconv.ParseFloat(c.QueryParam("lon"), 64)
		if err != nil || lon < -180 || lon > 180 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "lon must be a number between -180 and 180"})
		}

		forecast, err := client.Forecast(c.Request().Context(), lat, lon)
		if err != nil {
			return errors.Wrap(err, "fetching forecast")
		}

		return c.JSON(http.StatusOK, forecast)
	}
}
