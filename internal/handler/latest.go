package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lucaslui/hems/sensor-bridge/internal/model"
)

const NoDataMessage = "No data received yet."

type LatestReader interface {
	Get() (*model.Reading, bool)
}

// QueryResult is either {"sensor_data": <reading>} or {"message": "..."}.
type QueryResult struct {
	SensorData *model.Reading `json:"sensor_data,omitempty"`
	Message    string         `json:"message,omitempty"`
}

// LatestHandler serves the last raw reading, nested as it arrived.
type LatestHandler struct {
	Latest LatestReader
}

func (h *LatestHandler) Query() QueryResult {
	r, ok := h.Latest.Get()
	if !ok {
		return QueryResult{Message: NoDataMessage}
	}
	return QueryResult{SensorData: r}
}

// GetLatest handles GET /latest-data. Always 200.
func (h *LatestHandler) GetLatest(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Query())
}

// Health handles GET /health.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}
