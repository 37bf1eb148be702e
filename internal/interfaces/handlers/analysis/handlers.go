package analysis

import (
	"encoding/json"

	analysissvc "wattswap-backend/internal/application/analysis"
	"wattswap-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Service *analysissvc.Service
}

// POST /api/v1/analysis/analyze-driving
func (h *Handlers) AnalyzeDriving(c *fiber.Ctx) error {
	var in analysissvc.DrivingData
	if err := json.Unmarshal(c.Body(), &in); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	score, err := h.Service.Analyze(in)
	if err != nil {
		return response.Error(c, err.Error(), fiber.StatusBadRequest, nil)
	}
	return response.Success(c, "Driving analysis complete", score, nil)
}
