package controller

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"findyourdeal_backend/internal/model"
	"findyourdeal_backend/pkg/database"
)

// ListPlans returns the active catalog with features aggregated key→value.
func ListPlans(c *fiber.Ctx) error {
	var plans []model.Plan
	if err := database.DB.Where("active = ?", true).
		Preload("Features").
		Order("id ASC").
		Find(&plans).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "PLANS_QUERY_FAILED",
		})
	}

	out := make([]fiber.Map, 0, len(plans))
	for _, p := range plans {
		features := fiber.Map{}
		for _, f := range p.Features {
			var v interface{}
			if err := json.Unmarshal(f.FeatureValue, &v); err != nil {
				continue
			}
			features[f.FeatureKey] = v
		}
		out = append(out, fiber.Map{
			"id":       p.ID,
			"code":     p.Code,
			"name":     p.Name,
			"active":   p.Active,
			"features": features,
		})
	}

	return c.JSON(out)
}
