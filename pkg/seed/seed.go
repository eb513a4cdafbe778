package seed

import (
	"log"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"findyourdeal_backend/internal/model"
)

// SeedPlans inserts the plan catalog. Codes match the price mapping in
// pkg/billing, so the seeded ids must stay stable across environments.
func SeedPlans(db *gorm.DB) {
	plans := []model.Plan{
		{Code: "trial", Name: "Trial"},
		{Code: "starter", Name: "Starter"},
		{Code: "growth", Name: "Growth"},
		{Code: "platinum", Name: "Platinum"},
	}

	for _, plan := range plans {
		result := db.FirstOrCreate(&plan, model.Plan{Code: plan.Code})
		if result.Error != nil {
			log.Printf("Error creating plan %s: %v", plan.Code, result.Error)
		}
	}

	seedPlanFeatures(db)

	log.Println("Plan catalog seeded successfully!")
}

func seedPlanFeatures(db *gorm.DB) {
	features := map[string]map[string]string{
		"trial": {
			"links_limit":               `5`,
			"history_limit":             `20`,
			"daily_notifications_limit": `50`,
			"duration_days":             `3`,
			"sources_allowed":           `["olx"]`,
		},
		"starter": {
			"links_limit":               `10`,
			"history_limit":             `20`,
			"daily_notifications_limit": `200`,
		},
		"growth": {
			"links_limit":               `50`,
			"history_limit":             `50`,
			"daily_notifications_limit": `500`,
		},
		"platinum": {
			"links_limit":               `200`,
			"history_limit":             `100`,
			"daily_notifications_limit": `2000`,
		},
	}

	for code, kv := range features {
		var plan model.Plan
		if err := db.Where("code = ?", code).First(&plan).Error; err != nil {
			log.Printf("Error loading plan %s for features: %v", code, err)
			continue
		}

		for key, value := range kv {
			feature := model.PlanFeature{
				PlanID:       plan.ID,
				FeatureKey:   key,
				FeatureValue: datatypes.JSON(value),
			}
			result := db.FirstOrCreate(&feature, model.PlanFeature{PlanID: plan.ID, FeatureKey: key})
			if result.Error != nil {
				log.Printf("Error creating feature %s/%s: %v", code, key, result.Error)
			}
		}
	}
}
