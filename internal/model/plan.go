package model

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Plan is a read-only catalog row; lifecycle is administrative.
type Plan struct {
	gorm.Model
	Code   string `json:"code" gorm:"uniqueIndex;not null"`
	Name   string `json:"name" gorm:"not null"`
	Active bool   `json:"active" gorm:"default:true"`

	Features []PlanFeature `json:"-"`
}

type PlanFeature struct {
	gorm.Model
	PlanID       uint           `json:"plan_id" gorm:"index:idx_plan_feature,unique"`
	FeatureKey   string         `json:"feature_key" gorm:"index:idx_plan_feature,unique;not null"`
	FeatureValue datatypes.JSON `json:"feature_value"`
}
