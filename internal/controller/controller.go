package controller

import (
	"findyourdeal_backend/pkg/billing"
	"findyourdeal_backend/pkg/config"
	"findyourdeal_backend/pkg/entitlement"
	"findyourdeal_backend/pkg/links"
)

var (
	cfg         *config.Config
	prices      billing.PriceMap
	reconciler  *billing.Reconciler
	tokenStore  *billing.TokenStore
	resolver    *entitlement.Resolver
	linkCounter *links.Counter
)

func InitControllers(c *config.Config, p billing.PriceMap, r *billing.Reconciler, t *billing.TokenStore, e *entitlement.Resolver, lc *links.Counter) {
	cfg = c
	prices = p
	reconciler = r
	tokenStore = t
	resolver = e
	linkCounter = lc
}
