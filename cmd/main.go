package main

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/nextcoding/saas-api/pkg/api"
	"github.com/nextcoding/saas-api/pkg/config"
	"github.com/nextcoding/saas-api/pkg/pricing"
	"github.com/nextcoding/saas-api/pkg/repository/deadletter"
	"github.com/nextcoding/saas-api/pkg/repository/userstore"
	"github.com/nextcoding/saas-api/pkg/service/auth"
	"github.com/nextcoding/saas-api/pkg/service/billing"
	"github.com/nextcoding/saas-api/pkg/service/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}

	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	}
	logger.SetFormatter(&logrus.JSONFormatter{})
	log := logrus.NewEntry(logger)

	store, err := userstore.NewSQLiteStore(userstore.Config{
		DatabasePath:   cfg.DB.DatabasePath,
		MigrationsPath: cfg.DB.MigrationsPath,
	})
	if err != nil {
		log.WithError(err).Fatal("opening user store")
	}
	defer store.Close()

	catalog := pricing.NewCatalog(cfg.Stripe.ProPriceID, cfg.Stripe.LifetimePriceID)
	billingSvc := billing.NewStripeService(cfg.Stripe.SecretKey, cfg.App, catalog)
	deadLetters := deadletter.NewSQLiteStore(store.DB())
	receiver := webhook.NewReceiver(cfg.Stripe.WebhookSecret, store, catalog, billingSvc, deadLetters, log)
	sessions := auth.NewService(cfg.Auth.JWKSURL, cfg.Auth.LogoutURL, log)
	metrics := api.NewMetrics(prometheus.DefaultRegisterer)

	handler := api.NewHandler(cfg.App, catalog, billingSvc, receiver, store, sessions, metrics, log)

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.WithField("port", cfg.Port).Info("server starting")
	if err := http.ListenAndServe(addr, handler.Router()); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}
