// README: Entry point; loads config, wires services, starts HTTP server and background schedulers.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/sirupsen/logrus"

	"tripshare/internal/config"
	httptransport "tripshare/internal/http"
	"tripshare/internal/infra"
	"tripshare/internal/maps"
	"tripshare/internal/modules/matching"
	"tripshare/internal/modules/notify"
	"tripshare/internal/modules/pricing"
	"tripshare/internal/modules/routing"
	"tripshare/internal/modules/trip"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := infra.NewLogger(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Firebase.ProjectID == "" {
		log.Fatal("TRIPSHARE_FIREBASE_PROJECT_ID is required")
	}
	firebaseApp, err := infra.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	if err != nil {
		log.WithError(err).Fatal("firebase init")
	}
	verifier, err := infra.NewFirebaseVerifier(ctx, firebaseApp)
	if err != nil {
		log.WithError(err).Fatal("firebase auth")
	}

	if cfg.DB.Migrate {
		if err := infra.Migrate(ctx, cfg.DB.DSN, log); err != nil {
			log.WithError(err).Fatal("migrate")
		}
	}
	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.WithError(err).Fatal("connect database")
	}
	defer dbPool.Close()

	cache, err := routeCache(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("route cache")
	}
	directions, err := maps.NewRouteService(cfg.Maps.APIKey)
	if err != nil {
		log.WithError(err).Fatal("maps client")
	}
	routingSvc := routing.NewService(directions, cache, cfg.Routing, log)

	pricingSvc := pricing.NewService(pricing.NewStore(dbPool))

	tokens := notify.NewTokenStore(dbPool)
	sender, closeSender, err := notificationSender(ctx, cfg.Notify, firebaseApp, tokens, log)
	if err != nil {
		log.WithError(err).Fatal("notification backend")
	}
	defer closeSender()
	dispatcher := notify.NewDispatcher(sender, cfg.Notify, log)

	tripStore := trip.NewStore(dbPool)
	matchingSvc := matching.NewService(trip.NewCandidates(tripStore), routingSvc, cfg.Matching, log)
	tripSvc, err := trip.NewService(trip.Deps{
		Repo:     tripStore,
		Pricing:  pricingSvc,
		Routes:   routingSvc,
		Nearby:   matchingSvc,
		Notifier: dispatcher,
		Config:   cfg.Lifecycle,
		Log:      log,
	})
	if err != nil {
		log.WithError(err).Fatal("trip service")
	}
	sweeper := trip.NewSweeper(tripSvc, cfg.Sweeper)

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Trips:    tripSvc,
		Devices:  tokens,
		Verifier: verifier,
		Log:      log,
	})
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go dispatcher.Run(ctx)
	go sweeper.RunExpiryTicker(ctx)
	go sweeper.RunPaymentTicker(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("http shutdown")
		}
	}()

	log.WithField("addr", cfg.HTTP.Addr).Info("tripshare api listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("http server")
	}
}

func routeCache(ctx context.Context, cfg config.Config) (routing.Cache, error) {
	if cfg.Routing.CacheBackend != "redis" {
		return routing.NewMemoryCache(), nil
	}
	client, err := infra.NewRedis(ctx, cfg.Redis.Addr)
	if err != nil {
		return nil, err
	}
	return routing.NewRedisCache(client), nil
}

func notificationSender(
	ctx context.Context,
	cfg config.NotifyConfig,
	app *firebase.App,
	tokens *notify.PGTokenStore,
	log *logrus.Logger,
) (notify.Sender, func(), error) {
	switch cfg.Backend {
	case "fcm":
		client, err := app.Messaging(ctx)
		if err != nil {
			return nil, nil, err
		}
		return notify.NewFCMNotifier(client, tokens, cfg.ImageURL, log), func() {}, nil
	case "amqp":
		conn, ch, err := infra.DialAMQP(cfg.AMQPURL, cfg.Exchange)
		if err != nil {
			return nil, nil, err
		}
		closer := func() {
			_ = ch.Close()
			_ = conn.Close()
		}
		return notify.NewAMQPNotifier(ch, cfg.Exchange, cfg.RoutingKey), closer, nil
	default:
		return notify.NewLogNotifier(log), func() {}, nil
	}
}

