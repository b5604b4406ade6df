package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/sirupsen/logrus"

	"vahan-ops/api"
	"vahan-ops/config"
	"vahan-ops/core/auth"
	"vahan-ops/core/incidents"
	"vahan-ops/core/rbac"
	"vahan-ops/core/screening"
	"vahan-ops/core/store"
	"vahan-ops/core/tat"
	"vahan-ops/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	log := logger.New(cfg.LogLevel)

	db, err := store.Open(cfg.DBDriver, cfg.DBURL)
	if err != nil {
		log.WithError(err).Fatal("failed to open database")
	}
	defer db.Close()
	if err := store.Migrate(db, cfg.DBDriver); err != nil {
		log.WithError(err).Fatal("failed to run migrations")
	}

	users := store.NewUsersStore(db)
	sessions := store.NewSessionsStore(db)
	audits := store.NewAuditStore(db)
	incidentsStore := store.NewIncidentsStore(db)

	policy, err := rbac.NewPolicy()
	if err != nil {
		log.WithError(err).Fatal("failed to build rbac policy")
	}
	sessionManager := auth.NewSessionManager(users, sessions, cfg)
	incidentsSvc := incidents.NewService(cfg, incidentsStore, audits, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var batches screening.BatchStore
	if cfg.Screening.RedisAddr != "" {
		batches, err = screening.NewRedisStore(ctx, cfg.Screening.RedisAddr, cfg.Screening.RedisPassword, cfg.Screening.RedisDB, cfg.Screening.BatchTTL)
		if err != nil {
			log.WithError(err).Fatal("failed to connect screening batch store")
		}
	} else {
		batches = screening.NewMemoryStore(cfg.Screening.BatchTTL)
	}

	if err := seedAdmin(ctx, users, log); err != nil {
		log.WithError(err).Fatal("failed to seed admin user")
	}

	scanner := tat.NewScanner(incidentsStore, audits, log)
	if cfg.Scheduler.Enabled {
		if err := scanner.Start(cfg.Scheduler.CronSpec); err != nil {
			log.WithError(err).Fatal("failed to start tat scanner")
		}
		defer scanner.Stop()
	}

	server := api.NewServer(cfg, api.ServerDeps{
		Users:          users,
		Sessions:       sessions,
		Audits:         audits,
		IncidentsSvc:   incidentsSvc,
		ScreeningStore: batches,
		Policy:         policy,
		SessionManager: sessionManager,
		Logger:         log,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown failed")
	}
}

// seedAdmin creates the initial admin account on an empty installation. The
// generated password is printed once; operators must rotate it on first
// login.
func seedAdmin(ctx context.Context, users store.UsersStore, log *logrus.Logger) error {
	existing, err := users.ListUsers(ctx, store.RoleAdmin)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	password := uuid.Must(uuid.NewV4()).String()
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	admin := &store.User{
		ID:           uuid.Must(uuid.NewV4()).String(),
		Username:     envOr("VAHAN_ADMIN_USERNAME", "admin"),
		FullName:     "Administrator",
		Role:         store.RoleAdmin,
		PasswordHash: hash,
		Active:       true,
	}
	if err := users.CreateUser(ctx, admin); err != nil {
		return err
	}
	log.Infof("seeded admin user %q with one-time password %s", admin.Username, password)
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
