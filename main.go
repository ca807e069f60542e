package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"friendline/blob"
	"friendline/config"
	"friendline/database"
	"friendline/handlers"
	"friendline/messaging"
	"friendline/middleware"
	"friendline/relation"
	"friendline/store"
	"friendline/utils"
	"friendline/websocket"
)

func main() {
	cfg := config.Load()
	cfg.ConfigureLogging()

	dialect, err := database.DialectFor(cfg.DBDriver)
	if err != nil {
		logrus.WithError(err).Fatal("unsupported database driver")
	}

	db, err := database.Connect(cfg.DBDriver, cfg.DatabaseDSN)
	if err != nil {
		logrus.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	if err := database.CreateTables(db, dialect); err != nil {
		logrus.WithError(err).Fatal("failed to create tables")
	}

	blobs, err := blob.NewLocalStore(cfg.UploadDir, "/files", cfg.UploadMaxBytes)
	if err != nil {
		logrus.WithError(err).Fatal("failed to prepare upload directory")
	}

	users := store.NewSQLUsers(db)
	messages := store.NewSQLMessages(db)
	records := store.NewRelationships(store.NewSQLRelationships(db, dialect), cfg.StoreMaxAttempts)

	hub := websocket.NewHub()
	go hub.Run()
	defer hub.Close()

	tokens := utils.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	guard := messaging.NewGuard(records)
	machine := relation.NewMachine(users, records, hub)
	service := messaging.NewService(guard, records, users, messages, blobs, hub)
	service.UsePairLock(machine)
	origins := middleware.ParseOrigins(cfg.CORSOrigins)

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(), middleware.CORSMiddleware(origins))

	handlers.New(handlers.Deps{
		Users:         users,
		Friends:       machine,
		Messages:      service,
		Blobs:         blobs,
		Tokens:        tokens,
		SecureCookies: cfg.SecureCookies,
		MaxBodyBytes:  maxBodyBytes(cfg.UploadMaxBytes),
	}).Register(r)

	r.GET("/ws", websocket.NewHandler(hub, tokens, guard, origins.Allow).HandleWebSocket)

	srv := &http.Server{Addr: cfg.ServerAddr, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logrus.WithFields(logrus.Fields{
			"addr":   cfg.ServerAddr,
			"driver": dialect.Name,
		}).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	logrus.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("graceful shutdown failed")
	}
}

// maxBodyBytes leaves room for base64 expansion of an upload plus JSON framing.
func maxBodyBytes(uploadMax int64) int64 {
	return uploadMax/3*4 + 64<<10
}
