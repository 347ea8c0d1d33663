package main

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ray-remotestate/restroclient/config"
	"github.com/ray-remotestate/restroclient/server"
	"github.com/sirupsen/logrus"
)

const shutdownTimeOut = 10 * time.Second

func main() {
	cfg, err := config.LoadStub()
	if err != nil {
		logrus.Fatalf("failed to load config, error: %v", err)
	}
	log := config.NewLogger(cfg.LogLevel, cfg.LogJSON)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	svr := server.SetupRoutes(server.Options{
		SecretKey: cfg.SecretKey,
		TokenTTL:  cfg.TokenTTL,
		Log:       log,
	})
	go func() {
		if err := svr.Run(cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("failed to run server")
		}
	}()
	log.WithField("addr", cfg.Addr).Info("stub api is running")

	<-done

	log.Info("shutting down...")
	if err := svr.Shutdown(shutdownTimeOut); err != nil {
		log.WithError(err).Error("failed to gracefully shutdown server")
	}
	log.Info("server is shut ..zzz")
}
