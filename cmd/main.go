package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ray-remotestate/restroclient/app"
	"github.com/ray-remotestate/restroclient/config"
	"github.com/ray-remotestate/restroclient/handlers"
	"github.com/ray-remotestate/restroclient/models"
	"github.com/ray-remotestate/restroclient/session"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load config, error: %v", err)
	}
	log := config.NewLogger(cfg.LogLevel, cfg.LogJSON)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, app.Deps{Log: log})
	if err != nil {
		log.WithError(err).Fatal("failed to start client")
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.WithError(err).Error("failed to close token store")
		}
	}()

	res, err := a.Start(ctx)
	if err != nil {
		return
	}
	if msg := greeting(res.State, a.Session.User()); msg != "" {
		fmt.Println(msg)
	}
	if res.MenuErr != nil {
		fmt.Printf("menu unavailable: %v\n", res.MenuErr)
	} else {
		fmt.Printf("%d dishes on the menu, type help to get started\n", res.MenuItems)
	}

	if err := handlers.NewShell(a, os.Stdin, os.Stdout).Run(ctx); err != nil && ctx.Err() == nil {
		log.WithError(err).Error("shell stopped")
	}
}

// greeting is what the client prints after restoring the session. u may be nil
// even for Authenticated when the session expired after Start returned.
func greeting(state session.State, u *models.User) string {
	switch {
	case state == session.Authenticated && u != nil:
		return fmt.Sprintf("welcome back, %s", u.DisplayName())
	case state == session.Expired:
		return "your session has expired, please log in again"
	}
	return ""
}
