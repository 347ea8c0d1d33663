package handlers

import (
	"context"
	"strings"

	"github.com/ray-remotestate/restroclient/apperrors"
	"github.com/ray-remotestate/restroclient/models"
	"github.com/ray-remotestate/restroclient/session"
)

var userCommands = map[string]command{
	"register": {"register <user> <pass> [email] [full name]", "create an account", (*Shell).register},
	"login":    {"login <user> <pass>", "log in", (*Shell).login},
	"logout":   {"logout", "log out and empty the cart", (*Shell).logout},
	"whoami":   {"whoami", "show the logged in user", (*Shell).whoami},
}

func (s *Shell) register(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return apperrors.Validation("usage: register <user> <pass> [email] [full name]")
	}
	reg := models.Registration{Username: args[0], Password: args[1]}
	if len(args) > 2 {
		reg.Email = args[2]
	}
	if len(args) > 3 {
		reg.FullName = strings.Join(args[3:], " ")
	}
	if err := s.app.Session.Register(ctx, reg); err != nil {
		return err
	}
	s.printf("registered %s, you can log in now\n", reg.Username)
	return nil
}

func (s *Shell) login(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return apperrors.Validation("usage: login <user> <pass>")
	}
	user, err := s.app.Session.Login(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	s.printf("welcome, %s\n", user.DisplayName())
	return nil
}

func (s *Shell) logout(ctx context.Context, _ []string) error {
	s.app.Session.Logout(ctx)
	s.printf("logged out\n")
	return nil
}

func (s *Shell) whoami(_ context.Context, _ []string) error {
	switch s.app.Session.State() {
	case session.Authenticated:
		u := s.app.Session.User()
		s.printf("%s (%s, %s)\n", u.DisplayName(), u.Username, u.Role)
	case session.Expired:
		s.printf("your session has expired, please log in again\n")
	default:
		s.printf("not logged in\n")
	}
	return nil
}
