// Package handlers implements the terminal front end: one command per line,
// rendered to a writer.
package handlers

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/ray-remotestate/restroclient/app"
	"github.com/ray-remotestate/restroclient/apperrors"
	"github.com/ray-remotestate/restroclient/cart"
	"github.com/ray-remotestate/restroclient/models"
	"github.com/ray-remotestate/restroclient/session"
	"github.com/ray-remotestate/restroclient/utils"
	"github.com/sirupsen/logrus"
)

const prompt = "> "

var errQuit = errors.New("quit")

type command struct {
	usage string
	help  string
	run   func(s *Shell, ctx context.Context, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"help": {"help", "list commands", (*Shell).help},
		"quit": {"quit", "leave the shell", func(*Shell, context.Context, []string) error { return errQuit }},
	}
	for name, c := range restaurantCommands {
		commands[name] = c
	}
	for name, c := range cartCommands {
		commands[name] = c
	}
	for name, c := range userCommands {
		commands[name] = c
	}
	for name, c := range orderCommands {
		commands[name] = c
	}
}

type Shell struct {
	app *app.App
	in  io.Reader
	out io.Writer
	log logrus.FieldLogger

	dirty atomic.Bool
}

func NewShell(a *app.App, in io.Reader, out io.Writer) *Shell {
	s := &Shell{
		app: a,
		in:  in,
		out: out,
		log: a.Log.WithField("component", "shell"),
	}
	a.Cart.Subscribe(func(cart.Snapshot) { s.dirty.Store(true) })
	a.Session.Subscribe(func(session.State, *models.User) { s.dirty.Store(true) })
	return s
}

// Run reads commands until quit, EOF or ctx is done. Lines are scanned on
// their own goroutine so a cancelled ctx is noticed while waiting for input.
func (s *Shell) Run(ctx context.Context) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		scanner := bufio.NewScanner(s.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		fmt.Fprint(s.out, prompt)
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out)
			return ctx.Err()
		case err := <-scanErr:
			fmt.Fprintln(s.out)
			return err
		case line := <-lines:
			if quit := s.Execute(ctx, line); quit {
				return nil
			}
		}
	}
}

// Execute runs one command line and reports whether the shell should stop.
func (s *Shell) Execute(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	name := strings.ToLower(fields[0])
	cmd, ok := commands[name]
	if !ok {
		s.printf("error: unknown command %q, type help for a list\n", name)
		return false
	}

	s.dirty.Store(false)
	err := cmd.run(s, ctx, fields[1:])
	if errors.Is(err, errQuit) {
		s.printf("bye\n")
		return true
	}
	if err != nil {
		s.renderError(err)
	}
	if s.dirty.Swap(false) {
		s.status()
	}
	return false
}

func (s *Shell) renderError(err error) {
	kind := apperrors.KindOf(err)
	s.log.WithError(err).WithField("kind", kind).Debug("command failed")
	s.printf("error: %s\n", err.Error())
}

// status prints who is logged in and what the cart holds.
func (s *Shell) status() {
	who := "not logged in"
	switch s.app.Session.State() {
	case session.Authenticated:
		if u := s.app.Session.User(); u != nil {
			who = "logged in as " + u.DisplayName()
		}
	case session.Expired:
		who = "session expired"
	}
	snap := s.app.Cart.Snapshot()
	s.printf("[%s | cart: %d item(s), %s]\n", who, s.app.Cart.Count(), utils.FormatAmount(snap.Total))
}

func (s *Shell) help(_ context.Context, _ []string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := commands[name]
		s.printf("  %-38s %s\n", c.usage, c.help)
	}
	return nil
}

func (s *Shell) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

func parseID(args []string, what string) (int64, error) {
	if len(args) == 0 {
		return 0, apperrors.Validation("%s id is required", what)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.Validation("%s id must be a positive number", what)
	}
	return id, nil
}

func parsePositive(arg, what string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n <= 0 {
		return 0, apperrors.Validation("%s must be a positive number", what)
	}
	return n, nil
}
