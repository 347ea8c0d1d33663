package handlers

import (
	"context"
	"strings"

	"github.com/ray-remotestate/restroclient/menu"
	"github.com/ray-remotestate/restroclient/utils"
)

var restaurantCommands = map[string]command{
	"menu":       {"menu", "show the menu by category", (*Shell).menu},
	"item":       {"item <id>", "show one dish", (*Shell).item},
	"categories": {"categories", "list dish categories", (*Shell).categories},
	"suggest":    {"suggest [preferences]", "ask for a dish that goes with your cart", (*Shell).suggest},
}

func (s *Shell) menu(ctx context.Context, _ []string) error {
	items, err := s.app.Menu.FetchMenu(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		s.printf("the menu is empty\n")
		return nil
	}
	for _, g := range menu.GroupByCategory(items) {
		s.printf("%s\n", g.Category)
		for _, it := range g.Items {
			s.printf("  #%-4d %-24s %10s\n", it.ID, it.Name, utils.FormatAmount(it.Price))
		}
	}
	return nil
}

func (s *Shell) item(ctx context.Context, args []string) error {
	id, err := parseID(args, "dish")
	if err != nil {
		return err
	}
	it, err := s.app.Menu.Item(ctx, id)
	if err != nil {
		return err
	}
	s.printf("#%d %s  %s\n", it.ID, it.Name, utils.FormatAmount(it.Price))
	if c := it.Category(); c != "" {
		s.printf("  category: %s\n", c)
	}
	if it.Description != "" {
		s.printf("  %s\n", it.Description)
	}
	return nil
}

func (s *Shell) categories(ctx context.Context, _ []string) error {
	cats, err := s.app.Menu.Categories(ctx)
	if err != nil {
		return err
	}
	for _, c := range cats {
		s.printf("  %s\n", c.Name)
	}
	return nil
}

func (s *Shell) suggest(ctx context.Context, args []string) error {
	text, err := s.app.Suggest(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	s.printf("%s\n", text)
	return nil
}
