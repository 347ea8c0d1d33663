package handlers

import (
	"context"
	"strings"

	"github.com/ray-remotestate/restroclient/apperrors"
	"github.com/ray-remotestate/restroclient/utils"
)

var cartCommands = map[string]command{
	"add":   {"add <id> [qty]", "put a dish in the cart", (*Shell).add},
	"inc":   {"inc <id>", "one more of a dish", (*Shell).inc},
	"dec":   {"dec <id>", "one less of a dish", (*Shell).dec},
	"rm":    {"rm <id>", "remove a dish from the cart", (*Shell).rm},
	"note":  {"note <id> <text>", "special request for a dish", (*Shell).note},
	"cart":  {"cart", "show the cart", (*Shell).showCart},
	"clear": {"clear", "empty the cart", (*Shell).clearCart},
}

func (s *Shell) add(ctx context.Context, args []string) error {
	id, err := parseID(args, "dish")
	if err != nil {
		return err
	}
	qty := 1
	if len(args) > 1 {
		if qty, err = parsePositive(args[1], "quantity"); err != nil {
			return err
		}
	}
	it, err := s.app.AddDish(ctx, id, qty)
	if err != nil {
		return err
	}
	s.printf("added %d x %s\n", qty, it.Name)
	return nil
}

func (s *Shell) inc(_ context.Context, args []string) error {
	return s.adjust(args, 1)
}

func (s *Shell) dec(_ context.Context, args []string) error {
	return s.adjust(args, -1)
}

func (s *Shell) adjust(args []string, delta int) error {
	id, err := parseID(args, "dish")
	if err != nil {
		return err
	}
	if err := s.requireLine(id); err != nil {
		return err
	}
	return s.app.Cart.AdjustQuantity(id, delta)
}

func (s *Shell) rm(_ context.Context, args []string) error {
	id, err := parseID(args, "dish")
	if err != nil {
		return err
	}
	if err := s.requireLine(id); err != nil {
		return err
	}
	s.app.Cart.Remove(id)
	return nil
}

func (s *Shell) note(_ context.Context, args []string) error {
	id, err := parseID(args, "dish")
	if err != nil {
		return err
	}
	if err := s.requireLine(id); err != nil {
		return err
	}
	s.app.Cart.SetSpecialRequest(id, strings.Join(args[1:], " "))
	return nil
}

func (s *Shell) requireLine(id int64) error {
	for _, l := range s.app.Cart.Lines() {
		if l.ItemID == id {
			return nil
		}
	}
	return apperrors.Validation("dish #%d is not in your cart", id)
}

func (s *Shell) showCart(_ context.Context, _ []string) error {
	snap := s.app.Cart.Snapshot()
	if snap.Empty() {
		s.printf("your cart is empty\n")
		return nil
	}
	for _, l := range snap.Lines {
		s.printf("  #%-4d %-24s %3d x %-10s %10s\n", l.ItemID, l.Name, l.Quantity, utils.FormatAmount(l.UnitPrice), utils.FormatAmount(l.Subtotal()))
		if l.SpecialRequest != "" {
			s.printf("        note: %s\n", l.SpecialRequest)
		}
	}
	s.printf("  total %s\n", utils.FormatAmount(snap.Total))
	return nil
}

func (s *Shell) clearCart(_ context.Context, _ []string) error {
	s.app.Cart.Clear()
	return nil
}
