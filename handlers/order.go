package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/ray-remotestate/restroclient/apperrors"
	"github.com/ray-remotestate/restroclient/history"
	"github.com/ray-remotestate/restroclient/models"
	"github.com/ray-remotestate/restroclient/utils"
)

var orderCommands = map[string]command{
	"address": {"address <text>", "set the delivery address", (*Shell).address},
	"notes":   {"notes <text>", "set notes for the order", (*Shell).notes},
	"order":   {"order <cash|card|wechat_pay|alipay>", "place the order", (*Shell).order},
	"history": {"history [page]", "list your past orders", (*Shell).history},
	"next":    {"next", "next page of history", (*Shell).next},
	"prev":    {"prev", "previous page of history", (*Shell).prev},
	"detail":  {"detail <id>", "show one past order", (*Shell).detail},
}

func (s *Shell) address(_ context.Context, args []string) error {
	s.app.Form.SetAddress(strings.Join(args, " "))
	return nil
}

func (s *Shell) notes(_ context.Context, args []string) error {
	s.app.Form.SetNotes(strings.Join(args, " "))
	return nil
}

func (s *Shell) order(ctx context.Context, args []string) error {
	var method models.PaymentMethod
	if len(args) > 0 {
		method = models.PaymentMethod(args[0])
	}
	placed, err := s.app.Orders.Submit(ctx, method)
	if err != nil {
		return err
	}
	s.printf("order #%d placed, total %s\n", placed.OrderID, utils.FormatAmount(placed.TotalAmount))
	if page, ok := s.app.History.Current(); ok {
		s.renderPage(page)
	}
	return nil
}

func (s *Shell) history(ctx context.Context, args []string) error {
	n := 1
	if len(args) > 0 {
		var err error
		if n, err = parsePositive(args[0], "page"); err != nil {
			return err
		}
	}
	return s.showPage(s.app.History.FetchPage(ctx, n))
}

func (s *Shell) next(ctx context.Context, _ []string) error {
	return s.showPage(s.app.History.Next(ctx))
}

func (s *Shell) prev(ctx context.Context, _ []string) error {
	return s.showPage(s.app.History.Prev(ctx))
}

func (s *Shell) showPage(page models.OrderPage, err error) error {
	if errors.Is(err, history.ErrStale) {
		return nil
	}
	if err != nil {
		return err
	}
	s.renderPage(page)
	return nil
}

func (s *Shell) renderPage(page models.OrderPage) {
	if len(page.Orders) == 0 {
		s.printf("no orders yet\n")
		return
	}
	for _, o := range page.Orders {
		s.printf("  #%-5d %-19s %10s  %-10s %s\n", o.ID, o.OrderTime, utils.FormatAmount(o.TotalAmount), o.Status, o.PaymentStatus)
	}
	s.printf("  page %d of %d\n", page.Page, page.TotalPages())
}

func (s *Shell) detail(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return apperrors.Validation("order id is required")
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil {
		return apperrors.Validation("order id must be a positive number")
	}
	d, err := s.app.History.FetchDetail(ctx, id)
	if err != nil {
		return err
	}
	s.printf("order #%d  %s  %s/%s\n", d.ID, d.OrderTime, d.Status, d.PaymentStatus)
	for _, it := range d.Items {
		s.printf("  %-24s %3d x %-10s %10s\n", it.ItemName, it.Quantity, utils.FormatAmount(it.ItemPrice), utils.FormatAmount(it.Subtotal))
		if it.SpecialRequests != nil && *it.SpecialRequests != "" {
			s.printf("        note: %s\n", *it.SpecialRequests)
		}
	}
	if d.PaymentMethod != "" {
		s.printf("  paid by %s\n", d.PaymentMethod)
	}
	if d.DeliveryAddress != nil {
		s.printf("  deliver to %s\n", *d.DeliveryAddress)
	}
	if d.Notes != nil {
		s.printf("  notes: %s\n", *d.Notes)
	}
	s.printf("  total %s\n", utils.FormatAmount(d.TotalAmount))
	return nil
}
