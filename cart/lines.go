package cart

import (
	"github.com/ray-remotestate/restroclient/apperrors"
	"github.com/shopspring/decimal"
)

// MaxQuantity caps the portions of a single line.
const MaxQuantity = 999

// Line is one menu item in the cart. There is at most one Line per ItemID.
type Line struct {
	ItemID         int64
	Name           string
	UnitPrice      decimal.Decimal
	Quantity       int
	SpecialRequest string
}

func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// The functions below are the whole cart state machine. They never modify
// their input slice.

func indexOf(lines []Line, itemID int64) int {
	for i := range lines {
		if lines[i].ItemID == itemID {
			return i
		}
	}
	return -1
}

func clone(lines []Line) []Line {
	return append([]Line(nil), lines...)
}

// AddLine merges quantity into the existing line for itemID or appends a new
// one with an empty special request.
func AddLine(lines []Line, itemID int64, name string, price decimal.Decimal, quantity int) ([]Line, error) {
	if quantity <= 0 {
		return lines, apperrors.Validation("quantity must be a positive whole number")
	}
	if price.IsNegative() {
		return lines, apperrors.Validation("price of %s cannot be negative", name)
	}

	if quantity > MaxQuantity {
		return lines, apperrors.Validation("at most %d portions of %s", MaxQuantity, name)
	}

	out := clone(lines)
	if i := indexOf(out, itemID); i >= 0 {
		if quantity > MaxQuantity-out[i].Quantity {
			return lines, apperrors.Validation("at most %d portions of %s", MaxQuantity, name)
		}
		out[i].Quantity += quantity
		return out, nil
	}
	return append(out, Line{
		ItemID:    itemID,
		Name:      name,
		UnitPrice: price,
		Quantity:  quantity,
	}), nil
}

// AdjustLine changes the quantity of itemID by delta, dropping the line when
// it reaches zero or below. Unknown items are ignored. Going past MaxQuantity
// is rejected and leaves lines as they were.
func AdjustLine(lines []Line, itemID int64, delta int) ([]Line, error) {
	i := indexOf(lines, itemID)
	if i < 0 {
		return lines, nil
	}
	if delta > MaxQuantity-lines[i].Quantity {
		return lines, apperrors.Validation("at most %d portions of %s", MaxQuantity, lines[i].Name)
	}
	if delta <= -lines[i].Quantity {
		return RemoveLine(lines, itemID), nil
	}
	out := clone(lines)
	out[i].Quantity += delta
	return out, nil
}

func RemoveLine(lines []Line, itemID int64) []Line {
	i := indexOf(lines, itemID)
	if i < 0 {
		return lines
	}
	out := make([]Line, 0, len(lines)-1)
	out = append(out, lines[:i]...)
	return append(out, lines[i+1:]...)
}

func SetRequest(lines []Line, itemID int64, text string) []Line {
	i := indexOf(lines, itemID)
	if i < 0 {
		return lines
	}
	out := clone(lines)
	out[i].SpecialRequest = text
	return out
}

func Total(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}
