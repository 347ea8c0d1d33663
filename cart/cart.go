// Package cart holds the in-memory shopping cart. Nothing here is persisted;
// a restart starts with an empty cart.
package cart

import (
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// Snapshot is an immutable view handed to subscribers.
type Snapshot struct {
	Lines []Line
	Total decimal.Decimal
}

func (s Snapshot) Empty() bool {
	return len(s.Lines) == 0
}

type Cart struct {
	mu        sync.Mutex
	lines     []Line
	listeners []func(Snapshot)
}

func New() *Cart {
	return &Cart{}
}

func (c *Cart) Subscribe(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// apply runs one transition under the lock so merge-or-append stays atomic,
// then notifies listeners outside it.
func (c *Cart) apply(fn func([]Line) ([]Line, error)) error {
	c.mu.Lock()
	next, err := fn(c.lines)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.lines = next
	snap := c.snapshotLocked()
	listeners := append([]func(Snapshot){}, c.listeners...)
	c.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
	return nil
}

func (c *Cart) snapshotLocked() Snapshot {
	return Snapshot{Lines: clone(c.lines), Total: Total(c.lines)}
}

func (c *Cart) Add(itemID int64, name string, price decimal.Decimal, quantity int) error {
	return c.apply(func(lines []Line) ([]Line, error) {
		return AddLine(lines, itemID, name, price, quantity)
	})
}

func (c *Cart) AdjustQuantity(itemID int64, delta int) error {
	return c.apply(func(lines []Line) ([]Line, error) {
		return AdjustLine(lines, itemID, delta)
	})
}

func (c *Cart) Remove(itemID int64) {
	_ = c.apply(func(lines []Line) ([]Line, error) {
		return RemoveLine(lines, itemID), nil
	})
}

func (c *Cart) SetSpecialRequest(itemID int64, text string) {
	_ = c.apply(func(lines []Line) ([]Line, error) {
		return SetRequest(lines, itemID, strings.TrimSpace(text)), nil
	})
}

func (c *Cart) Clear() {
	_ = c.apply(func([]Line) ([]Line, error) {
		return nil, nil
	})
}

func (c *Cart) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Cart) Lines() []Line {
	return c.Snapshot().Lines
}

func (c *Cart) Total() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Total(c.lines)
}

func (c *Cart) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}

// Count is the number of portions across all lines.
func (c *Cart) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, l := range c.lines {
		n += l.Quantity
	}
	return n
}

// Names lists dish names in cart order, for the pairing suggestion.
func (c *Cart) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.lines))
	for _, l := range c.lines {
		names = append(names, l.Name)
	}
	return names
}
