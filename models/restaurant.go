package models

import (
	"github.com/shopspring/decimal"
)

type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type MenuItem struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Price        decimal.Decimal `json:"price"`
	CategoryRaw  string          `json:"category,omitempty"`
	CategoryName string          `json:"category_name,omitempty"`
	ImageURL     string          `json:"image_url,omitempty"`
}

// Category returns whichever of the two category fields the server filled in.
func (m MenuItem) Category() string {
	if m.CategoryName != "" {
		return m.CategoryName
	}
	return m.CategoryRaw
}

type SuggestionRequest struct {
	CurrentDishes []string `json:"current_dishes"`
	Preferences   string   `json:"preferences"`
}

type SuggestionResponse struct {
	Suggestion string `json:"suggestion"`
}
