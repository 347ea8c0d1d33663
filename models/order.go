package models

import (
	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentCard   PaymentMethod = "card"
	PaymentWeChat PaymentMethod = "wechat_pay"
	PaymentAlipay PaymentMethod = "alipay"
)

var PaymentMethods = []PaymentMethod{PaymentCash, PaymentCard, PaymentWeChat, PaymentAlipay}

func (p PaymentMethod) IsValid() bool {
	for _, m := range PaymentMethods {
		if p == m {
			return true
		}
	}
	return false
}

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderPreparing OrderStatus = "preparing"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
	OrderDelivered OrderStatus = "delivered"
)

func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderPending, OrderConfirmed, OrderPreparing, OrderCompleted, OrderCancelled, OrderDelivered:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentUnpaid, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

// OrderLine is one outbound item. Prices are never sent; the server
// recomputes them from the catalog.
type OrderLine struct {
	MenuItemID      int64   `json:"menu_item_id"`
	Quantity        int     `json:"quantity"`
	SpecialRequests *string `json:"special_requests"`
}

type OrderRequest struct {
	Items           []OrderLine   `json:"items"`
	PaymentMethod   PaymentMethod `json:"payment_method"`
	DeliveryAddress *string       `json:"delivery_address"`
	Notes           *string       `json:"notes"`
}

type PlacedOrder struct {
	OrderID     int64           `json:"order_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Message     string          `json:"message,omitempty"`
}

type OrderSummary struct {
	ID            int64           `json:"id"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	OrderTime     string          `json:"order_time"`
	Status        OrderStatus     `json:"status"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
}

type OrderDetailItem struct {
	ItemName        string          `json:"item_name"`
	ItemPrice       decimal.Decimal `json:"item_price"`
	Quantity        int             `json:"quantity"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	SpecialRequests *string         `json:"special_requests,omitempty"`
}

type OrderDetail struct {
	OrderSummary
	CustomerName    string            `json:"customer_name,omitempty"`
	PaymentMethod   PaymentMethod     `json:"payment_method,omitempty"`
	DeliveryAddress *string           `json:"delivery_address,omitempty"`
	Notes           *string           `json:"notes,omitempty"`
	Items           []OrderDetailItem `json:"items"`
}

type OrderPage struct {
	Orders      []OrderSummary `json:"orders"`
	TotalOrders int            `json:"total_orders"`
	Page        int            `json:"page"`
	PerPage     int            `json:"per_page"`
}

// TotalPages is at least 1 so an empty history still renders as page 1 of 1.
func (p OrderPage) TotalPages() int {
	if p.PerPage <= 0 || p.TotalOrders <= 0 {
		return 1
	}
	return (p.TotalOrders + p.PerPage - 1) / p.PerPage
}

func (p OrderPage) HasNext() bool {
	return p.Page < p.TotalPages()
}

func (p OrderPage) HasPrev() bool {
	return p.Page > 1
}
