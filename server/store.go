package server

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ray-remotestate/restroclient/models"
	"github.com/shopspring/decimal"
)

var (
	errUserExists  = errors.New("用户名已存在")
	errEmailExists = errors.New("邮箱已被注册")
)

type userRecord struct {
	models.User
	PasswordHash string
}

type menuRecord struct {
	models.MenuItem
	Available bool
}

type lineRecord struct {
	MenuItemID      int64
	Name            string
	UnitPrice       decimal.Decimal
	Quantity        int
	SpecialRequests *string
}

type orderRecord struct {
	ID              int64
	UserID          int64
	CustomerName    string
	Total           decimal.Decimal
	PlacedAt        time.Time
	Status          models.OrderStatus
	PaymentStatus   models.PaymentStatus
	PaymentMethod   models.PaymentMethod
	DeliveryAddress *string
	Notes           *string
	Lines           []lineRecord
}

// Store keeps the stub's users, catalog and orders in memory.
type Store struct {
	mu         sync.RWMutex
	users      map[int64]*userRecord
	categories []models.Category
	menu       []*menuRecord
	orders     []*orderRecord
	idem       map[string]int64
	nextUser   int64
	nextMenu   int64
	nextOrder  int64
}

func NewStore() *Store {
	return &Store{
		users:     map[int64]*userRecord{},
		idem:      map[string]int64{},
		nextUser:  1,
		nextMenu:  1,
		nextOrder: 1,
	}
}

// SeedMenu loads a small default catalog.
func (s *Store) SeedMenu() {
	cats := []string{"热菜", "主食", "汤品", "饮品"}
	for _, c := range cats {
		s.AddCategory(c, "")
	}
	s.AddMenuItem(models.MenuItem{Name: "宫保鸡丁", Description: "经典川菜，鸡肉花生", Price: decimal.RequireFromString("28.00"), CategoryName: "热菜"}, true)
	s.AddMenuItem(models.MenuItem{Name: "麻婆豆腐", Description: "麻辣鲜香", Price: decimal.RequireFromString("22.50"), CategoryName: "热菜"}, true)
	s.AddMenuItem(models.MenuItem{Name: "米饭", Price: decimal.RequireFromString("3.00"), CategoryName: "主食"}, true)
	s.AddMenuItem(models.MenuItem{Name: "酸辣汤", Price: decimal.RequireFromString("15.00"), CategoryName: "汤品"}, true)
	s.AddMenuItem(models.MenuItem{Name: "可乐", Price: decimal.RequireFromString("5.00"), CategoryName: "饮品"}, true)
}

func (s *Store) AddCategory(name, description string) models.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := models.Category{ID: int64(len(s.categories) + 1), Name: name, Description: description}
	s.categories = append(s.categories, c)
	return c
}

func (s *Store) AddMenuItem(item models.MenuItem, available bool) models.MenuItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	item.ID = s.nextMenu
	s.nextMenu++
	s.menu = append(s.menu, &menuRecord{MenuItem: item, Available: available})
	return item
}

func (s *Store) Categories() []models.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Category(nil), s.categories...)
}

// Menu lists available dishes only.
func (s *Store) Menu() []models.MenuItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]models.MenuItem, 0, len(s.menu))
	for _, m := range s.menu {
		if m.Available {
			items = append(items, m.MenuItem)
		}
	}
	return items
}

func (s *Store) MenuItem(id int64) (models.MenuItem, bool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := s.menuLocked(id)
	if m == nil {
		return models.MenuItem{}, false, false
	}
	return m.MenuItem, m.Available, true
}

func (s *Store) menuLocked(id int64) *menuRecord {
	for _, m := range s.menu {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func (s *Store) IsUserExists(username string) bool {
	_, ok := s.UserByUsername(username)
	return ok
}

func (s *Store) CreateUser(reg models.Registration, hashedPassword string, role models.Role) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Username, reg.Username) {
			return models.User{}, errUserExists
		}
		if reg.Email != "" && strings.EqualFold(u.Email, reg.Email) {
			return models.User{}, errEmailExists
		}
	}
	u := &userRecord{
		User: models.User{
			ID:       s.nextUser,
			Username: reg.Username,
			FullName: reg.FullName,
			Email:    reg.Email,
			Role:     role,
		},
		PasswordHash: hashedPassword,
	}
	s.nextUser++
	s.users[u.ID] = u
	return u.User, nil
}

func (s *Store) UserByUsername(username string) (userRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			return *u, true
		}
	}
	return userRecord{}, false
}

func (s *Store) UserByID(id int64) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return models.User{}, false
	}
	return u.User, true
}

type newOrder struct {
	UserID          int64
	CustomerName    string
	PaymentMethod   models.PaymentMethod
	DeliveryAddress *string
	Notes           *string
	Lines           []models.OrderLine
	IdempotencyKey  string
}

// unavailableError names the dish that cannot be ordered.
type unavailableError struct {
	name string
}

func (e *unavailableError) Error() string {
	return "菜品 '" + e.name + "' 未找到或不可用"
}

// CreateOrder prices the lines from the catalog and stores the order. A
// repeated idempotency key from the same user returns the first order.
func (s *Store) CreateOrder(o newOrder, now time.Time) (orderRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idemKey := ""
	if o.IdempotencyKey != "" {
		idemKey = strconv.FormatInt(o.UserID, 10) + ":" + o.IdempotencyKey
		if id, ok := s.idem[idemKey]; ok {
			return *s.orderLocked(id), true, nil
		}
	}

	rec := &orderRecord{
		UserID:          o.UserID,
		CustomerName:    o.CustomerName,
		PlacedAt:        now,
		Status:          models.OrderPending,
		PaymentStatus:   models.PaymentUnpaid,
		PaymentMethod:   o.PaymentMethod,
		DeliveryAddress: o.DeliveryAddress,
		Notes:           o.Notes,
		Total:           decimal.Zero,
	}
	for _, l := range o.Lines {
		m := s.menuLocked(l.MenuItemID)
		if m == nil || !m.Available {
			name := strconv.FormatInt(l.MenuItemID, 10)
			if m != nil {
				name = m.Name
			}
			return orderRecord{}, false, &unavailableError{name: name}
		}
		rec.Lines = append(rec.Lines, lineRecord{
			MenuItemID:      m.ID,
			Name:            m.Name,
			UnitPrice:       m.Price,
			Quantity:        l.Quantity,
			SpecialRequests: l.SpecialRequests,
		})
		rec.Total = rec.Total.Add(m.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}

	rec.ID = s.nextOrder
	s.nextOrder++
	s.orders = append(s.orders, rec)
	if idemKey != "" {
		s.idem[idemKey] = rec.ID
	}
	return *rec, false, nil
}

func (s *Store) orderLocked(id int64) *orderRecord {
	for _, o := range s.orders {
		if o.ID == id {
			return o
		}
	}
	return nil
}

func (s *Store) Order(id int64) (orderRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o := s.orderLocked(id)
	if o == nil {
		return orderRecord{}, false
	}
	return *o, true
}

// OrdersByUser returns one page of the user's orders, newest first, and the
// total count.
func (s *Store) OrdersByUser(userID int64, page, perPage int) ([]orderRecord, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var mine []orderRecord
	for _, o := range s.orders {
		if o.UserID == userID {
			mine = append(mine, *o)
		}
	}
	sort.SliceStable(mine, func(i, j int) bool {
		if mine[i].PlacedAt.Equal(mine[j].PlacedAt) {
			return mine[i].ID > mine[j].ID
		}
		return mine[i].PlacedAt.After(mine[j].PlacedAt)
	})

	start := (page - 1) * perPage
	if start >= len(mine) {
		return []orderRecord{}, len(mine)
	}
	end := start + perPage
	if end > len(mine) {
		end = len(mine)
	}
	return mine[start:end], len(mine)
}

func (s *Store) UpdateOrderStatus(id int64, status models.OrderStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.orderLocked(id)
	if o == nil {
		return false
	}
	o.Status = status
	if status == models.OrderCompleted || status == models.OrderDelivered {
		o.PaymentStatus = models.PaymentPaid
	}
	return true
}
