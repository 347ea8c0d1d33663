package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gorilla/mux"
	"github.com/ray-remotestate/restroclient/models"
	"github.com/ray-remotestate/restroclient/utils"
	"github.com/shopspring/decimal"
)

const (
	minPasswordLength = 6
	maxPerPage        = 100
	orderTimeLayout   = "2006-01-02 15:04:05"
)

func (svr *Server) Register(w http.ResponseWriter, r *http.Request) {
	var req models.Registration
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "用户名和密码不能为空")
		return
	}
	if utf8.RuneCountInString(req.Password) < minPasswordLength {
		writeError(w, http.StatusBadRequest, "密码长度至少为6位")
		return
	}
	if svr.Store.IsUserExists(req.Username) {
		writeError(w, http.StatusConflict, errUserExists.Error())
		return
	}

	hashedPassword, err := utils.HashPassword(req.Password)
	if err != nil {
		svr.log.WithError(err).Error("failed to hash password")
		writeError(w, http.StatusInternalServerError, "用户注册失败，请稍后再试")
		return
	}

	user, err := svr.Store.CreateUser(req, hashedPassword, models.RoleUser)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	svr.log.WithField("user_id", user.ID).Info("user registered")
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "用户注册成功",
		"user_id": user.ID,
	})
}

func (svr *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req models.Credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "请输入用户名和密码")
		return
	}

	rec, ok := svr.Store.UserByUsername(req.Username)
	if !ok || !utils.CheckPassword(rec.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "用户名或密码错误")
		return
	}

	accessToken, err := utils.GenerateAccessToken(svr.secret, rec.User, svr.tokenTTL)
	if err != nil {
		svr.log.WithError(err).Error("failed to generate token")
		writeError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	user := rec.User
	writeJSON(w, http.StatusOK, models.LoginResponse{
		Message:     "登录成功",
		AccessToken: accessToken,
		User:        &user,
	})
}

func (svr *Server) Me(w http.ResponseWriter, r *http.Request) {
	user, err := GetAuthenticatedUser(r)
	if err != nil {
		writeAuthError(w, http.StatusUnauthorized, "Token is missing!")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (svr *Server) ListCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, svr.Store.Categories())
}

func (svr *Server) ListMenu(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, svr.Store.Menu())
}

func (svr *Server) GetMenuItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid menu item id")
		return
	}
	item, _, ok := svr.Store.MenuItem(id)
	if !ok {
		writeError(w, http.StatusNotFound, "菜品未找到")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (svr *Server) AddMenuItem(w http.ResponseWriter, r *http.Request) {
	var req models.MenuItem
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "价格或分类ID格式无效")
		return
	}
	if strings.TrimSpace(req.Name) == "" || !req.Price.IsPositive() {
		writeError(w, http.StatusBadRequest, "缺少必要参数: name, price")
		return
	}
	item := svr.Store.AddMenuItem(req, true)
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "菜品添加成功",
		"item_id": item.ID,
	})
}

type placeOrderRequest struct {
	Items           []orderLineInput     `json:"items"`
	PaymentMethod   models.PaymentMethod `json:"payment_method"`
	DeliveryAddress *string              `json:"delivery_address"`
	Notes           *string              `json:"notes"`
}

type orderLineInput struct {
	MenuItemID      *int64  `json:"menu_item_id"`
	Quantity        *int    `json:"quantity"`
	SpecialRequests *string `json:"special_requests"`
}

// PlaceOrder prices every line from the catalog; client prices are never
// trusted.
func (svr *Server) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	user, err := GetAuthenticatedUser(r)
	if err != nil {
		writeAuthError(w, http.StatusUnauthorized, "Token is missing!")
		return
	}

	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "缺少必要参数 (items)")
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "订单项目(items)必须是非空列表")
		return
	}
	if req.PaymentMethod != "" && !req.PaymentMethod.IsValid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("无效的支付方式: %s", req.PaymentMethod))
		return
	}

	lines := make([]models.OrderLine, 0, len(req.Items))
	for _, it := range req.Items {
		if it.MenuItemID == nil || it.Quantity == nil {
			writeError(w, http.StatusBadRequest, "订单项目中缺少 menu_item_id 或 quantity")
			return
		}
		if *it.Quantity <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("菜品ID %d 的数量必须为正整数", *it.MenuItemID))
			return
		}
		lines = append(lines, models.OrderLine{
			MenuItemID:      *it.MenuItemID,
			Quantity:        *it.Quantity,
			SpecialRequests: it.SpecialRequests,
		})
	}

	rec, replayed, err := svr.Store.CreateOrder(newOrder{
		UserID:          user.ID,
		CustomerName:    user.DisplayName(),
		PaymentMethod:   req.PaymentMethod,
		DeliveryAddress: req.DeliveryAddress,
		Notes:           req.Notes,
		Lines:           lines,
		IdempotencyKey:  r.Header.Get("Idempotency-Key"),
	}, svr.now())
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	log := svr.log.WithField("user_id", user.ID).WithField("order_id", rec.ID)
	if replayed {
		log.Info("replayed order for repeated idempotency key")
	} else {
		log.Info("order created")
	}
	writeJSON(w, http.StatusCreated, models.PlacedOrder{
		Message:     "订单创建成功",
		OrderID:     rec.ID,
		TotalAmount: rec.Total,
	})
}

func (svr *Server) MyOrders(w http.ResponseWriter, r *http.Request) {
	user, err := GetAuthenticatedUser(r)
	if err != nil {
		writeAuthError(w, http.StatusUnauthorized, "Token is missing!")
		return
	}

	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "per_page", 10)
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 1
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	recs, total := svr.Store.OrdersByUser(user.ID, page, perPage)
	orders := make([]models.OrderSummary, 0, len(recs))
	for _, rec := range recs {
		orders = append(orders, summaryOf(rec))
	}
	writeJSON(w, http.StatusOK, models.OrderPage{
		Orders:      orders,
		TotalOrders: total,
		Page:        page,
		PerPage:     perPage,
	})
}

func (svr *Server) GetOrder(w http.ResponseWriter, r *http.Request) {
	user, err := GetAuthenticatedUser(r)
	if err != nil {
		writeAuthError(w, http.StatusUnauthorized, "Token is missing!")
		return
	}
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	rec, ok := svr.Store.Order(id)
	if !ok {
		writeError(w, http.StatusNotFound, "订单未找到")
		return
	}
	if rec.UserID != user.ID && user.Role != models.RoleAdmin {
		writeError(w, http.StatusForbidden, "无权访问此订单")
		return
	}

	detail := models.OrderDetail{
		OrderSummary:    summaryOf(rec),
		CustomerName:    rec.CustomerName,
		PaymentMethod:   rec.PaymentMethod,
		DeliveryAddress: rec.DeliveryAddress,
		Notes:           rec.Notes,
		Items:           make([]models.OrderDetailItem, 0, len(rec.Lines)),
	}
	for _, l := range rec.Lines {
		detail.Items = append(detail.Items, models.OrderDetailItem{
			ItemName:        l.Name,
			ItemPrice:       l.UnitPrice,
			Quantity:        l.Quantity,
			Subtotal:        l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))),
			SpecialRequests: l.SpecialRequests,
		})
	}
	writeJSON(w, http.StatusOK, detail)
}

func (svr *Server) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	var req struct {
		Status models.OrderStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		writeError(w, http.StatusBadRequest, "缺少新状态 (status) 参数")
		return
	}
	if !req.Status.IsValid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("无效的订单状态: %s", req.Status))
		return
	}
	if !svr.Store.UpdateOrderStatus(id, req.Status) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("更新订单 %d 状态失败，订单可能不存在", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("订单 %d 状态已更新为 %s", id, req.Status),
	})
}

// RecipeSuggestion answers with a canned pairing; the stub has no model
// behind it.
func (svr *Server) RecipeSuggestion(w http.ResponseWriter, r *http.Request) {
	var req models.SuggestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "current_dishes 必须是一个列表")
		return
	}

	var b strings.Builder
	if len(req.CurrentDishes) == 0 {
		b.WriteString("您还没有点菜，可以先试试我们的招牌宫保鸡丁。")
	} else {
		fmt.Fprintf(&b, "您已点了%s，建议再来一份酸辣汤，清爽解腻。", strings.Join(req.CurrentDishes, "、"))
	}
	if p := strings.TrimSpace(req.Preferences); p != "" {
		fmt.Fprintf(&b, " (偏好: %s)", p)
	}
	writeJSON(w, http.StatusOK, models.SuggestionResponse{Suggestion: b.String()})
}

func summaryOf(rec orderRecord) models.OrderSummary {
	return models.OrderSummary{
		ID:            rec.ID,
		TotalAmount:   rec.Total,
		OrderTime:     rec.PlacedAt.Format(orderTimeLayout),
		Status:        rec.Status,
		PaymentStatus: rec.PaymentStatus,
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return v
}
