// Package server is a stand-in for the remote ordering API. It keeps all
// data in memory and is used by integration tests and cmd/stubapi.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/ray-remotestate/restroclient/models"
	"github.com/sirupsen/logrus"
)

type Server struct {
	Router *mux.Router
	Store  *Store
	server *http.Server

	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
	log      logrus.FieldLogger
}

type Options struct {
	SecretKey []byte
	TokenTTL  time.Duration
	Store     *Store
	Log       logrus.FieldLogger
	// Now overrides the clock for order timestamps.
	Now func() time.Time
}

const (
	readTimeout       = 5 * time.Minute
	readHeaderTimeout = 30 * time.Second
	writeTimeout      = 5 * time.Minute
)

func SetupRoutes(opts Options) *Server {
	if opts.Store == nil {
		opts.Store = NewStore()
		opts.Store.SeedMenu()
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	svr := &Server{
		Store:    opts.Store,
		secret:   opts.SecretKey,
		tokenTTL: opts.TokenTTL,
		now:      opts.Now,
		log:      opts.Log.WithField("component", "stubapi"),
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `{"alive": true}`)
	}).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/register", svr.Register).Methods("POST")
	api.HandleFunc("/auth/login", svr.Login).Methods("POST")
	api.HandleFunc("/categories", svr.ListCategories).Methods("GET")
	api.HandleFunc("/menu", svr.ListMenu).Methods("GET")
	api.HandleFunc("/menu/{id:[0-9]+}", svr.GetMenuItem).Methods("GET")

	authRoutes := api.NewRoute().Subrouter()
	authRoutes.Use(svr.AuthMiddleware)
	authRoutes.HandleFunc("/auth/me", svr.Me).Methods("GET")
	authRoutes.HandleFunc("/orders", svr.PlaceOrder).Methods("POST")
	authRoutes.HandleFunc("/orders/my", svr.MyOrders).Methods("GET")
	authRoutes.HandleFunc("/orders/{id:[0-9]+}", svr.GetOrder).Methods("GET")
	authRoutes.HandleFunc("/recipe-suggestion", svr.RecipeSuggestion).Methods("POST")

	// admin only
	admin := authRoutes.PathPrefix("/admin").Subrouter()
	admin.Use(RoleBasedMiddleware(models.RoleAdmin))
	admin.HandleFunc("/menu", svr.AddMenuItem).Methods("POST")
	admin.HandleFunc("/orders/{id:[0-9]+}/status", svr.UpdateOrderStatus).Methods("PUT")

	svr.Router = router
	return svr
}

func (svr *Server) Run(addr string) error {
	svr.server = &http.Server{
		Addr:              addr,
		Handler:           svr.Router,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}
	return svr.server.ListenAndServe()
}

func (svr *Server) Shutdown(timeout time.Duration) error {
	if svr.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return svr.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeAuthError uses the "message" key, as the token checks do.
func writeAuthError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
