package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ray-remotestate/restroclient/middlewares"
	"github.com/ray-remotestate/restroclient/models"
	"github.com/ray-remotestate/restroclient/utils"
)

type contextKey string

const userContextKey contextKey = "user"

func (svr *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr, err := middlewares.BearerToken(r)
		if err != nil {
			writeAuthError(w, http.StatusUnauthorized, "Token is missing!")
			return
		}

		claims, err := utils.VerifyAccessToken(svr.secret, tokenStr)
		if errors.Is(err, jwt.ErrTokenExpired) {
			writeAuthError(w, http.StatusUnauthorized, "Token has expired!")
			return
		}
		if err != nil {
			writeAuthError(w, http.StatusUnauthorized, "Token is invalid!")
			return
		}

		user, ok := svr.Store.UserByID(claims.UserID)
		if !ok {
			writeAuthError(w, http.StatusUnauthorized, "Token is invalid, user not found!")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetAuthenticatedUser(r *http.Request) (models.User, error) {
	user, ok := r.Context().Value(userContextKey).(models.User)
	if !ok {
		return models.User{}, errors.New("no user in context")
	}
	return user, nil
}

func RoleBasedMiddleware(allowedRoles ...models.Role) func(http.Handler) http.Handler {
	allowed := make(map[models.Role]bool)
	for _, role := range allowedRoles {
		allowed[role] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := GetAuthenticatedUser(r)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "Token is missing!")
				return
			}
			if !allowed[user.Role] {
				writeAuthError(w, http.StatusForbidden, "Admin privilege required!")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
