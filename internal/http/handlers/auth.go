package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/geopix/geopix-back/internal/auth"
	"github.com/geopix/geopix-back/internal/domain"
	"github.com/geopix/geopix-back/internal/http/middleware"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (api *API) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var request loginRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}

	fields := map[string]string{}
	if strings.TrimSpace(request.Email) == "" {
		fields["email"] = "email is required"
	}
	if request.Password == "" {
		fields["password"] = "password is required"
	}
	if len(fields) > 0 {
		writeValidationError(w, r, fields)
		return
	}

	token, user, err := api.authService.Login(r.Context(), request.Email, request.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, r, http.StatusUnauthorized, "invalid_credentials", "email or password is incorrect")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to sign in")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  publicUser(user),
	})
}

func (api *API) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	if err := api.authService.Logout(r.Context(), middleware.BearerToken(r)); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to sign out")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (api *API) Me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, publicUser(middleware.GetUser(r.Context())))
}

func publicUser(user *domain.User) map[string]any {
	if user == nil {
		return nil
	}
	return map[string]any{
		"id":    user.ID,
		"email": user.Email,
		"name":  user.Name,
	}
}
