package httpapi

import (
	"net/http"
	"time"

	"scorecard.org/internal/auth"
)

const refreshCookieName = "refresh_token"

type registerRequest struct {
	Code     string `json:"code"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Code     string `json:"code"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string     `json:"access_token"`
	ExpiresAt   time.Time  `json:"expires_at"`
	User        *auth.User `json:"user"`
}

func (a *API) handleAuthRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if _, ok := requireAdmin(r.Context(), w); !ok {
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	role := auth.Role(req.Role)
	if req.Role == "" {
		role = auth.RoleUser
	}
	user, err := a.auth.Register(r.Context(), req.Code, req.Email, req.Password, role)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "REGISTER", "user", user.ID, map[string]any{
		"code": user.Code,
		"role": string(user.Role),
	})
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pair, principal, err := a.auth.Login(r.Context(), req.Code, req.Password)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	a.setRefreshCookie(w, pair.RefreshToken, pair.RefreshExpiresAt)

	// Attach the now-known principal so the audit entry carries an actor.
	ctx := auth.ContextWithPrincipal(r.Context(), principal)
	a.audit(ctx, "LOGIN", "user", principal.User.ID, nil)

	user := principal.User
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: pair.AccessToken,
		ExpiresAt:   pair.AccessExpiresAt,
		User:        &user,
	})
}

func (a *API) handleAuthRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	pair, principal, err := a.auth.Refresh(r.Context(), cookie.Value)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	a.setRefreshCookie(w, pair.RefreshToken, pair.RefreshExpiresAt)

	user := principal.User
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: pair.AccessToken,
		ExpiresAt:   pair.AccessExpiresAt,
		User:        &user,
	})
}

func (a *API) handleAuthLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	principal, ok := requirePrincipal(r.Context(), w)
	if !ok {
		return
	}
	if err := a.auth.Logout(r.Context(), principal.User.ID); err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.clearRefreshCookie(w)
	a.audit(r.Context(), "LOGOUT", "user", principal.User.ID, nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// setRefreshCookie scopes the long-lived token to the refresh path only.
func (a *API) setRefreshCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/auth/refresh",
		Expires:  expires,
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (a *API) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/auth/refresh",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}
