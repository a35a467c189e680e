package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"example.com/agenda/internal/identity"
	"example.com/agenda/internal/session"
)

// SignUpRequest is the payload for POST /v1/auth/signup.
type SignUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
}

// SignInRequest is the payload for POST /v1/auth/signin.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// FederatedSignInRequest is the payload for POST /v1/auth/signin/federated.
// The gateway in front of this service has already verified the provider
// assertion.
type FederatedSignInRequest struct {
	Provider    string `json:"provider"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
}

// RefreshRequest carries a refresh token for sign-out and token refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// PasswordResetRequest is the payload for POST /v1/auth/password-reset.
type PasswordResetRequest struct {
	Email string `json:"email"`
}

// PasswordResetConfirmRequest completes a reset with the emailed token.
type PasswordResetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// SessionResponse is returned by every successful authentication.
type SessionResponse struct {
	UserID          string    `json:"user_id"`
	Email           string    `json:"email"`
	DisplayName     string    `json:"display_name,omitempty"`
	AccessToken     string    `json:"access_token"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
	RefreshToken    string    `json:"refresh_token"`
}

func (h *Handler) signUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if !decodePost(w, r, &req) {
		return
	}
	sess, err := h.identity.SignUp(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(sess))
}

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if !decodePost(w, r, &req) {
		return
	}
	sess, err := h.identity.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (h *Handler) signInFederated(w http.ResponseWriter, r *http.Request) {
	var req FederatedSignInRequest
	if !decodePost(w, r, &req) {
		return
	}
	sess, err := h.identity.SignInFederated(r.Context(), req.Provider, req.Email, req.DisplayName)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (h *Handler) signOut(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decodePost(w, r, &req) {
		return
	}
	if err := h.identity.SignOut(r.Context(), req.RefreshToken); err != nil {
		writeAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decodePost(w, r, &req) {
		return
	}
	sess, err := h.identity.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "refresh session expired")
			return
		}
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (h *Handler) requestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequest
	if !decodePost(w, r, &req) {
		return
	}
	// The token is handed to the mail delivery pipeline, never to the
	// caller, so an unknown email is indistinguishable from a known one.
	if _, err := h.identity.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) confirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetConfirmRequest
	if !decodePost(w, r, &req) {
		return
	}
	if err := h.identity.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		writeAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodePost(w http.ResponseWriter, r *http.Request, into interface{}) bool {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return false
	}
	return true
}

func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", err.Error())
	case errors.Is(err, identity.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user_not_found", err.Error())
	case errors.Is(err, identity.ErrEmailAlreadyInUse):
		writeError(w, http.StatusConflict, "email_already_in_use", err.Error())
	case errors.Is(err, identity.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, "weak_password", err.Error())
	case errors.Is(err, identity.ErrTooManyRequests):
		writeError(w, http.StatusTooManyRequests, "too_many_requests", err.Error())
	case errors.Is(err, identity.ErrInvalidEmail):
		writeError(w, http.StatusBadRequest, "invalid_email", err.Error())
	case errors.Is(err, identity.ErrResetTokenInvalid):
		writeError(w, http.StatusBadRequest, "reset_token_invalid", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func toSessionResponse(sess *identity.Session) SessionResponse {
	return SessionResponse{
		UserID:          sess.User.ID,
		Email:           sess.User.Email,
		DisplayName:     sess.User.DisplayName,
		AccessToken:     sess.AccessToken,
		AccessExpiresAt: sess.AccessExpiresAt,
		RefreshToken:    sess.RefreshToken,
	}
}
