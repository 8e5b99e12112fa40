package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/tokenkeeper/internal/session/domain"
	"github.com/aussiebroadwan/tokenkeeper/internal/session/service"
	"github.com/aussiebroadwan/tokenkeeper/pkg/authsdk"
	"github.com/aussiebroadwan/tokenkeeper/pkg/httpx"
	"github.com/aussiebroadwan/tokenkeeper/pkg/slogx"
)

// AuthHandler serves login, refresh, validate and logout.
type AuthHandler struct {
	Sessions *service.SessionService
	Login    *service.LoginService
}

// HandleLogin godoc
//
//	@Summary		Log in
//	@Description	Checks login and password (and TOTP code for accounts with 2FA) and issues a new token pair.
//	@Description	Any session the subject already had is revoked.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	authsdk.TokenResponse
//	@Failure		400		{object}	authsdk.APIError	"invalid_request"
//	@Failure		401		{object}	authsdk.APIError	"invalid_credentials or otp_required"
//	@Failure		403		{object}	authsdk.APIError	"account deactivated"
//	@Failure		429		{object}	authsdk.APIError	"rate_limit_exceeded"
//	@Router			/v1/auth/login [post].
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	l := slogx.FromContext(r.Context())

	var req authsdk.LoginRequest
	if err := httpx.DecodeJSON(w, r, &req, false); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "invalid request body")
		return
	}

	pair, p, err := h.Login.Login(r.Context(), req.Login, req.Password, req.OTP)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrOTPRequired):
		httpx.WriteError(w, http.StatusUnauthorized, authsdk.ErrorCodeOTPRequired, "one-time code required")
		return
	case errors.Is(err, service.ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials, "invalid login or password")
		return
	case errors.Is(err, service.ErrAccountDeactivated):
		httpx.WriteError(w, http.StatusForbidden, authsdk.ErrorCodeForbidden, "")
		return
	default:
		l.Error("login failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, authsdk.ErrorCodeServerError, "")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, h.tokenResponse(pair, &p))
}

// HandleRefresh godoc
//
//	@Summary		Rotate a token pair
//	@Description	Trades a refresh token for a new pair. Refresh tokens work once; any failure is a 403.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RefreshRequest	true	"Refresh token"
//	@Success		200		{object}	authsdk.TokenResponse
//	@Failure		400		{object}	authsdk.APIError	"invalid_request"
//	@Failure		403		{object}	authsdk.APIError	"forbidden"
//	@Router			/v1/auth/refresh [post].
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	l := slogx.FromContext(r.Context())

	var req authsdk.RefreshRequest
	if err := httpx.DecodeJSON(w, r, &req, false); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "invalid request body")
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		httpx.WriteError(w, http.StatusForbidden, authsdk.ErrorCodeForbidden, "")
		return
	}

	pair, err := h.Sessions.Rotate(r.Context(), req.RefreshToken)
	if err != nil {
		l.Info("refresh rejected", "reason", service.Reason(err), "error", err)
		httpx.WriteError(w, http.StatusForbidden, authsdk.ErrorCodeForbidden, "")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, h.tokenResponse(pair, nil))
}

// HandleValidate godoc
//
//	@Summary		Validate an access token
//	@Description	Returns the principal the bearer token was issued to. Revoked, expired and forged tokens all get the same 401.
//	@Tags			Auth
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	authsdk.ValidateResponse
//	@Failure		401	{object}	authsdk.APIError	"unauthorized"
//	@Router			/v1/auth/validate [get].
func (h *AuthHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	l := slogx.FromContext(r.Context())

	raw, ok := httpx.BearerToken(r)
	if !ok {
		httpx.WriteBearerError(w, "missing bearer token")
		return
	}

	p, err := h.Sessions.Validate(r.Context(), raw)
	if err != nil {
		if errors.Is(err, service.ErrStoreUnavailable) {
			l.Error("validate failed closed", "error", err)
		} else {
			l.Info("validate rejected", "reason", service.Reason(err))
		}
		httpx.WriteBearerError(w, "token verification failed")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.ValidateResponse{
		Valid:     true,
		Principal: principalDTO(p),
	})
}

// HandleLogout godoc
//
//	@Summary		Log out
//	@Description	Revokes the bearer access token and/or the refresh token in the body. Always succeeds.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		authsdk.LogoutRequest	false	"Refresh token"
//	@Success		200		{object}	map[string]string
//	@Router			/v1/auth/logout [post].
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	l := slogx.FromContext(r.Context())

	access, _ := httpx.BearerToken(r)

	var req authsdk.LogoutRequest
	if err := httpx.DecodeJSON(w, r, &req, true); err != nil {
		l.Debug("logout body ignored", "error", err)
	}

	if err := h.Sessions.Revoke(r.Context(), access, strings.TrimSpace(req.RefreshToken)); err != nil {
		l.Error("logout revoke failed", "error", err)
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (h *AuthHandler) tokenResponse(pair domain.TokenPair, p *domain.Principal) authsdk.TokenResponse {
	res := authsdk.TokenResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		TokenType:        "Bearer",
		ExpiresIn:        int64(h.Sessions.Codec.AccessTTL().Seconds()),
		RefreshExpiresIn: int64(h.Sessions.Codec.RefreshTTL().Seconds()),
	}
	if p != nil {
		dto := principalDTO(*p)
		res.Principal = &dto
	}
	return res
}

func principalDTO(p domain.Principal) authsdk.Principal {
	return authsdk.Principal{SubjectID: p.SubjectID, Role: p.Role.String()}
}
