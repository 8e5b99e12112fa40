package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/tokenkeeper/internal/session/domain"
	"github.com/aussiebroadwan/tokenkeeper/internal/session/service"
	"github.com/aussiebroadwan/tokenkeeper/pkg/authsdk"
	"github.com/aussiebroadwan/tokenkeeper/pkg/httpx"
	"github.com/aussiebroadwan/tokenkeeper/pkg/slogx"
)

// AdminHandler serves the administrative endpoints. Every route is behind
// the request-auth guard and an admin role check.
type AdminHandler struct {
	Admin *service.AdminService
}

// HandleDeactivate godoc
//
//	@Summary		Deactivate a subject
//	@Description	Flags the subject so no new session can be issued and revokes its current sessions.
//	@Tags			Admin
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Subject ID"
//	@Success		200	{object}	authsdk.DeactivationResponse
//	@Failure		401	{object}	authsdk.APIError	"unauthorized"
//	@Failure		403	{object}	authsdk.APIError	"forbidden"
//	@Failure		404	{object}	authsdk.APIError	"not_found"
//	@Router			/v1/admin/subjects/{id}/deactivate [post].
func (h *AdminHandler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	n, err := h.Admin.Deactivate(r.Context(), id)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.DeactivationResponse{
		SubjectID:       id,
		Deactivated:     true,
		RevokedSessions: n,
	})
}

// HandleReactivate godoc
//
//	@Summary		Reactivate a subject
//	@Description	Clears the deactivation flag. Sessions revoked on deactivation stay revoked.
//	@Tags			Admin
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Subject ID"
//	@Success		200	{object}	authsdk.DeactivationResponse
//	@Failure		404	{object}	authsdk.APIError	"not_found"
//	@Router			/v1/admin/subjects/{id}/reactivate [post].
func (h *AdminHandler) HandleReactivate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.Admin.Reactivate(r.Context(), id); err != nil {
		writeAdminError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.DeactivationResponse{SubjectID: id})
}

// HandleListSessions godoc
//
//	@Summary		List a subject's sessions
//	@Description	Returns every stored session record for the subject, newest first, with its deactivation status. Tokens are never returned.
//	@Tags			Admin
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Subject ID"
//	@Success		200	{object}	authsdk.SessionsResponse
//	@Router			/v1/admin/subjects/{id}/sessions [get].
func (h *AdminHandler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	recs, err := h.Admin.ListSessions(r.Context(), id)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}

	since, deactivated, err := h.Admin.DeactivatedSince(r.Context(), id)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}

	out := authsdk.SessionsResponse{
		SubjectID:   id,
		Deactivated: deactivated,
		Sessions:    make([]authsdk.SessionInfo, 0, len(recs)),
	}
	if deactivated && !since.IsZero() {
		out.DeactivatedAt = &since
	}
	for _, c := range recs {
		out.Sessions = append(out.Sessions, sessionDTO(c))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleSweep godoc
//
//	@Summary		Run an expiry sweep
//	@Description	Revokes every active session whose access or refresh token has expired.
//	@Tags			Admin
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	authsdk.SweepResponse
//	@Router			/v1/admin/sweep [post].
func (h *AdminHandler) HandleSweep(w http.ResponseWriter, r *http.Request) {
	n, err := h.Admin.Sweep(r.Context())
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.SweepResponse{Swept: n})
}

func writeAdminError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, service.ErrSubjectNotFound) {
		httpx.WriteError(w, http.StatusNotFound, authsdk.ErrorCodeNotFound, "subject not found")
		return
	}
	slogx.FromContext(r.Context()).Error("admin request failed", "error", err)
	httpx.WriteError(w, http.StatusInternalServerError, authsdk.ErrorCodeServerError, "")
}

func sessionDTO(c domain.Credential) authsdk.SessionInfo {
	return authsdk.SessionInfo{
		ID:               c.ID,
		Role:             c.Role.String(),
		Status:           string(c.Status),
		IssuedAt:         c.IssuedAt,
		AccessExpiresAt:  c.AccessExpiresAt,
		RefreshExpiresAt: c.RefreshExpiresAt,
		LastUsedAt:       c.LastUsedAt,
		RevokedAt:        c.RevokedAt,
	}
}
