package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/couchcryptid/meteo-rt/internal/domain"
	"github.com/couchcryptid/meteo-rt/internal/orchestrator"
	"github.com/couchcryptid/meteo-rt/internal/session"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

// Service is the orchestrator surface the API drives.
type Service interface {
	Generate(ctx context.Context) (domain.Record, error)
	RefreshWeather(ctx context.Context, id string) (domain.Record, error)
	ViewHistory(id string) (domain.Record, error)
	PinProvince(p domain.Province) error
	History(page, size int) (domain.History, int)
	State() orchestrator.State
}

// Authenticator issues and checks session tokens.
type Authenticator interface {
	Login(password string) (session.Session, string, error)
	Verify(token string) (session.Session, error)
}

const (
	msgWrongPassword  = "Password non corretta"
	msgInvalidSession = "Sessione non valida o scaduta"
	msgBadRequest     = "Richiesta non valida"
	maxBodyBytes      = 1 << 16
	maxPageSize       = 100
)

type api struct {
	svc    Service
	gate   Authenticator
	logger *slog.Logger
}

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	session.Session
	Token string `json:"token"`
}

type pinRequest struct {
	Province string `json:"province"`
}

type historyResponse struct {
	Items      domain.History `json:"items"`
	Page       int            `json:"page"`
	Size       int            `json:"size"`
	TotalPages int            `json:"total_pages"`
}

type provinceInfo struct {
	Name   domain.Province `json:"name"`
	Code   string          `json:"sigla"`
	Comuni int             `json:"comuni"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *api) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s, token, err := a.gate.Login(req.Password)
	if err != nil {
		if !errors.Is(err, session.ErrUnauthorized) {
			a.logger.Error("session login failed", "error", err)
		}
		sharedobs.WriteJSON(w, http.StatusUnauthorized, errorResponse{Error: msgWrongPassword})
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, loginResponse{Session: s, Token: token})
}

// requireSession rejects requests without a valid bearer token.
func (a *api) requireSession(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			sharedobs.WriteJSON(w, http.StatusUnauthorized, errorResponse{Error: msgInvalidSession})
			return
		}
		if _, err := a.gate.Verify(strings.TrimSpace(token)); err != nil {
			sharedobs.WriteJSON(w, http.StatusUnauthorized, errorResponse{Error: msgInvalidSession})
			return
		}
		next(w, r)
	})
}

func (a *api) handleState(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, a.svc.State())
}

// handleGenerate and handleRefresh detach from the request context: a
// started generation runs to completion even if the client goes away.
func (a *api) handleGenerate(w http.ResponseWriter, r *http.Request) {
	rec, err := a.svc.Generate(context.WithoutCancel(r.Context()))
	if err != nil {
		a.writeError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusCreated, rec)
}

func (a *api) handleRefresh(w http.ResponseWriter, r *http.Request) {
	rec, err := a.svc.RefreshWeather(context.WithoutCancel(r.Context()), r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusCreated, rec)
}

func (a *api) handleView(w http.ResponseWriter, r *http.Request) {
	rec, err := a.svc.ViewHistory(r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, rec)
}

func (a *api) handleHistory(w http.ResponseWriter, r *http.Request) {
	page, ok := queryInt(w, r, "page", 1)
	if !ok {
		return
	}
	size, ok := queryInt(w, r, "size", domain.DefaultPageSize)
	if !ok {
		return
	}
	size = min(size, maxPageSize)
	items, total := a.svc.History(page-1, size)
	sharedobs.WriteJSON(w, http.StatusOK, historyResponse{Items: items, Page: page, Size: size, TotalPages: total})
}

func (a *api) handlePin(w http.ResponseWriter, r *http.Request) {
	var req pinRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := domain.ParseProvince(req.Province)
	if err == nil {
		err = a.svc.PinProvince(p)
	}
	if err != nil {
		a.writeError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, a.svc.State())
}

func (a *api) handleProvinces(w http.ResponseWriter, _ *http.Request) {
	provinces := domain.Provinces()
	out := make([]provinceInfo, 0, len(provinces))
	for _, p := range provinces {
		comuni := domain.ComuniOf(p)
		out = append(out, provinceInfo{Name: p, Code: comuni[0].Code, Comuni: len(comuni)})
	}
	sharedobs.WriteJSON(w, http.StatusOK, out)
}

func (a *api) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Warn("api request failed", "status", status, "error", err)
	}
	sharedobs.WriteJSON(w, status, errorResponse{Error: domain.UserMessage(err)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnknownProvince):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusBadGateway
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		sharedobs.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: msgBadRequest})
		return false
	}
	return true
}

func queryInt(w http.ResponseWriter, r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		sharedobs.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: msgBadRequest})
		return 0, false
	}
	return n, true
}
