package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/DoyleJ11/vote-admin/internal/audit"
	"github.com/DoyleJ11/vote-admin/internal/backend"
	"github.com/DoyleJ11/vote-admin/internal/tally"
)

const maxUploadBytes = 10 << 20

type ctxKey struct{}

// Backend is the slice of the remote service the admin API calls.
type Backend interface {
	Login(ctx context.Context, username, password string) (string, error)
	Candidates(ctx context.Context) ([]tally.Candidate, error)
	CreateCandidate(ctx context.Context, nc backend.NewCandidate) error
	VerifyVotes(ctx context.Context) (string, error)
	ResetVotes(ctx context.Context) error
}

// BackendFor returns a Backend authorized with token; an empty token means
// an anonymous client.
type BackendFor func(token string) Backend

type api struct {
	backend    BackendFor
	audit      audit.Store
	auditLimit int
	log        *zap.Logger
}

func (a *api) Login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if body.Username == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	token, err := a.backend("").Login(r.Context(), body.Username, body.Password)
	a.record(r.Context(), audit.NewEntry(audit.ActionLogin, err, body.Username))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (a *api) Summary(w http.ResponseWriter, r *http.Request) {
	cands, err := a.backendFrom(r).Candidates(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tally.Summarize(tally.Seed(cands)))
}

func (a *api) CreateCandidate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "bad multipart form")
		return
	}
	nc := backend.NewCandidate{
		Name:     strings.TrimSpace(r.FormValue("name")),
		Position: strings.TrimSpace(r.FormValue("position")),
	}
	if file, hdr, err := r.FormFile("image"); err == nil {
		defer file.Close()
		nc.Image = file
		nc.ImageName = hdr.Filename
	}

	err := a.backendFrom(r).CreateCandidate(r.Context(), nc)
	a.record(r.Context(), audit.NewEntry(audit.ActionCandidateCreate, err, nc.Name))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Candidate added successfully!"})
}

func (a *api) VerifyVotes(w http.ResponseWriter, r *http.Request) {
	msg, err := a.backendFrom(r).VerifyVotes(r.Context())
	a.record(r.Context(), audit.NewEntry(audit.ActionVotesVerify, err, msg))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (a *api) ResetVotes(w http.ResponseWriter, r *http.Request) {
	err := a.backendFrom(r).ResetVotes(r.Context())
	a.record(r.Context(), audit.NewEntry(audit.ActionVotesReset, err, ""))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Votes reset"})
}

func (a *api) Audit(w http.ResponseWriter, r *http.Request) {
	entries, err := a.audit.Recent(r.Context(), a.auditLimit)
	if err != nil {
		a.log.Error("list audit entries", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// RequireToken rejects requests without a bearer token and stashes it for
// the handlers.
func RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearer(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, token)))
	})
}

func (a *api) backendFrom(r *http.Request) Backend {
	token, _ := r.Context().Value(ctxKey{}).(string)
	return a.backend(token)
}

func (a *api) record(ctx context.Context, e audit.Entry) {
	if err := a.audit.Record(context.WithoutCancel(ctx), e); err != nil {
		a.log.Warn("audit record failed", zap.String("action", string(e.Action)), zap.Error(err))
	}
}

// fail maps backend errors onto status codes. Auth failures are always 401 so
// the dashboard can send the admin back to login.
func (a *api) fail(w http.ResponseWriter, err error) {
	var se *backend.StatusError
	switch {
	case errors.Is(err, backend.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, backend.ErrInvalidCandidate):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, backend.ErrNoToken):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.As(err, &se):
		writeError(w, http.StatusBadGateway, se.Msg)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "backend timed out")
	default:
		a.log.Warn("backend call failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "backend unavailable")
	}
}

func bearer(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
