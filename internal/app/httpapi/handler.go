// Package httpapi exposes the workflow engine over REST. The caller's
// identity is supplied explicitly on every request via the X-Actor-ID header;
// the engine never reads ambient session state. Authentication itself is the
// responsibility of the deployment's edge.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	app "github.com/oddo-hq/expenseflow/internal/app"
	"github.com/oddo-hq/expenseflow/internal/app/domain/expense"
	"github.com/oddo-hq/expenseflow/internal/app/domain/user"
	"github.com/oddo-hq/expenseflow/internal/app/metrics"
	"github.com/oddo-hq/expenseflow/internal/app/services/approvals"
	"github.com/oddo-hq/expenseflow/internal/app/services/expenses"
	"github.com/oddo-hq/expenseflow/internal/app/storage"
)

// actorHeader carries the caller's user id.
const actorHeader = "X-Actor-ID"

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
}

// NewHandler returns a router exposing the core REST API.
func NewHandler(application *app.Application) http.Handler {
	h := &handler{app: application}

	r := mux.NewRouter()
	r.Use(metrics.Middleware)

	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/users", h.listUsers).Methods(http.MethodGet)
	r.HandleFunc("/users", h.createUser).Methods(http.MethodPost)

	r.HandleFunc("/expenses", h.submitExpense).Methods(http.MethodPost)
	r.HandleFunc("/expenses", h.listExpenses).Methods(http.MethodGet)
	r.HandleFunc("/expenses/{id}", h.getExpense).Methods(http.MethodGet)
	r.HandleFunc("/expenses/{id}/cancel", h.cancelExpense).Methods(http.MethodPost)

	r.HandleFunc("/approvals/{id}", h.decideApproval).Methods(http.MethodPatch)

	return r
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) listUsers(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Users.List(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) createUser(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	role, err := user.ParseRole(payload.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	created, err := h.app.Users.Create(r.Context(), payload.Name, payload.Email, role)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) submitExpense(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Title       string  `json:"title"`
		Description string  `json:"description"`
		Amount      float64 `json:"amount"`
		Currency    string  `json:"currency"`
		OwnerID     string  `json:"owner_id"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ownerID := payload.OwnerID
	if ownerID == "" {
		ownerID = strings.TrimSpace(r.Header.Get(actorHeader))
	}

	detail, err := h.app.Expenses.Submit(r.Context(), expenses.SubmitInput{
		Title:       payload.Title,
		Description: payload.Description,
		Amount:      payload.Amount,
		Currency:    payload.Currency,
		OwnerID:     ownerID,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, detail)
}

func (h *handler) listExpenses(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actor(r)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	list, err := h.app.Expenses.List(r.Context(), actor)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) getExpense(w http.ResponseWriter, r *http.Request) {
	detail, err := h.app.Expenses.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *handler) cancelExpense(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actor(r)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	detail, err := h.app.Expenses.Cancel(r.Context(), mux.Vars(r)["id"], actor)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *handler) decideApproval(w http.ResponseWriter, r *http.Request) {
	actor, err := h.actor(r)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	var payload struct {
		Status  string `json:"status"`
		Comment string `json:"comment"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	decision, err := expense.ParseDecision(payload.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	detail, err := h.app.Approvals.Decide(r.Context(), mux.Vars(r)["id"], decision, actor, payload.Comment)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// actor resolves the caller from the X-Actor-ID header.
func (h *handler) actor(r *http.Request) (user.User, error) {
	id := strings.TrimSpace(r.Header.Get(actorHeader))
	if id == "" {
		return user.User{}, fmt.Errorf("%s header is required: %w", actorHeader, approvals.ErrInvalidInput)
	}
	return h.app.Users.Get(r.Context(), id)
}

// statusFor maps the service error taxonomy onto HTTP status codes. Storage
// failures fall through to 500 so they are never mistaken for business-rule
// rejections.
func statusFor(err error) int {
	switch {
	case errors.Is(err, approvals.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, approvals.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, approvals.ErrAlreadyDecided), errors.Is(err, storage.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, approvals.ErrUnroutable):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
