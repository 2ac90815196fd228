package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quartzbyte/embedview/domains/dashboards/be/service"
	usersservice "github.com/quartzbyte/embedview/domains/users/be/service"
	workspacesservice "github.com/quartzbyte/embedview/domains/workspaces/be/service"
	platformauth "github.com/quartzbyte/embedview/platform/go/auth"
	"github.com/quartzbyte/embedview/platform/go/httpapi"
	platformlogging "github.com/quartzbyte/embedview/platform/go/logging"
)

// Handler exposes dashboard endpoints.
type Handler struct {
	svc      *service.Service
	users    *usersservice.Service
	validate *validator.Validate
	logger   *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, users *usersservice.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("dashboards service is required")
	}
	if users == nil {
		panic("users service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{
		svc:      svc,
		users:    users,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// log resolves the request-scoped logger so entries keep their request id.
func (h *Handler) log(r *http.Request) *zap.Logger {
	return platformlogging.FromRequest(r, h.logger)
}

// Routes registers the dashboard endpoints on the router.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/dashboards", func(r chi.Router) {
		r.Use(platformauth.RequireUser)
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Get("/{dashboardID}", h.get)
		r.Get("/{dashboardID}/embed-url", h.embedURL)
	})
}

type createBody struct {
	WorkspaceID string  `json:"workspace_id" validate:"required,uuid"`
	Name        string  `json:"name" validate:"required,min=1,max=255"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

type dashboardResponse struct {
	ID                  uuid.UUID `json:"id"`
	WorkspaceID         uuid.UUID `json:"workspace_id"`
	MetabaseDashboardID int       `json:"metabase_dashboard_id"`
	Name                string    `json:"name"`
	Description         *string   `json:"description,omitempty"`
	Public              bool      `json:"public"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

type embedURLResponse struct {
	URLPath   string    `json:"url_path"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var body createBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(body); err != nil {
		httpapi.WriteError(w, http.StatusUnprocessableEntity, httpapi.ValidationMessage(err))
		return
	}

	workspaceID, err := uuid.Parse(body.WorkspaceID)
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid workspace id")
		return
	}

	d, err := h.svc.Create(r.Context(), user.ID, service.CreateInput{
		WorkspaceID: workspaceID,
		Name:        body.Name,
		Description: body.Description,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "could not create dashboard")
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, toResponse(d))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	workspaceID, err := uuid.Parse(r.URL.Query().Get("workspace_id"))
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "workspace_id query parameter is required")
		return
	}

	items, err := h.svc.List(r.Context(), workspaceID, user.ID)
	if err != nil {
		h.writeServiceError(w, r, err, "could not list dashboards")
		return
	}

	out := make([]dashboardResponse, 0, len(items))
	for _, d := range items {
		out = append(out, toResponse(d))
	}
	httpapi.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	id, ok := h.dashboardID(w, r)
	if !ok {
		return
	}

	d, err := h.svc.Get(r.Context(), id, user.ID)
	if err != nil {
		h.writeServiceError(w, r, err, "could not fetch dashboard")
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toResponse(d))
}

func (h *Handler) embedURL(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	id, ok := h.dashboardID(w, r)
	if !ok {
		return
	}

	token, err := h.svc.EmbedURL(r.Context(), id, user.ID, nil, 0)
	if err != nil {
		h.writeServiceError(w, r, err, "could not issue embed url")
		return
	}

	httpapi.WriteJSON(w, http.StatusOK, embedURLResponse{
		URLPath:   token.Path,
		Token:     token.Value,
		ExpiresAt: token.ExpiresAt,
	})
}

func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (usersservice.User, bool) {
	creds, ok := platformauth.UserFromContext(r.Context())
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, "authentication required")
		return usersservice.User{}, false
	}

	user, err := h.users.Ensure(r.Context(), usersservice.EnsureInput{
		Email:       creds.Email,
		DisplayName: creds.Name,
	})
	if err != nil {
		h.log(r).Error("could not resolve current user", zap.Error(err))
		httpapi.WriteError(w, http.StatusInternalServerError, "could not resolve user")
		return usersservice.User{}, false
	}
	return user, true
}

func (h *Handler) dashboardID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "dashboardID"))
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid dashboard id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		httpapi.WriteError(w, http.StatusNotFound, "dashboard not found")
	case errors.Is(err, workspacesservice.ErrNotFound):
		httpapi.WriteError(w, http.StatusNotFound, "workspace not found")
	case errors.Is(err, workspacesservice.ErrForbidden):
		httpapi.WriteError(w, http.StatusForbidden, "access to workspace denied")
	case errors.Is(err, workspacesservice.ErrNotProvisioned):
		httpapi.WriteError(w, http.StatusConflict, "workspace has no linked collection")
	default:
		h.log(r).Error(fallback, zap.Error(err))
		httpapi.WriteError(w, http.StatusInternalServerError, fallback)
	}
}

func toResponse(d service.Dashboard) dashboardResponse {
	return dashboardResponse{
		ID:                  d.ID,
		WorkspaceID:         d.WorkspaceID,
		MetabaseDashboardID: d.MetabaseDashboardID,
		Name:                d.Name,
		Description:         d.Description,
		Public:              d.Public,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
	}
}
