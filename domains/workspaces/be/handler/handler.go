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

	usersservice "github.com/quartzbyte/embedview/domains/users/be/service"
	"github.com/quartzbyte/embedview/domains/workspaces/be/service"
	platformauth "github.com/quartzbyte/embedview/platform/go/auth"
	"github.com/quartzbyte/embedview/platform/go/httpapi"
	platformlogging "github.com/quartzbyte/embedview/platform/go/logging"
)

// Handler exposes workspace lifecycle endpoints.
type Handler struct {
	svc      *service.Service
	users    *usersservice.Service
	validate *validator.Validate
	logger   *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, users *usersservice.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("workspaces service is required")
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

// Routes registers the workspace endpoints on the router.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/workspaces", func(r chi.Router) {
		r.Use(platformauth.RequireUser)
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Get("/{workspaceID}", h.get)
		r.Patch("/{workspaceID}", h.update)
		r.Delete("/{workspaceID}", h.remove)
		r.Get("/{workspaceID}/embed-url", h.embedURL)
	})
}

type createBody struct {
	Name        string  `json:"name" validate:"required,min=1,max=255"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

type updateBody struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

type workspaceResponse struct {
	ID                   uuid.UUID `json:"id"`
	Name                 string    `json:"name"`
	Description          *string   `json:"description,omitempty"`
	OwnerID              uuid.UUID `json:"owner_id"`
	MetabaseCollectionID *int      `json:"metabase_collection_id,omitempty"`
	MetabaseGroupID      *int      `json:"metabase_group_id,omitempty"`
	MetabaseDatabaseID   *int      `json:"metabase_database_id,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
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

	ws, err := h.svc.Create(r.Context(), service.CreateInput{
		Name:                body.Name,
		Description:         body.Description,
		OwnerID:             user.ID,
		OwnerMetabaseUserID: user.MetabaseUserID,
	})
	if err != nil {
		h.log(r).Error("workspace creation failed", zap.Error(err))
		httpapi.WriteError(w, http.StatusBadGateway, "could not create workspace")
		return
	}

	httpapi.WriteJSON(w, http.StatusCreated, toResponse(ws))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	items, err := h.svc.List(r.Context(), user.ID)
	if err != nil {
		h.log(r).Error("workspace list failed", zap.Error(err))
		httpapi.WriteError(w, http.StatusInternalServerError, "could not list workspaces")
		return
	}

	out := make([]workspaceResponse, 0, len(items))
	for _, ws := range items {
		out = append(out, toResponse(ws))
	}
	httpapi.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	id, ok := h.workspaceID(w, r)
	if !ok {
		return
	}

	ws, err := h.svc.Get(r.Context(), id, user.ID)
	if err != nil {
		h.writeServiceError(w, r, err, "could not fetch workspace")
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toResponse(ws))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	id, ok := h.workspaceID(w, r)
	if !ok {
		return
	}

	var body updateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(body); err != nil {
		httpapi.WriteError(w, http.StatusUnprocessableEntity, httpapi.ValidationMessage(err))
		return
	}

	ws, err := h.svc.Update(r.Context(), id, user.ID, service.UpdateInput{
		Name:        body.Name,
		Description: body.Description,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "could not update workspace")
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toResponse(ws))
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	id, ok := h.workspaceID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), id, user.ID); err != nil {
		h.writeServiceError(w, r, err, "could not delete workspace")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) embedURL(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	id, ok := h.workspaceID(w, r)
	if !ok {
		return
	}

	token, err := h.svc.CollectionEmbedURL(r.Context(), id, user.ID, 0)
	if err != nil {
		if errors.Is(err, service.ErrNotProvisioned) {
			httpapi.WriteError(w, http.StatusConflict, "workspace has no linked collection")
			return
		}
		h.writeServiceError(w, r, err, "could not issue embed url")
		return
	}

	httpapi.WriteJSON(w, http.StatusOK, embedURLResponse{
		URLPath:   token.Path,
		Token:     token.Value,
		ExpiresAt: token.ExpiresAt,
	})
}

// currentUser resolves the verified identity to a local user record,
// creating one on first sight.
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

func (h *Handler) workspaceID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "workspaceID"))
	if err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid workspace id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		httpapi.WriteError(w, http.StatusNotFound, "workspace not found")
	case errors.Is(err, service.ErrForbidden):
		httpapi.WriteError(w, http.StatusForbidden, "access to workspace denied")
	default:
		h.log(r).Error(fallback, zap.Error(err))
		httpapi.WriteError(w, http.StatusInternalServerError, fallback)
	}
}

func toResponse(ws service.Workspace) workspaceResponse {
	return workspaceResponse{
		ID:                   ws.ID,
		Name:                 ws.Name,
		Description:          ws.Description,
		OwnerID:              ws.OwnerID,
		MetabaseCollectionID: ws.MetabaseCollectionID,
		MetabaseGroupID:      ws.MetabaseGroupID,
		MetabaseDatabaseID:   ws.MetabaseDatabaseID,
		CreatedAt:            ws.CreatedAt,
		UpdatedAt:            ws.UpdatedAt,
	}
}
