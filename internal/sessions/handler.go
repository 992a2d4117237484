package sessions

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"onboarding-backend/internal/deckcheck"
	"onboarding-backend/internal/questionnaire"
	"onboarding-backend/internal/shared/server/middleware"
	"onboarding-backend/internal/shared/server/respond"
	"onboarding-backend/internal/statusclient"
)

// Handler wires HTTP handlers to the sessions service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches onboarding routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/onboarding/start", h.start)
	rg.POST("/onboarding/resume", h.resume)
	rg.POST("/onboarding/website", h.submitWebsite)
	rg.POST("/onboarding/document", h.submitDocument)
	rg.POST("/onboarding/answers", h.answer)
	rg.POST("/onboarding/answers/other", h.answerOther)
	rg.POST("/onboarding/answers/toggle", h.toggle)
	rg.POST("/onboarding/answers/confirm", h.confirm)
	rg.POST("/onboarding/finalize", h.finalize)
	rg.GET("/onboarding/session", h.getSession)
	rg.DELETE("/onboarding/session", h.deleteSession)
}

func (h *Handler) requestContext(c *gin.Context) context.Context {
	return WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
}

func (h *Handler) start(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	var req struct {
		Kind string `json:"kind"`
	}
	// An empty body means the default kind.
	_ = c.ShouldBindJSON(&req)

	snap, err := h.Svc.Start(h.requestContext(c), userID, req.Kind)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, snap)
}

func (h *Handler) resume(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	var req struct {
		Kind string `json:"kind"`
	}
	_ = c.ShouldBindJSON(&req)

	snap, exit, err := h.Svc.Resume(h.requestContext(c), userID, req.Kind)
	if err != nil {
		writeError(c, err)
		return
	}
	if exit {
		respond.OK(c, gin.H{"exit": true})
		return
	}
	respond.OK(c, gin.H{"exit": false, "session": snap})
}

func (h *Handler) submitWebsite(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	var req struct {
		Website string `json:"website"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "invalid request body", nil)
		return
	}

	snap, err := h.Svc.SubmitWebsite(h.requestContext(c), userID, req.Website)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, snap)
}

func (h *Handler) submitDocument(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "file is required", nil)
		return
	}
	if fileHeader.Size > deckcheck.MaxUploadBytes {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "document exceeds the size limit", nil)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "file could not be read", nil)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, deckcheck.MaxUploadBytes+1))
	if err != nil {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "file could not be read", nil)
		return
	}

	snap, err := h.Svc.SubmitDocument(h.requestContext(c), userID, fileHeader.Filename, fileHeader.Header.Get("Content-Type"), data)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, snap)
}

func (h *Handler) answer(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	var req struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "invalid request body", nil)
		return
	}

	snap, err := h.Svc.Answer(h.requestContext(c), userID, req.Key, req.Value)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, snap)
}

func (h *Handler) answerOther(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	var req struct {
		Key  string `json:"key"`
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "invalid request body", nil)
		return
	}

	snap, err := h.Svc.AnswerOther(h.requestContext(c), userID, req.Key, req.Text)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, snap)
}

func (h *Handler) toggle(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	var req struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "invalid request body", nil)
		return
	}

	snap, err := h.Svc.Toggle(h.requestContext(c), userID, req.Key, req.Value)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, snap)
}

func (h *Handler) confirm(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	var req struct {
		Key string `json:"key"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "invalid request body", nil)
		return
	}

	snap, err := h.Svc.ConfirmMulti(h.requestContext(c), userID, req.Key)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, snap)
}

func (h *Handler) finalize(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	snap, err := h.Svc.Finalize(h.requestContext(c), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.JSON(c, http.StatusAccepted, snap)
}

func (h *Handler) getSession(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	snap, err := h.Svc.Get(h.requestContext(c), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, snap)
}

func (h *Handler) deleteSession(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if err := h.Svc.Delete(h.requestContext(c), userID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// writeError maps service errors onto the standard error envelope.
func writeError(c *gin.Context, err error) {
	var backendErr *statusclient.BackendError
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, ErrorCodeNotFound, "no active onboarding session", nil)
	case errors.Is(err, ErrWrongStep), errors.Is(err, ErrCompleted):
		respond.Error(c, http.StatusConflict, ErrorCodeWrongStep, err.Error(), nil)
	case errors.Is(err, ErrInvalidWebsite),
		errors.Is(err, ErrWebsiteRequired),
		errors.Is(err, deckcheck.ErrEmpty),
		errors.Is(err, deckcheck.ErrTooLarge),
		errors.Is(err, deckcheck.ErrUnsupportedType),
		errors.Is(err, deckcheck.ErrUnreadable),
		errors.Is(err, deckcheck.ErrNoPages),
		errors.Is(err, questionnaire.ErrAwaitingOther),
		errors.Is(err, questionnaire.ErrWrongQuestion),
		errors.Is(err, questionnaire.ErrNotMultiSelect),
		errors.Is(err, questionnaire.ErrMultiSelect),
		errors.Is(err, questionnaire.ErrNothingSelected),
		errors.Is(err, questionnaire.ErrEmptyAnswer),
		errors.Is(err, questionnaire.ErrIncomplete),
		errors.Is(err, questionnaire.ErrMissingOther):
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, err.Error(), nil)
	case errors.Is(err, ErrUpstream), errors.As(err, &backendErr):
		respond.Error(c, http.StatusBadGateway, ErrorCodeUpstream, "pipeline backend rejected the request", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, "something went wrong", nil)
	}
}
