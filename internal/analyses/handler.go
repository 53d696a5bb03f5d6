package analyses

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"insight-backend/internal/capabilities"
	"insight-backend/internal/dataset"
	"insight-backend/internal/shared/server/middleware"
	"insight-backend/internal/shared/server/respond"
	"insight-backend/internal/shared/storage/object"
	"insight-backend/internal/shared/telemetry"
)

// multipart framing on top of the file itself
const uploadOverhead = 1 << 20

// Handler wires HTTP handlers to the analyses service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches analysis routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/capabilities", h.listCapabilities)
	rg.POST("/analyses", h.upload)
	rg.POST("/analyses/from-object", h.fromObject)
	rg.GET("/analyses/:id", h.summary)
	rg.DELETE("/analyses/:id", h.close)
	rg.GET("/analyses/:id/capabilities", h.capabilities)
	rg.POST("/analyses/:id/run", h.run)
	rg.GET("/analyses/:id/preview", h.preview)
	rg.GET("/analyses/:id/distinct", h.distinct)
	rg.GET("/analyses/:id/runs", h.runs)
}

func requestContext(c *gin.Context) context.Context {
	return WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
}

func analysisID(c *gin.Context) string {
	id := c.Param("id")
	c.Set("analysisId", id)
	return id
}

func (h *Handler) listCapabilities(c *gin.Context) {
	respond.OK(c, gin.H{"capabilities": capabilities.List()})
}

func (h *Handler) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.Svc.maxUpload()+uploadOverhead)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond.Error(c, http.StatusRequestEntityTooLarge, "upload_too_large", "file exceeds the upload limit", nil)
			return
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", respond.Issue("file", "required"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer file.Close()

	summary, err := h.Svc.Bootstrap(requestContext(c), c.ClientIP(), fileHeader.Filename, file)
	if err != nil {
		writeError(c, err, "failed to process upload")
		return
	}
	c.Set("analysisId", summary.AnalysisID)
	respond.Created(c, summary)
}

type fromObjectRequest struct {
	StorageKey string `json:"storageKey"`
	FileName   string `json:"fileName"`
}

func (h *Handler) fromObject(c *gin.Context) {
	var req fromObjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	summary, err := h.Svc.BootstrapFromObject(requestContext(c), strings.TrimSpace(req.StorageKey), strings.TrimSpace(req.FileName))
	if err != nil {
		writeError(c, err, "failed to load object")
		return
	}
	c.Set("analysisId", summary.AnalysisID)
	respond.Created(c, summary)
}

func (h *Handler) summary(c *gin.Context) {
	summary, err := h.Svc.Summary(requestContext(c), analysisID(c))
	if err != nil {
		writeError(c, err, "failed to fetch analysis")
		return
	}
	respond.OK(c, summary)
}

func (h *Handler) close(c *gin.Context) {
	if err := h.Svc.Close(requestContext(c), analysisID(c)); err != nil {
		writeError(c, err, "failed to close analysis")
		return
	}
	respond.NoContent(c)
}

func (h *Handler) capabilities(c *gin.Context) {
	list, err := h.Svc.Capabilities(requestContext(c), analysisID(c))
	if err != nil {
		writeError(c, err, "failed to list capabilities")
		return
	}
	respond.OK(c, gin.H{"capabilities": list})
}

type runRequest struct {
	Capability string `json:"capability"`
	Params     Params `json:"params"`
}

func (h *Handler) run(c *gin.Context) {
	id := analysisID(c)

	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	req.Capability = strings.TrimSpace(req.Capability)
	if req.Capability == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "capability is required", respond.Issue("capability", "required"))
		return
	}
	c.Set("capability", req.Capability)

	result, err := h.Svc.Run(requestContext(c), id, req.Capability, req.Params)
	if err != nil {
		writeError(c, err, "failed to run capability")
		return
	}
	respond.OK(c, result)
}

func (h *Handler) preview(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	preview, err := h.Svc.Preview(requestContext(c), analysisID(c), limit)
	if err != nil {
		writeError(c, err, "failed to preview analysis")
		return
	}
	respond.OK(c, preview)
}

func (h *Handler) distinct(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	values, err := h.Svc.Distinct(requestContext(c), analysisID(c), c.Query("column"), limit)
	if err != nil {
		writeError(c, err, "failed to list distinct values")
		return
	}
	respond.OK(c, values)
}

func (h *Handler) runs(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	runs, err := h.Svc.Runs(requestContext(c), analysisID(c), limit)
	if err != nil {
		writeError(c, err, "failed to list runs")
		return
	}
	respond.OK(c, gin.H{"runs": runs})
}

// queryInt parses an optional positive integer query parameter. An absent
// parameter yields zero, which callers read as their default.
func queryInt(c *gin.Context, name string) (int, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		respond.Error(c, http.StatusBadRequest, "validation_error", name+" must be a positive integer", respond.Issue(name, "invalid"))
		return 0, false
	}
	return v, true
}

func writeError(c *gin.Context, err error, fallback string) {
	var (
		validation *ValidationError
		blocked    *BlockedError
	)
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "analysis not found, please re-upload", nil)
	case errors.Is(err, ErrUnknownCapability):
		respond.Error(c, http.StatusBadRequest, "unknown_capability", err.Error(), respond.Issue("capability", "unknown"))
	case errors.As(err, &validation):
		respond.Error(c, http.StatusBadRequest, "validation_error", validation.Error(), respond.Issue(validation.Field, validation.Message))
	case errors.As(err, &blocked):
		respond.Error(c, http.StatusUnprocessableEntity, "analysis_blocked", blocked.Error(), blocked.Findings)
	case errors.Is(err, dataset.ErrUnsupportedFormat):
		respond.Error(c, http.StatusUnsupportedMediaType, "unsupported_format", "only .csv and .xlsx files are supported", nil)
	case errors.Is(err, dataset.ErrEmptyInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", "file has no header row", respond.Issue("file", "empty"))
	case errors.Is(err, ErrUploadTooLarge):
		respond.Error(c, http.StatusRequestEntityTooLarge, "upload_too_large", err.Error(), nil)
	case errors.Is(err, object.ErrNotFound):
		respond.Error(c, http.StatusNotFound, "object_not_found", "uploaded object not found", nil)
	default:
		telemetry.Error("analysis.internal_error", map[string]any{
			"request_id":  middleware.RequestIDFromContext(c),
			"analysis_id": c.Param("id"),
			"err":         err,
		})
		respond.Error(c, http.StatusInternalServerError, "internal_error", fallback, nil)
	}
}
