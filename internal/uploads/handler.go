package uploads

import (
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"insight-backend/internal/shared/server/respond"
	"insight-backend/internal/shared/storage/object"
	"insight-backend/internal/shared/telemetry"
)

const (
	presignExpires       = 15 * time.Minute
	defaultUploadsPrefix = "uploads"
)

var allowedContentTypes = map[string]string{
	object.ContentTypeCSV:      ".csv",
	"application/csv":          ".csv",
	"application/vnd.ms-excel": ".csv",
	object.ContentTypeXLSX:     ".xlsx",
}

// Handler issues presigned PUT URLs so large files bypass the API.
type Handler struct {
	presign  object.Presigner
	prefix   string
	maxBytes int64
	expires  time.Duration
}

// NewHandler builds a presign handler. prefix is prepended to every key.
func NewHandler(p object.Presigner, prefix string, maxBytes int64) *Handler {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = defaultUploadsPrefix
	}
	return &Handler{
		presign:  p,
		prefix:   prefix,
		maxBytes: maxBytes,
		expires:  presignExpires,
	}
}

type presignRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes"`
}

type presignResponse struct {
	UploadURL        string `json:"uploadUrl"`
	StorageKey       string `json:"storageKey"`
	ExpiresInSeconds int64  `json:"expiresInSeconds"`
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/uploads/presign", h.presignUpload)
}

func (h *Handler) presignUpload(c *gin.Context) {
	var req presignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	req.FileName = strings.TrimSpace(req.FileName)
	req.ContentType = strings.ToLower(strings.TrimSpace(req.ContentType))

	if req.FileName == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "fileName is required", respond.Issue("fileName", "required"))
		return
	}
	ext, ok := allowedContentTypes[req.ContentType]
	if !ok {
		respond.Error(c, http.StatusUnsupportedMediaType, "unsupported_format", "contentType is not allowed", nil)
		return
	}
	if !strings.EqualFold(path.Ext(req.FileName), ext) {
		respond.Error(c, http.StatusBadRequest, "validation_error", "fileName extension does not match contentType", respond.Issue("fileName", "extension"))
		return
	}
	if req.SizeBytes <= 0 || (h.maxBytes > 0 && req.SizeBytes > h.maxBytes) {
		respond.Error(c, http.StatusRequestEntityTooLarge, "upload_too_large", "sizeBytes exceeds limit", nil)
		return
	}

	key, err := object.NewKey(c.ClientIP(), req.FileName)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid fileName", nil)
		return
	}
	key = path.Join(h.prefix, key)

	url, err := h.presign.PresignPut(c.Request.Context(), key, h.expires)
	if err != nil {
		telemetry.Error("uploads.presign.failed", map[string]any{
			"err":          err,
			"key":          key,
			"content_type": req.ContentType,
			"size_bytes":   req.SizeBytes,
			"request_id":   c.GetString("requestId"),
		})
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to generate upload url", nil)
		return
	}

	respond.JSON(c, http.StatusOK, presignResponse{
		UploadURL:        url,
		StorageKey:       key,
		ExpiresInSeconds: int64(h.expires.Seconds()),
	})
}
