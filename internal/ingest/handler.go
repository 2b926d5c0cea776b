package ingest

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"ingest-backend/internal/artifacts"
	"ingest-backend/internal/shared/server/middleware"
	"ingest-backend/internal/shared/server/respond"
	"ingest-backend/internal/validate"
)

// multipartOverhead covers boundaries, part headers, and the category field
// on top of the file payload itself.
const multipartOverhead = 16 << 10

// Handler wires HTTP handlers to the ingestion service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches document routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents", h.upload)
	rg.POST("/documents/text", h.uploadText)
	rg.GET("/documents", h.list)
	rg.GET("/documents/:id", h.get)
	rg.GET("/documents/:id/content", h.content)
	rg.GET("/documents/:id/download", h.download)
	rg.DELETE("/documents/:id", h.remove)
	rg.GET("/requirements", h.requirements)
}

type documentResponse struct {
	ID             string `json:"id"`
	Category       string `json:"category"`
	FileName       string `json:"fileName"`
	CurrentVersion int    `json:"currentVersion"`
	Status         string `json:"status"`
	CreatedAt      string `json:"createdAt"`
	UpdatedAt      string `json:"updatedAt"`
}

type versionResponse struct {
	Version          int    `json:"version"`
	SizeBytes        int64  `json:"sizeBytes"`
	DetectedMIME     string `json:"detectedMime"`
	ContentHash      string `json:"contentHash"`
	ScanStatus       string `json:"scanStatus"`
	ExtractionStatus string `json:"extractionStatus"`
	CreatedAt        string `json:"createdAt"`
}

type uploadResponse struct {
	Document documentResponse `json:"document"`
	Version  versionResponse  `json:"version"`
}

func toDocumentResponse(doc artifacts.Document) documentResponse {
	return documentResponse{
		ID:             doc.ID,
		Category:       string(doc.Category),
		FileName:       doc.LogicalName,
		CurrentVersion: doc.CurrentVersion,
		Status:         string(doc.Status),
		CreatedAt:      doc.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      doc.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toVersionResponse(dv artifacts.DocumentVersion) versionResponse {
	return versionResponse{
		Version:          dv.Version,
		SizeBytes:        dv.SizeBytes,
		DetectedMIME:     dv.DetectedMIME,
		ContentHash:      dv.ContentHash,
		ScanStatus:       string(dv.ScanStatus),
		ExtractionStatus: string(dv.ExtractionStatus),
		CreatedAt:        dv.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *Handler) upload(c *gin.Context) {
	ownerID := middleware.OwnerIDFromContext(c)

	// Bound the stream before any multipart parsing; an oversize body is
	// rejected mid-stream instead of being buffered.
	maxBytes := h.Svc.opts.Limits.MaxBytes + multipartOverhead
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)

	if err := c.Request.ParseMultipartForm(maxBytes); err != nil {
		if maxBytesExceeded(err) {
			uploadErrorResponse(c, reject(validate.ReasonFileTooLarge, "size"))
			return
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "malformed multipart body", nil)
		return
	}

	category, ok := artifacts.ParseCategory(strings.TrimSpace(c.Request.FormValue("category")))
	if !ok {
		respond.Error(c, http.StatusBadRequest, "validation_error",
			"category must be one of: resume, job_description, text", nil)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file field is required", nil)
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unreadable file part", nil)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unreadable file part", nil)
		return
	}

	doc, dv, err := h.Svc.Upload(c.Request.Context(), UploadRequest{
		OwnerID:      ownerID,
		Category:     category,
		FileName:     fileHeader.Filename,
		DeclaredMIME: fileHeader.Header.Get("Content-Type"),
		RequestID:    c.GetString("requestId"),
		Data:         data,
	})
	if err != nil {
		uploadErrorResponse(c, err)
		return
	}

	c.Set("documentId", doc.ID)
	respond.JSON(c, http.StatusCreated, uploadResponse{
		Document: toDocumentResponse(doc),
		Version:  toVersionResponse(dv),
	})
}

type textRequest struct {
	Text string `json:"text"`
	Name string `json:"name"`
}

func (h *Handler) uploadText(c *gin.Context) {
	ownerID := middleware.OwnerIDFromContext(c)

	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "body must be JSON with a text field", nil)
		return
	}

	doc, dv, err := h.Svc.UploadText(c.Request.Context(), ownerID, req.Name, req.Text, c.GetString("requestId"))
	if err != nil {
		uploadErrorResponse(c, err)
		return
	}

	c.Set("documentId", doc.ID)
	respond.JSON(c, http.StatusCreated, uploadResponse{
		Document: toDocumentResponse(doc),
		Version:  toVersionResponse(dv),
	})
}

func (h *Handler) list(c *gin.Context) {
	ownerID := middleware.OwnerIDFromContext(c)
	docs, err := h.Svc.List(c.Request.Context(), ownerID)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list documents", nil)
		return
	}
	out := make([]documentResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, toDocumentResponse(doc))
	}
	respond.OK(c, gin.H{"documents": out})
}

func (h *Handler) get(c *gin.Context) {
	ownerID := middleware.OwnerIDFromContext(c)
	doc, err := h.Svc.Describe(c.Request.Context(), ownerID, c.Param("id"))
	if err != nil {
		lookupErrorResponse(c, err)
		return
	}
	respond.OK(c, toDocumentResponse(doc))
}

func (h *Handler) content(c *gin.Context) {
	ownerID := middleware.OwnerIDFromContext(c)
	version := parseVersion(c)

	content, err := h.Svc.Content(c.Request.Context(), ownerID, c.Param("id"), version)
	if err != nil {
		switch {
		case errors.Is(err, ErrExtractionFailed):
			respond.Error(c, http.StatusConflict, "extraction_failed",
				"text could not be extracted from this version", nil)
		case errors.Is(err, ErrExtractionPending):
			respond.Error(c, http.StatusConflict, "extraction_pending",
				"extraction has not completed for this version", nil)
		default:
			lookupErrorResponse(c, err)
		}
		return
	}

	respond.OK(c, gin.H{
		"documentId":      content.DocumentID,
		"version":         content.Version,
		"text":            content.Text,
		"pageCount":       content.PageCount,
		"sections":        content.Sections,
		"skills":          content.Skills,
		"experienceLevel": string(content.ExperienceLevel),
	})
}

func (h *Handler) download(c *gin.Context) {
	ownerID := middleware.OwnerIDFromContext(c)
	version := parseVersion(c)

	data, dv, err := h.Svc.Download(c.Request.Context(), ownerID, c.Param("id"), version)
	if err != nil {
		lookupErrorResponse(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment")
	c.Data(http.StatusOK, dv.DetectedMIME, data)
}

func (h *Handler) remove(c *gin.Context) {
	ownerID := middleware.OwnerIDFromContext(c)
	if err := h.Svc.Delete(c.Request.Context(), ownerID, c.Param("id")); err != nil {
		lookupErrorResponse(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) requirements(c *gin.Context) {
	respond.OK(c, h.Svc.Requirements())
}

func parseVersion(c *gin.Context) int {
	raw := strings.TrimSpace(c.Query("version"))
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func maxBytesExceeded(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	// The multipart reader flattens the original error into its message.
	return strings.Contains(err.Error(), "request body too large")
}

func lookupErrorResponse(c *gin.Context, err error) {
	switch {
	case errors.Is(err, artifacts.ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
	case errors.Is(err, artifacts.ErrGone):
		respond.Error(c, http.StatusGone, "deleted", "document has been deleted", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "request failed", nil)
	}
}

func uploadErrorResponse(c *gin.Context, err error) {
	var rejection *RejectionError
	if errors.As(err, &rejection) {
		c.Set("rejectReason", string(rejection.Reason))
		status := statusForReason(rejection.Reason)
		respond.Error(c, status, string(rejection.Reason), messageForReason(rejection.Reason), nil)
		return
	}
	if c.Request.Context().Err() != nil {
		// The client went away mid-upload; nothing was committed.
		c.Abort()
		return
	}
	respond.Error(c, http.StatusInternalServerError, "internal_error", "upload failed", nil)
}

func statusForReason(reason validate.Reason) int {
	switch reason {
	case validate.ReasonFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case validate.ReasonQuotaExceeded:
		return http.StatusTooManyRequests
	case validate.ReasonScannerUnavailable:
		return http.StatusServiceUnavailable
	case validate.ReasonStorageError:
		return http.StatusBadGateway
	default:
		return http.StatusUnprocessableEntity
	}
}

func messageForReason(reason validate.Reason) string {
	switch reason {
	case validate.ReasonFileTooLarge:
		return "file exceeds the maximum allowed size"
	case validate.ReasonFileTooSmall:
		return "file is below the minimum allowed size"
	case validate.ReasonTypeMismatch:
		return "file content does not match its declared type"
	case validate.ReasonUnsupportedFormat:
		return "file format is not supported"
	case validate.ReasonStructuralCorruption:
		return "file is corrupt and cannot be parsed"
	case validate.ReasonThreatDetected:
		return "file was rejected by the threat scanner"
	case validate.ReasonQuotaExceeded:
		return "storage quota exceeded; delete documents and retry"
	case validate.ReasonScannerUnavailable:
		return "threat scanning is unavailable; try again later"
	case validate.ReasonStorageError:
		return "storage is temporarily unavailable; try again later"
	default:
		return "upload rejected"
	}
}
