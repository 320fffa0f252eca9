// backend/src/handlers/upload_handler.go
package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/username/trackfolio/backend/src/logger"
	"github.com/username/trackfolio/backend/src/security/validation"
	"github.com/username/trackfolio/backend/src/services"
	"github.com/username/trackfolio/backend/src/utils"
)

// multipartOverhead leaves room for boundaries and form fields around the file itself.
const multipartOverhead = 1 << 20

type UploadHandler struct {
	ingestionService   services.IngestionService
	maxUploadSizeBytes int64
}

func NewUploadHandler(service services.IngestionService, maxUploadSizeBytes int64) *UploadHandler {
	return &UploadHandler{
		ingestionService:   service,
		maxUploadSizeBytes: maxUploadSizeBytes,
	}
}

type uploadResponse struct {
	Message    string   `json:"message"`
	UploadID   string   `json:"upload_id,omitempty"`
	Accepted   int      `json:"accepted"`
	Duplicates int      `json:"duplicates"`
	Rejected   []string `json:"rejected,omitempty"`
}

type uploadErrorResponse struct {
	Message string   `json:"message"`
	Error   string   `json:"error"`
	Errors  []string `json:"errors"`
}

func (h *UploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	ownerID, ok := GetOwnerIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or owner ID not found in context", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSizeBytes+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxUploadSizeBytes); err != nil {
		ctxLogger.Warn("Failed to parse multipart form or request too large", "error", err, "limit", h.maxUploadSizeBytes)
		utils.SendJSONError(w, fmt.Sprintf("Failed to process the upload or the file is too large (max %d MB)", h.maxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		ctxLogger.Warn("Failed to retrieve file from request", "error", err)
		utils.SendJSONError(w, "Failed to retrieve file from request. Ensure 'file' field is used.", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if fileHeader.Size > h.maxUploadSizeBytes {
		ctxLogger.Warn("Uploaded file header reports size too large", "fileSize", fileHeader.Size, "limit", h.maxUploadSizeBytes)
		utils.SendJSONError(w, fmt.Sprintf("File too large, max %d MB", h.maxUploadSizeBytes/(1024*1024)), http.StatusRequestEntityTooLarge)
		return
	}

	clientContentType := fileHeader.Header.Get("Content-Type")
	if err := validation.ValidateClientContentType(clientContentType); err != nil {
		ctxLogger.Warn("Invalid client-declared file type", "contentType", clientContentType, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	detectedContentType, err := validation.ValidateFileContentByMagicBytes(file)
	if err != nil {
		ctxLogger.Warn("Server-side file content validation failed", "filename", fileHeader.Filename, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	filename := validation.SanitizeText(fileHeader.Filename)
	ctxLogger.Info("Processing upload request", "filename", filename, "detectedType", detectedContentType)

	result, err := h.ingestionService.Ingest(r.Context(), file, ownerID, services.UploadMeta{Filename: filename, Size: fileHeader.Size})
	if err != nil {
		h.sendIngestionError(w, r, err)
		return
	}

	resp := uploadResponse{
		Message:    fmt.Sprintf("%d transactions imported, %d duplicates skipped", result.Accepted, result.Duplicates),
		UploadID:   result.UploadID,
		Accepted:   result.Accepted,
		Duplicates: result.Duplicates,
	}
	for _, d := range result.Rejected {
		resp.Rejected = append(resp.Rejected, d.String())
	}
	utils.SendJSON(w, resp, http.StatusCreated)
}

func (h *UploadHandler) sendIngestionError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *services.ValidationError
	var rowErr *services.RowParseError

	switch {
	case errors.As(err, &validationErr):
		utils.SendJSON(w, uploadErrorResponse{
			Message: "The file failed validation.",
			Error:   validationErr.Error(),
			Errors:  validationErr.Messages(),
		}, http.StatusUnprocessableEntity)
	case errors.As(err, &rowErr):
		utils.SendJSON(w, uploadErrorResponse{
			Message: "A row could not be parsed; nothing was imported.",
			Error:   rowErr.Error(),
			Errors:  []string{rowErr.Error()},
		}, http.StatusUnprocessableEntity)
	case errors.Is(err, services.ErrFileTooLarge):
		utils.SendJSONError(w, err.Error(), http.StatusRequestEntityTooLarge)
	default:
		logger.FromContext(r.Context()).Error("Upload processing failed", "error", err)
		utils.SendJSONError(w, "Failed to store the uploaded transactions. Please try again.", http.StatusInternalServerError)
	}
}
