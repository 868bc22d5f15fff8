package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dranie18/propertypro/internal/api/middleware"
	"github.com/dranie18/propertypro/internal/models"
	"github.com/dranie18/propertypro/internal/services"
	"github.com/dranie18/propertypro/internal/tasks"
)

// RestMediaHandler handles REST requests for listing media.
type RestMediaHandler struct {
	mediaService   services.IMediaService
	listingService services.IListingService
	taskClient     services.ITaskEnqueuer
}

// NewRestMediaHandler creates a new RestMediaHandler.
func NewRestMediaHandler(mediaService services.IMediaService, listingService services.IListingService, taskClient services.ITaskEnqueuer) *RestMediaHandler {
	return &RestMediaHandler{
		mediaService:   mediaService,
		listingService: listingService,
		taskClient:     taskClient,
	}
}

// UploadMedia handles POST /v1/listings/:id/media (authenticated, multipart).
// Accepts one or more files under the "files" field. Each file is attempted
// independently; the response reports per-file outcomes.
func (h *RestMediaHandler) UploadMedia(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	listingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID format"})
		return
	}

	if !h.requireOwnership(c, listingID, user.ID) {
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid multipart form"})
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No files provided"})
		return
	}

	uploads := make([]models.MediaUpload, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read uploaded file"})
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read uploaded file"})
			return
		}
		uploads = append(uploads, models.MediaUpload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	results := h.mediaService.UploadMediaBatch(c.Request.Context(), listingID, uploads)

	// Normalize uploaded photos in the background. The processing task only
	// decodes jpeg and png; webp is kept as uploaded.
	for i, r := range results {
		if r.Err != nil || r.Media == nil || r.Media.MediaType != models.MediaTypePhoto {
			continue
		}
		if strings.EqualFold(uploads[i].ContentType, "image/webp") {
			continue
		}
		payload, err := json.Marshal(tasks.MediaProcessPayload{
			StorageKey: r.Media.StorageKey,
			MediaID:    r.Media.ID.String(),
		})
		if err != nil {
			continue
		}
		if _, err := h.taskClient.Enqueue(asynq.NewTask(tasks.TypeMediaProcess, payload)); err != nil {
			_ = c.Error(err)
		}
	}

	status := http.StatusCreated
	allFailed := true
	for _, r := range results {
		if r.Err == nil {
			allFailed = false
			break
		}
	}
	if allFailed {
		status = http.StatusBadRequest
	}

	c.JSON(status, gin.H{"results": results})
}

// SetPrimaryMedia handles POST /v1/listings/:id/media/:mediaId/primary (authenticated)
func (h *RestMediaHandler) SetPrimaryMedia(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	listingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID format"})
		return
	}
	mediaID, err := uuid.Parse(c.Param("mediaId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid media ID format"})
		return
	}

	if !h.requireOwnership(c, listingID, user.ID) {
		return
	}

	media, err := h.mediaService.SetPrimaryMedia(c.Request.Context(), listingID, mediaID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Media not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to set primary media"})
		}
		return
	}

	c.JSON(http.StatusOK, media)
}

// DeleteMedia handles DELETE /v1/media/:id (authenticated)
func (h *RestMediaHandler) DeleteMedia(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	mediaID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid media ID format"})
		return
	}

	media, err := h.mediaService.FindMediaByID(c.Request.Context(), mediaID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Media not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete media"})
		}
		return
	}

	if !h.requireOwnership(c, media.ListingID, user.ID) {
		return
	}

	if err := h.mediaService.DeleteMedia(c.Request.Context(), mediaID); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Media not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete media"})
		}
		return
	}

	c.Status(http.StatusNoContent)
}

// requireOwnership verifies the listing exists and is owned by userID,
// writing the error response itself when it is not.
func (h *RestMediaHandler) requireOwnership(c *gin.Context, listingID, userID uuid.UUID) bool {
	listing, err := h.listingService.FindListingByID(c.Request.Context(), listingID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify listing"})
		}
		return false
	}
	if listing.UserID != userID {
		// Not-found rather than forbidden, so ownership is not probeable
		c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found"})
		return false
	}
	return true
}
