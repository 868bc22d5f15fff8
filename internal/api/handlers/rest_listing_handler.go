package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dranie18/propertypro/internal/api/middleware"
	"github.com/dranie18/propertypro/internal/config"
	"github.com/dranie18/propertypro/internal/models"
	"github.com/dranie18/propertypro/internal/services"
	"github.com/dranie18/propertypro/internal/tasks"
)

// RestListingHandler handles REST requests for listings.
type RestListingHandler struct {
	cfg            *config.Config
	listingService services.IListingService
	taskClient     services.ITaskEnqueuer
}

// NewRestListingHandler creates a new RestListingHandler.
func NewRestListingHandler(cfg *config.Config, listingService services.IListingService, taskClient services.ITaskEnqueuer) *RestListingHandler {
	return &RestListingHandler{
		cfg:            cfg,
		listingService: listingService,
		taskClient:     taskClient,
	}
}

// SearchListings handles GET /v1/listings
func (h *RestListingHandler) SearchListings(c *gin.Context) {
	filter, err := parseListingFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	page := models.Pagination{
		Page:     1,
		PageSize: h.cfg.DefaultPageSize,
	}
	if pageStr := c.Query("page"); pageStr != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil || p < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid page"})
			return
		}
		page.Page = p
	}
	if sizeStr := c.Query("page_size"); sizeStr != "" {
		size, err := strconv.Atoi(sizeStr)
		if err != nil || size < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid page_size"})
			return
		}
		if size > h.cfg.MaxPageSize {
			size = h.cfg.MaxPageSize
		}
		page.PageSize = size
	}

	result, err := h.listingService.ListListings(c.Request.Context(), *filter, page)
	if err != nil {
		if services.IsValidationError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search listings"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetListingByID handles GET /v1/listings/:id
func (h *RestListingHandler) GetListingByID(c *gin.Context) {
	listingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID format"})
		return
	}

	listing, err := h.listingService.FindListingByID(c.Request.Context(), listingID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found"})
		} else {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve listing"})
		}
		return
	}

	c.JSON(http.StatusOK, listing)
}

// GetUserListings handles GET /v1/user/:id/listings
func (h *RestListingHandler) GetUserListings(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID format"})
		return
	}

	listings, err := h.listingService.ListingsByOwner(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch listings"})
		return
	}

	c.JSON(http.StatusOK, listings)
}

// GetMyListings handles GET /v1/my/listings (authenticated)
func (h *RestListingHandler) GetMyListings(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	listings, err := h.listingService.ListingsByOwner(c.Request.Context(), user.ID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch listings"})
		return
	}

	c.JSON(http.StatusOK, listings)
}

// CreateListing handles POST /v1/listings (authenticated)
func (h *RestListingHandler) CreateListing(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var form models.ListingForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	listing, err := h.listingService.CreateListing(c.Request.Context(), user.ID, form)
	if err != nil {
		if services.IsValidationError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create listing"})
		return
	}

	c.JSON(http.StatusCreated, listing)
}

// listingUpdateRequest carries the mutable listing fields; absent fields are
// left untouched.
type listingUpdateRequest struct {
	Title        *string               `json:"title"`
	Description  *string               `json:"description"`
	Price        *int64                `json:"price"`
	Location     *string               `json:"location"`
	PropertyType *models.PropertyType  `json:"property_type"`
	Status       *models.ListingStatus `json:"status"`
	SquareMeters *float64              `json:"square_meters"`
	Bedrooms     *int                  `json:"bedrooms"`
	Bathrooms    *int                  `json:"bathrooms"`
}

func (r *listingUpdateRequest) toUpdates() map[string]interface{} {
	updates := map[string]interface{}{}
	if r.Title != nil {
		updates["title"] = *r.Title
	}
	if r.Description != nil {
		updates["description"] = *r.Description
	}
	if r.Price != nil {
		updates["price"] = *r.Price
	}
	if r.Location != nil {
		updates["location"] = *r.Location
	}
	if r.PropertyType != nil {
		updates["property_type"] = *r.PropertyType
	}
	if r.Status != nil {
		updates["status"] = *r.Status
	}
	if r.SquareMeters != nil {
		updates["square_meters"] = *r.SquareMeters
	}
	if r.Bedrooms != nil {
		updates["bedrooms"] = *r.Bedrooms
	}
	if r.Bathrooms != nil {
		updates["bathrooms"] = *r.Bathrooms
	}
	return updates
}

// UpdateListing handles PATCH /v1/listings/:id (authenticated)
func (h *RestListingHandler) UpdateListing(c *gin.Context) {
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

	var req listingUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	listing, err := h.listingService.UpdateListing(c.Request.Context(), listingID, user.ID, req.toUpdates())
	if err != nil {
		switch {
		case services.IsValidationError(err):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrNotOwner):
			c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found"})
		default:
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update listing"})
		}
		return
	}

	c.JSON(http.StatusOK, listing)
}

// DeleteListing handles DELETE /v1/listings/:id (authenticated).
// Media rows and stored objects are cleaned up by a background task.
func (h *RestListingHandler) DeleteListing(c *gin.Context) {
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

	err = h.listingService.DeleteListing(c.Request.Context(), listingID, user.ID)
	if err != nil {
		switch {
		case errors.Is(err, mongo.ErrNoDocuments), errors.Is(err, services.ErrNotOwner):
			c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found"})
		default:
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete listing"})
		}
		return
	}

	payload, err := json.Marshal(tasks.MediaCleanupPayload{ListingID: listingID.String()})
	if err == nil {
		if _, err := h.taskClient.Enqueue(asynq.NewTask(tasks.TypeMediaCleanup, payload)); err != nil {
			_ = c.Error(err)
		}
	}

	c.Status(http.StatusNoContent)
}

// parseListingFilter builds a ListingFilter from the request query string.
func parseListingFilter(c *gin.Context) (*models.ListingFilter, error) {
	var filter models.ListingFilter

	if v := c.Query("property_type"); v != "" {
		pt := models.PropertyType(v)
		if !pt.Valid() {
			return nil, errors.New("unknown property_type")
		}
		filter.PropertyType = &pt
	}
	if v := c.Query("status"); v != "" {
		st := models.ListingStatus(v)
		if !st.Valid() {
			return nil, errors.New("unknown status")
		}
		filter.Status = &st
	}
	if v := c.Query("min_price"); v != "" {
		p, err := strconv.ParseInt(v, 10, 64)
		if err != nil || p < 0 {
			return nil, errors.New("invalid min_price")
		}
		filter.MinPrice = &p
	}
	if v := c.Query("max_price"); v != "" {
		p, err := strconv.ParseInt(v, 10, 64)
		if err != nil || p < 0 {
			return nil, errors.New("invalid max_price")
		}
		filter.MaxPrice = &p
	}
	if v := c.Query("min_square_meters"); v != "" {
		a, err := strconv.ParseFloat(v, 64)
		if err != nil || a < 0 {
			return nil, errors.New("invalid min_square_meters")
		}
		filter.MinSquareMeters = &a
	}
	if v := c.Query("max_square_meters"); v != "" {
		a, err := strconv.ParseFloat(v, 64)
		if err != nil || a < 0 {
			return nil, errors.New("invalid max_square_meters")
		}
		filter.MaxSquareMeters = &a
	}
	if v := c.Query("min_bedrooms"); v != "" {
		b, err := strconv.Atoi(v)
		if err != nil || b < 0 {
			return nil, errors.New("invalid min_bedrooms")
		}
		filter.MinBedrooms = &b
	}
	if v := c.Query("q"); v != "" {
		filter.SearchTerm = &v
	}

	return &filter, nil
}
