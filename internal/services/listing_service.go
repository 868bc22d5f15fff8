package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dranie18/propertypro/internal/config"
	"github.com/dranie18/propertypro/internal/db"
	"github.com/dranie18/propertypro/internal/models"
)

// CurrentSession is the read-only session view consumed by owner-scoped
// queries. Implemented by session.Manager.
type CurrentSession interface {
	RequireUser() (models.AuthUser, error)
}

// IListingService defines the interface for listing-related operations.
type IListingService interface {
	ListListings(ctx context.Context, filter models.ListingFilter, page models.Pagination) (*models.ListingPage, error)
	FindListingByID(ctx context.Context, listingID uuid.UUID) (*models.Listing, error)
	ListingsByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Listing, error)
	OwnedListings(ctx context.Context, sess CurrentSession) ([]models.Listing, error)
	CreateListing(ctx context.Context, ownerID uuid.UUID, form models.ListingForm) (*models.Listing, error)
	UpdateListing(ctx context.Context, listingID, ownerID uuid.UUID, updates map[string]interface{}) (*models.Listing, error)
	DeleteListing(ctx context.Context, listingID, ownerID uuid.UUID) error
}

const (
	listingsCollection = "listings"
	mediaCollection    = "property_media"
)

// listingService implements IListingService.
type listingService struct {
	db  *mongo.Database
	cfg *config.Config
}

// NewListingService creates a new ListingService.
func NewListingService(db *mongo.Database, cfg *config.Config) IListingService {
	return &listingService{db: db, cfg: cfg}
}

// ListListings runs a filtered, paginated query over the listings collection.
// TotalCount reflects the full filtered set independent of the page window;
// TotalPages is ceil(count/pageSize). Media rows are joined onto each item.
func (s *listingService) ListListings(ctx context.Context, filter models.ListingFilter, page models.Pagination) (*models.ListingPage, error) {
	if page.Page < 1 {
		return nil, NewValidationError("page", "must be at least 1")
	}
	if page.PageSize < 1 {
		return nil, NewValidationError("page_size", "must be positive")
	}

	collection := s.db.Collection(listingsCollection)
	query := BuildListingFilter(filter)

	count, err := collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count listings: %w", err)
	}

	offset := int64(page.Page-1) * int64(page.PageSize)
	opts := options.Find().
		SetSort(ListingSortOrder()).
		SetSkip(offset).
		SetLimit(int64(page.PageSize))

	cursor, err := collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer cursor.Close(ctx)

	var items []models.Listing
	if err = cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("failed to decode listings: %w", err)
	}

	if err := s.attachMedia(ctx, items); err != nil {
		return nil, err
	}

	totalPages := int((count + int64(page.PageSize) - 1) / int64(page.PageSize))
	return &models.ListingPage{
		Items:      items,
		TotalCount: count,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalPages: totalPages,
	}, nil
}

// FindListingByID finds a listing by its ID, with media joined.
// Returns mongo.ErrNoDocuments if not found.
func (s *listingService) FindListingByID(ctx context.Context, listingID uuid.UUID) (*models.Listing, error) {
	var listing models.Listing
	collection := s.db.Collection(listingsCollection)

	err := collection.FindOne(ctx, bson.M{"_id": listingID}).Decode(&listing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding listing by ID %s: %w", listingID, err)
	}

	items := []models.Listing{listing}
	if err := s.attachMedia(ctx, items); err != nil {
		return nil, err
	}
	return &items[0], nil
}

// ListingsByOwner returns all of a user's listings, newest first, no
// pagination, with media joined.
func (s *listingService) ListingsByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Listing, error) {
	collection := s.db.Collection(listingsCollection)
	opts := options.Find().SetSort(ListingSortOrder())

	cursor, err := collection.Find(ctx, bson.M{"user_id": ownerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings for user %s: %w", ownerID, err)
	}
	defer cursor.Close(ctx)

	var listings []models.Listing
	if err = cursor.All(ctx, &listings); err != nil {
		return nil, fmt.Errorf("failed to decode listings for user %s: %w", ownerID, err)
	}

	if err := s.attachMedia(ctx, listings); err != nil {
		return nil, err
	}
	return listings, nil
}

// OwnedListings is the session-bound companion to ListingsByOwner. It fails
// with ErrAuthenticationRequired when no session is active.
func (s *listingService) OwnedListings(ctx context.Context, sess CurrentSession) ([]models.Listing, error) {
	user, err := sess.RequireUser()
	if err != nil {
		return nil, err
	}
	return s.ListingsByOwner(ctx, user.ID)
}

// CreateListing validates the form and inserts a new listing owned by ownerID.
func (s *listingService) CreateListing(ctx context.Context, ownerID uuid.UUID, form models.ListingForm) (*models.Listing, error) {
	if err := validateListingForm(form); err != nil {
		return nil, err
	}

	collection := s.db.Collection(listingsCollection)
	now := time.Now().UTC()

	var newListing *models.Listing

	operation := func() error {
		newListing = &models.Listing{
			ID:           uuid.New(),
			UserID:       ownerID,
			Title:        form.Title,
			Description:  form.Description,
			Price:        form.Price,
			Location:     form.Location,
			PropertyType: form.PropertyType,
			Status:       form.Status,
			SquareMeters: form.SquareMeters,
			Bedrooms:     form.Bedrooms,
			Bathrooms:    form.Bathrooms,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		_, insertErr := collection.InsertOne(ctx, newListing)
		return insertErr
	}

	if err := db.Try(operation); err != nil {
		return nil, fmt.Errorf("failed to insert new listing for user %s: %w", ownerID, err)
	}

	return newListing, nil
}

// UpdateListing updates mutable fields of a listing owned by ownerID.
// Ownership is enforced in the update filter; a mismatch surfaces as
// ErrNotOwner. `updates` holds BSON field names and new values.
func (s *listingService) UpdateListing(ctx context.Context, listingID, ownerID uuid.UUID, updates map[string]interface{}) (*models.Listing, error) {
	collection := s.db.Collection(listingsCollection)

	// Ensure only allowed fields are updated (ownership and timestamps are
	// never caller-settable).
	allowedUpdates := bson.M{}
	for key, value := range updates {
		switch key {
		case "title", "description", "price", "location", "property_type", "status", "square_meters", "bedrooms", "bathrooms":
			allowedUpdates[key] = value
		default:
			return nil, NewValidationError(key, "field cannot be updated")
		}
	}
	if len(allowedUpdates) == 0 {
		return nil, NewValidationError("updates", "no valid fields provided")
	}
	if pt, ok := allowedUpdates["property_type"]; ok {
		if t, ok := pt.(models.PropertyType); !ok || !t.Valid() {
			return nil, NewValidationError("property_type", "unknown property type")
		}
	}
	if st, ok := allowedUpdates["status"]; ok {
		if v, ok := st.(models.ListingStatus); !ok || !v.Valid() {
			return nil, NewValidationError("status", "unknown listing status")
		}
	}

	filter := bson.M{
		"_id":     listingID,
		"user_id": ownerID,
	}

	// Room counts must stay consistent with the property type after the
	// update, same rule the create path enforces. Converting to land drops
	// any stored counts; setting counts on a land listing is rejected.
	newType, setsType := allowedUpdates["property_type"]
	_, setsBedrooms := allowedUpdates["bedrooms"]
	_, setsBathrooms := allowedUpdates["bathrooms"]
	if setsType || setsBedrooms || setsBathrooms {
		var current models.Listing
		if err := collection.FindOne(ctx, filter).Decode(&current); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil, ErrNotOwner
			}
			return nil, fmt.Errorf("failed to load listing %s for update: %w", listingID, err)
		}
		effectiveType := current.PropertyType
		if setsType {
			effectiveType = newType.(models.PropertyType)
		}
		if effectiveType == models.PropertyTypeTanah {
			if setsBedrooms || setsBathrooms {
				return nil, NewValidationError("bedrooms", "not applicable for land listings")
			}
			if current.Bedrooms != nil {
				allowedUpdates["bedrooms"] = nil
			}
			if current.Bathrooms != nil {
				allowedUpdates["bathrooms"] = nil
			}
		}
	}

	allowedUpdates["updated_at"] = time.Now().UTC()
	update := bson.M{"$set": allowedUpdates}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updatedListing models.Listing
	err := collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updatedListing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotOwner
		}
		return nil, fmt.Errorf("failed to update listing %s: %w", listingID, err)
	}

	return &updatedListing, nil
}

// DeleteListing removes a listing owned by ownerID. Media rows and storage
// objects are cleaned up by the media cleanup task, not here.
func (s *listingService) DeleteListing(ctx context.Context, listingID, ownerID uuid.UUID) error {
	collection := s.db.Collection(listingsCollection)

	result, err := collection.DeleteOne(ctx, bson.M{"_id": listingID, "user_id": ownerID})
	if err != nil {
		return fmt.Errorf("db error deleting listing %s: %w", listingID, err)
	}
	if result.DeletedCount == 0 {
		// Distinguish not-found from not-owned
		count, checkErr := collection.CountDocuments(ctx, bson.M{"_id": listingID})
		if checkErr == nil && count == 0 {
			return mongo.ErrNoDocuments
		}
		return ErrNotOwner
	}
	return nil
}

// attachMedia joins property_media rows onto the given listings, ordered by
// creation time within each listing.
func (s *listingService) attachMedia(ctx context.Context, listings []models.Listing) error {
	if len(listings) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(listings))
	for _, l := range listings {
		ids = append(ids, l.ID)
	}

	mediaColl := s.db.Collection(mediaCollection)
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := mediaColl.Find(ctx, bson.M{"listing_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return fmt.Errorf("failed to query media for listings: %w", err)
	}
	defer cursor.Close(ctx)

	var media []models.PropertyMedia
	if err = cursor.All(ctx, &media); err != nil {
		return fmt.Errorf("failed to decode media rows: %w", err)
	}

	byListing := make(map[uuid.UUID][]models.PropertyMedia, len(listings))
	for _, m := range media {
		byListing[m.ListingID] = append(byListing[m.ListingID], m)
	}
	for i := range listings {
		listings[i].Media = byListing[listings[i].ID]
	}
	return nil
}

// validateListingForm checks a create form before any database call.
func validateListingForm(form models.ListingForm) error {
	if form.Title == "" {
		return NewValidationError("title", "is required")
	}
	if form.Description == "" {
		return NewValidationError("description", "is required")
	}
	if form.Location == "" {
		return NewValidationError("location", "is required")
	}
	if form.Price <= 0 {
		return NewValidationError("price", "must be positive")
	}
	if !form.PropertyType.Valid() {
		return NewValidationError("property_type", "unknown property type")
	}
	if !form.Status.Valid() {
		return NewValidationError("status", "unknown listing status")
	}
	if form.SquareMeters <= 0 {
		return NewValidationError("square_meters", "must be positive")
	}
	if form.Bedrooms != nil && *form.Bedrooms < 0 {
		return NewValidationError("bedrooms", "cannot be negative")
	}
	if form.Bathrooms != nil && *form.Bathrooms < 0 {
		return NewValidationError("bathrooms", "cannot be negative")
	}
	// Room counts are meaningless for land
	if form.PropertyType == models.PropertyTypeTanah && (form.Bedrooms != nil || form.Bathrooms != nil) {
		return NewValidationError("bedrooms", "not applicable for land listings")
	}
	return nil
}
