package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dranie18/propertypro/internal/config"
	"github.com/dranie18/propertypro/internal/db"
	"github.com/dranie18/propertypro/internal/models"
	"github.com/dranie18/propertypro/internal/storage"
)

// IMediaService defines the interface for listing media operations.
type IMediaService interface {
	UploadMedia(ctx context.Context, listingID uuid.UUID, upload models.MediaUpload, isPrimary bool) (*models.PropertyMedia, error)
	UploadMediaBatch(ctx context.Context, listingID uuid.UUID, uploads []models.MediaUpload) []models.MediaUploadResult
	SetPrimaryMedia(ctx context.Context, listingID, mediaID uuid.UUID) (*models.PropertyMedia, error)
	DeleteMedia(ctx context.Context, mediaID uuid.UUID) error
	FindMediaByID(ctx context.Context, mediaID uuid.UUID) (*models.PropertyMedia, error)
	MediaByListing(ctx context.Context, listingID uuid.UUID) ([]models.PropertyMedia, error)
}

// mediaService implements IMediaService.
type mediaService struct {
	db      *mongo.Database
	cfg     *config.Config
	storage storage.IMediaStorage
}

// NewMediaService creates a new MediaService.
func NewMediaService(db *mongo.Database, cfg *config.Config, store storage.IMediaStorage) IMediaService {
	return &mediaService{db: db, cfg: cfg, storage: store}
}

// ClassifyMedia maps a MIME type to photo or video. Anything outside the
// allowed formats fails with ErrUnsupportedFormat.
func ClassifyMedia(contentType string) (models.MediaType, error) {
	switch strings.ToLower(contentType) {
	case "image/jpeg", "image/png", "image/webp":
		return models.MediaTypePhoto, nil
	case "video/mp4", "video/quicktime":
		return models.MediaTypeVideo, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, contentType)
}

// CheckMediaSize enforces the per-type size caps (5 MiB photos, 100 MiB videos).
func CheckMediaSize(mediaType models.MediaType, size int64) error {
	switch mediaType {
	case models.MediaTypePhoto:
		if size > models.MaxPhotoSizeBytes {
			return fmt.Errorf("%w: photo is %d bytes, limit %d", ErrFileTooLarge, size, models.MaxPhotoSizeBytes)
		}
	case models.MediaTypeVideo:
		if size > models.MaxVideoSizeBytes {
			return fmt.Errorf("%w: video is %d bytes, limit %d", ErrFileTooLarge, size, models.MaxVideoSizeBytes)
		}
	}
	return nil
}

// UploadMedia validates then stores one file for a listing. Validation runs
// strictly before any network call, in order: format, size, per-listing
// cardinality. The object key is namespaced by listing id with an upload
// timestamp as the uniqueness token, keeping the original extension.
func (s *mediaService) UploadMedia(ctx context.Context, listingID uuid.UUID, upload models.MediaUpload, isPrimary bool) (*models.PropertyMedia, error) {
	mediaType, err := ClassifyMedia(upload.ContentType)
	if err != nil {
		return nil, err
	}
	if err := CheckMediaSize(mediaType, int64(len(upload.Data))); err != nil {
		return nil, err
	}
	if err := s.checkMediaLimits(ctx, listingID, mediaType); err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(upload.Filename))
	key := fmt.Sprintf("%s/%s/%d%s", s.cfg.MediaBucketPrefix, listingID, time.Now().UnixNano(), ext)

	if err := s.storage.Upload(ctx, key, upload.ContentType, upload.Data); err != nil {
		return nil, fmt.Errorf("failed to upload media for listing %s: %w", listingID, err)
	}

	collection := s.db.Collection(mediaCollection)
	var media *models.PropertyMedia

	operation := func() error {
		media = &models.PropertyMedia{
			ID:         uuid.New(),
			ListingID:  listingID,
			MediaURL:   s.storage.PublicURL(key),
			StorageKey: key,
			MediaType:  mediaType,
			IsPrimary:  isPrimary,
			CreatedAt:  time.Now().UTC(),
		}
		_, insertErr := collection.InsertOne(ctx, media)
		return insertErr
	}

	if err := db.Try(operation); err != nil {
		// The object is already stored; remove it so a failed insert does
		// not leak storage.
		if rmErr := s.storage.Remove(ctx, key); rmErr != nil {
			log.Printf("Failed to remove orphaned media object %s: %v", key, rmErr)
		}
		return nil, fmt.Errorf("failed to insert media row for listing %s: %w", listingID, err)
	}

	return media, nil
}

// UploadMediaBatch attempts each upload independently; a failure on one file
// does not abort the others. The caller gets a per-item report.
func (s *mediaService) UploadMediaBatch(ctx context.Context, listingID uuid.UUID, uploads []models.MediaUpload) []models.MediaUploadResult {
	results := make([]models.MediaUploadResult, 0, len(uploads))
	for _, upload := range uploads {
		media, err := s.UploadMedia(ctx, listingID, upload, false)
		result := models.MediaUploadResult{Filename: upload.Filename, Media: media, Err: err}
		if err != nil {
			result.Error = err.Error()
		}
		results = append(results, result)
	}
	return results
}

// SetPrimaryMedia clears is_primary on every media row of the listing, then
// sets it on the target row. Two sequential updates, deliberately not
// transactional: a crash in between leaves the listing with no primary,
// which is an acceptable degraded state since primary is a display hint.
func (s *mediaService) SetPrimaryMedia(ctx context.Context, listingID, mediaID uuid.UUID) (*models.PropertyMedia, error) {
	collection := s.db.Collection(mediaCollection)

	_, err := collection.UpdateMany(ctx,
		bson.M{"listing_id": listingID},
		bson.M{"$set": bson.M{"is_primary": false}},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to clear primary media for listing %s: %w", listingID, err)
	}

	var media models.PropertyMedia
	err = collection.FindOneAndUpdate(ctx,
		bson.M{"_id": mediaID, "listing_id": listingID},
		bson.M{"$set": bson.M{"is_primary": true}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&media)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("failed to set primary media %s for listing %s: %w", mediaID, listingID, err)
	}
	return &media, nil
}

// DeleteMedia removes a media row and its stored object. The storage removal
// is best effort (logged, not fatal); the row deletion is the operation that
// must succeed. No other media item is auto-promoted to primary.
func (s *mediaService) DeleteMedia(ctx context.Context, mediaID uuid.UUID) error {
	collection := s.db.Collection(mediaCollection)

	var media models.PropertyMedia
	err := collection.FindOne(ctx, bson.M{"_id": mediaID}).Decode(&media)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return mongo.ErrNoDocuments
		}
		return fmt.Errorf("error finding media %s: %w", mediaID, err)
	}

	if media.StorageKey != "" {
		if err := s.storage.Remove(ctx, media.StorageKey); err != nil {
			log.Printf("Error removing media object %s from storage: %v", media.StorageKey, err)
		}
	}

	if _, err := collection.DeleteOne(ctx, bson.M{"_id": mediaID}); err != nil {
		return fmt.Errorf("failed to delete media row %s: %w", mediaID, err)
	}
	return nil
}

// FindMediaByID fetches a single media row.
func (s *mediaService) FindMediaByID(ctx context.Context, mediaID uuid.UUID) (*models.PropertyMedia, error) {
	var media models.PropertyMedia
	err := s.db.Collection(mediaCollection).FindOne(ctx, bson.M{"_id": mediaID}).Decode(&media)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding media %s: %w", mediaID, err)
	}
	return &media, nil
}

// MediaByListing returns all media rows for a listing, oldest first.
func (s *mediaService) MediaByListing(ctx context.Context, listingID uuid.UUID) ([]models.PropertyMedia, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.db.Collection(mediaCollection).Find(ctx, bson.M{"listing_id": listingID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query media for listing %s: %w", listingID, err)
	}
	defer cursor.Close(ctx)

	var media []models.PropertyMedia
	if err = cursor.All(ctx, &media); err != nil {
		return nil, fmt.Errorf("failed to decode media rows for listing %s: %w", listingID, err)
	}
	return media, nil
}

// checkMediaLimits enforces per-listing cardinality before upload: at most
// 20 photos, at most one video. Checked here, not by a database constraint.
func (s *mediaService) checkMediaLimits(ctx context.Context, listingID uuid.UUID, mediaType models.MediaType) error {
	collection := s.db.Collection(mediaCollection)

	switch mediaType {
	case models.MediaTypePhoto:
		count, err := collection.CountDocuments(ctx, bson.M{"listing_id": listingID, "media_type": models.MediaTypePhoto})
		if err != nil {
			return fmt.Errorf("failed to count photos for listing %s: %w", listingID, err)
		}
		if count >= models.MaxPhotosPerListing {
			return ErrPhotoLimitExceeded
		}
	case models.MediaTypeVideo:
		count, err := collection.CountDocuments(ctx, bson.M{"listing_id": listingID, "media_type": models.MediaTypeVideo})
		if err != nil {
			return fmt.Errorf("failed to count videos for listing %s: %w", listingID, err)
		}
		if count >= models.MaxVideosPerListing {
			return ErrVideoLimitExceeded
		}
	}
	return nil
}
