package models

import (
	"time"

	"github.com/google/uuid"
)

// MediaType distinguishes photos from videos.
type MediaType string

const (
	MediaTypePhoto MediaType = "photo"
	MediaTypeVideo MediaType = "video"
)

// Per-listing media caps. The service checks these before any upload;
// they are not database constraints.
const (
	MaxPhotosPerListing = 20
	MaxVideosPerListing = 1

	MaxPhotoSizeBytes = 5 * 1024 * 1024
	MaxVideoSizeBytes = 100 * 1024 * 1024
)

// PropertyMedia is a photo or video attached to a listing. Media cannot
// outlive its listing. At most one media item per listing is primary.
type PropertyMedia struct {
	ID         uuid.UUID `bson:"_id,omitempty" json:"id,omitempty"`
	ListingID  uuid.UUID `bson:"listing_id" json:"listing_id"`
	MediaURL   string    `bson:"media_url" json:"media_url"`
	StorageKey string    `bson:"storage_key" json:"-"` // Object storage key, kept for deletion
	MediaType  MediaType `bson:"media_type" json:"media_type"`
	IsPrimary  bool      `bson:"is_primary" json:"is_primary"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
}

// MediaUpload is the in-memory form of a file handed to the upload
// pipeline: raw bytes plus the client-declared name and MIME type.
type MediaUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// MediaUploadResult reports the outcome of one file in a batch upload.
// Uploads are attempted independently; one failure does not abort the rest.
type MediaUploadResult struct {
	Filename string         `json:"filename"`
	Media    *PropertyMedia `json:"media,omitempty"`
	Err      error          `json:"-"`
	Error    string         `json:"error,omitempty"`
}
