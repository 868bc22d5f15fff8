package models

import (
	"time"

	"github.com/google/uuid"
)

// PropertyType enumerates the kinds of property that can be listed.
type PropertyType string

const (
	PropertyTypeRumah     PropertyType = "rumah"
	PropertyTypeApartemen PropertyType = "apartemen"
	PropertyTypeRuko      PropertyType = "ruko"
	PropertyTypeTanah     PropertyType = "tanah"
)

// Valid reports whether t is one of the known property types.
func (t PropertyType) Valid() bool {
	switch t {
	case PropertyTypeRumah, PropertyTypeApartemen, PropertyTypeRuko, PropertyTypeTanah:
		return true
	}
	return false
}

// ListingStatus enumerates the sale/rent state of a listing.
type ListingStatus string

const (
	ListingStatusTersedia ListingStatus = "tersedia"
	ListingStatusTerjual  ListingStatus = "terjual"
	ListingStatusDisewa   ListingStatus = "disewa"
)

// Valid reports whether s is one of the known listing statuses.
func (s ListingStatus) Valid() bool {
	switch s {
	case ListingStatusTersedia, ListingStatusTerjual, ListingStatusDisewa:
		return true
	}
	return false
}

// Listing represents a property-for-sale-or-rent record.
// Price is stored in the smallest currency unit (Rupiah, no decimals).
type Listing struct {
	ID           uuid.UUID       `bson:"_id,omitempty" json:"id,omitempty"`
	UserID       uuid.UUID       `bson:"user_id" json:"user_id"`
	Title        string          `bson:"title" json:"title"`
	Description  string          `bson:"description" json:"description"`
	Price        int64           `bson:"price" json:"price"`
	Location     string          `bson:"location" json:"location"`
	PropertyType PropertyType    `bson:"property_type" json:"property_type"`
	Status       ListingStatus   `bson:"status" json:"status"`
	SquareMeters float64         `bson:"square_meters" json:"square_meters"`
	Bedrooms     *int            `bson:"bedrooms,omitempty" json:"bedrooms,omitempty"`
	Bathrooms    *int            `bson:"bathrooms,omitempty" json:"bathrooms,omitempty"`
	CreatedAt    time.Time       `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `bson:"updated_at" json:"updated_at"`
	Media        []PropertyMedia `bson:"-" json:"media,omitempty"` // Joined from property_media, not stored inline
}

// ListingForm holds the caller-supplied fields for creating a listing.
// The owner is always the authenticated user, never part of the form.
type ListingForm struct {
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	Price        int64         `json:"price"`
	Location     string        `json:"location"`
	PropertyType PropertyType  `json:"property_type"`
	Status       ListingStatus `json:"status"`
	SquareMeters float64       `json:"square_meters"`
	Bedrooms     *int          `json:"bedrooms,omitempty"`
	Bathrooms    *int          `json:"bathrooms,omitempty"`
}

// ListingFilter describes the optional predicates for a listing query.
// Absent (nil/empty) fields add no constraint; present fields combine with
// AND semantics. SearchTerm matches title OR description OR location,
// case-insensitive substring.
type ListingFilter struct {
	PropertyType    *PropertyType  `json:"property_type,omitempty"`
	Status          *ListingStatus `json:"status,omitempty"`
	MinPrice        *int64         `json:"min_price,omitempty"`
	MaxPrice        *int64         `json:"max_price,omitempty"`
	MinSquareMeters *float64       `json:"min_square_meters,omitempty"`
	MaxSquareMeters *float64       `json:"max_square_meters,omitempty"`
	MinBedrooms     *int           `json:"min_bedrooms,omitempty"`
	SearchTerm      *string        `json:"search_term,omitempty"`
}

// Pagination is a 1-based page request.
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// ListingPage is one page of a filtered listing query, with the total
// match count of the full filtered set (not just this page).
type ListingPage struct {
	Items      []Listing `json:"data"`
	TotalCount int64     `json:"count"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
	TotalPages int       `json:"total_pages"`
}
