package services

import (
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dranie18/propertypro/internal/models"
)

// BuildListingFilter translates a ListingFilter into a bson document. Each
// present field contributes one conjunctive predicate; the search term, if
// present, contributes one $or group matching title OR description OR
// location as a case-insensitive substring. Absent fields add nothing.
//
// Kept as a pure function so predicate construction is testable without a
// live database.
func BuildListingFilter(f models.ListingFilter) bson.M {
	filter := bson.M{}

	if f.PropertyType != nil {
		filter["property_type"] = *f.PropertyType
	}
	if f.Status != nil {
		filter["status"] = *f.Status
	}

	if f.MinPrice != nil || f.MaxPrice != nil {
		price := bson.M{}
		if f.MinPrice != nil {
			price["$gte"] = *f.MinPrice
		}
		if f.MaxPrice != nil {
			price["$lte"] = *f.MaxPrice
		}
		filter["price"] = price
	}

	if f.MinSquareMeters != nil || f.MaxSquareMeters != nil {
		area := bson.M{}
		if f.MinSquareMeters != nil {
			area["$gte"] = *f.MinSquareMeters
		}
		if f.MaxSquareMeters != nil {
			area["$lte"] = *f.MaxSquareMeters
		}
		filter["square_meters"] = area
	}

	if f.MinBedrooms != nil {
		filter["bedrooms"] = bson.M{"$gte": *f.MinBedrooms}
	}

	if f.SearchTerm != nil && *f.SearchTerm != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(*f.SearchTerm), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"title": re},
			bson.M{"description": re},
			bson.M{"location": re},
		}
	}

	return filter
}

// ListingSortOrder is the canonical listing ordering: newest first, with _id
// as the deterministic tiebreak so pagination stays stable across pages.
func ListingSortOrder() bson.D {
	return bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}
}
