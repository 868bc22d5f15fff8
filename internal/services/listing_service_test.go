package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dranie18/propertypro/internal/config"
	"github.com/dranie18/propertypro/internal/models"
	"github.com/dranie18/propertypro/internal/utils"
)

func setupTestDBListing(t *testing.T, dbName string) *mongo.Database {
	return utils.SetupTestDB(t, dbName, listingsCollection, mediaCollection)
}

func testListingForm(title string) models.ListingForm {
	return models.ListingForm{
		Title:        title,
		Description:  "Test description",
		Price:        500_000_000,
		Location:     "Jakarta Selatan",
		PropertyType: models.PropertyTypeRumah,
		Status:       models.ListingStatusTersedia,
		SquareMeters: 120,
	}
}

// fakeSession implements CurrentSession for owner-scoped tests.
type fakeSession struct {
	user models.AuthUser
	err  error
}

func (s *fakeSession) RequireUser() (models.AuthUser, error) {
	return s.user, s.err
}

func TestListingService_CRUD(t *testing.T) {
	db := setupTestDBListing(t, "testdb_listing_service_crud")
	svc := NewListingService(db, &config.Config{})
	ctx := context.Background()

	ownerID := uuid.New()

	listing, err := svc.CreateListing(ctx, ownerID, testListingForm("Rumah asri"))
	require.NoError(t, err)
	require.NotNil(t, listing)
	assert.Equal(t, "Rumah asri", listing.Title)
	assert.Equal(t, ownerID, listing.UserID)
	assert.NotEqual(t, uuid.Nil, listing.ID)

	found, err := svc.FindListingByID(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, listing.ID, found.ID)

	_, err = svc.FindListingByID(ctx, uuid.New())
	assert.ErrorIs(t, err, mongo.ErrNoDocuments)

	// Update by owner
	updated, err := svc.UpdateListing(ctx, listing.ID, ownerID, map[string]interface{}{
		"title": "Rumah asri (nego)",
		"price": int64(480_000_000),
	})
	require.NoError(t, err)
	assert.Equal(t, "Rumah asri (nego)", updated.Title)
	assert.Equal(t, int64(480_000_000), updated.Price)
	assert.True(t, updated.UpdatedAt.After(listing.UpdatedAt))

	// Update by someone else is indistinguishable from not-found
	_, err = svc.UpdateListing(ctx, listing.ID, uuid.New(), map[string]interface{}{"title": "hijacked"})
	assert.ErrorIs(t, err, ErrNotOwner)

	// Unknown field is rejected before any write
	_, err = svc.UpdateListing(ctx, listing.ID, ownerID, map[string]interface{}{"user_id": uuid.New()})
	assert.True(t, IsValidationError(err))

	// Delete by non-owner fails, listing survives
	err = svc.DeleteListing(ctx, listing.ID, uuid.New())
	assert.ErrorIs(t, err, ErrNotOwner)
	_, err = svc.FindListingByID(ctx, listing.ID)
	assert.NoError(t, err)

	// Delete by owner
	err = svc.DeleteListing(ctx, listing.ID, ownerID)
	assert.NoError(t, err)
	_, err = svc.FindListingByID(ctx, listing.ID)
	assert.ErrorIs(t, err, mongo.ErrNoDocuments)

	// Deleting a listing that never existed
	err = svc.DeleteListing(ctx, uuid.New(), ownerID)
	assert.ErrorIs(t, err, mongo.ErrNoDocuments)
}

func TestListingService_CreateValidation(t *testing.T) {
	db := setupTestDBListing(t, "testdb_listing_service_validation")
	svc := NewListingService(db, &config.Config{})
	ctx := context.Background()

	form := testListingForm("Bad listing")
	form.Price = -5
	_, err := svc.CreateListing(ctx, uuid.New(), form)
	assert.True(t, IsValidationError(err))

	// Nothing was inserted
	count, err := db.Collection(listingsCollection).CountDocuments(ctx, bson.M{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestListingService_ListFilteredAndPaginated(t *testing.T) {
	db := setupTestDBListing(t, "testdb_listing_service_list")
	svc := NewListingService(db, &config.Config{})
	ctx := context.Background()

	ownerID := uuid.New()

	// 15 apartments and 5 houses
	for i := 0; i < 15; i++ {
		form := testListingForm("Apartemen unit")
		form.PropertyType = models.PropertyTypeApartemen
		form.Price = int64(300_000_000 + i*10_000_000)
		_, err := svc.CreateListing(ctx, ownerID, form)
		require.NoError(t, err)
	}
	for i := 0; i < 5; i++ {
		_, err := svc.CreateListing(ctx, ownerID, testListingForm("Rumah keluarga"))
		require.NoError(t, err)
	}

	// Unfiltered: count spans the whole set, the page holds one window
	page, err := svc.ListListings(ctx, models.ListingFilter{}, models.Pagination{Page: 1, PageSize: 8})
	require.NoError(t, err)
	assert.Equal(t, int64(20), page.TotalCount)
	assert.Equal(t, 3, page.TotalPages)
	assert.Len(t, page.Items, 8)

	// Last page is the remainder
	page, err = svc.ListListings(ctx, models.ListingFilter{}, models.Pagination{Page: 3, PageSize: 8})
	require.NoError(t, err)
	assert.Len(t, page.Items, 4)

	// Page past the end is empty, not an error
	page, err = svc.ListListings(ctx, models.ListingFilter{}, models.Pagination{Page: 4, PageSize: 8})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, int64(20), page.TotalCount)

	// Filter by type
	pt := models.PropertyTypeApartemen
	page, err = svc.ListListings(ctx, models.ListingFilter{PropertyType: &pt}, models.Pagination{Page: 1, PageSize: 50})
	require.NoError(t, err)
	assert.Equal(t, int64(15), page.TotalCount)
	assert.Len(t, page.Items, 15)

	// Price range narrows the apartments
	minPrice := int64(400_000_000)
	page, err = svc.ListListings(ctx, models.ListingFilter{PropertyType: &pt, MinPrice: &minPrice}, models.Pagination{Page: 1, PageSize: 50})
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.TotalCount)

	// Search term matches the title, case-insensitive
	term := "KELUARGA"
	page, err = svc.ListListings(ctx, models.ListingFilter{SearchTerm: &term}, models.Pagination{Page: 1, PageSize: 50})
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.TotalCount)

	// A filter matching nothing returns an empty page with zero count
	term = "no such listing anywhere"
	page, err = svc.ListListings(ctx, models.ListingFilter{SearchTerm: &term}, models.Pagination{Page: 1, PageSize: 50})
	require.NoError(t, err)
	assert.Equal(t, int64(0), page.TotalCount)
	assert.Empty(t, page.Items)

	// Bad page numbers are rejected up front
	_, err = svc.ListListings(ctx, models.ListingFilter{}, models.Pagination{Page: 0, PageSize: 10})
	assert.True(t, IsValidationError(err))
	_, err = svc.ListListings(ctx, models.ListingFilter{}, models.Pagination{Page: 1, PageSize: 0})
	assert.True(t, IsValidationError(err))
}

func TestListingService_PageUnionReconstructsFilteredSet(t *testing.T) {
	db := setupTestDBListing(t, "testdb_listing_service_page_union")
	svc := NewListingService(db, &config.Config{})
	ctx := context.Background()

	// Bulk-inserted rows share one created_at, so ordering within the set
	// rests entirely on the _id tiebreak.
	ownerID := uuid.New()
	createdAt := time.Now().UTC().Truncate(time.Millisecond)
	coll := db.Collection(listingsCollection)
	seeded := make(map[uuid.UUID]bool, 20)
	for i := 0; i < 20; i++ {
		l := models.Listing{
			ID:           uuid.New(),
			UserID:       ownerID,
			Title:        "Apartemen unit",
			Description:  "Test description",
			Price:        500_000_000,
			Location:     "Jakarta Selatan",
			PropertyType: models.PropertyTypeApartemen,
			Status:       models.ListingStatusTersedia,
			SquareMeters: 50,
			CreatedAt:    createdAt,
			UpdatedAt:    createdAt,
		}
		_, err := coll.InsertOne(ctx, l)
		require.NoError(t, err)
		seeded[l.ID] = true
	}

	// Walking every page yields each listing exactly once.
	first, err := svc.ListListings(ctx, models.ListingFilter{}, models.Pagination{Page: 1, PageSize: 6})
	require.NoError(t, err)
	require.Equal(t, 4, first.TotalPages)

	seen := make(map[uuid.UUID]bool, len(seeded))
	for p := 1; p <= first.TotalPages; p++ {
		page, err := svc.ListListings(ctx, models.ListingFilter{}, models.Pagination{Page: p, PageSize: 6})
		require.NoError(t, err)
		for _, item := range page.Items {
			assert.False(t, seen[item.ID], "listing %s appeared on more than one page", item.ID)
			seen[item.ID] = true
		}
	}
	require.Equal(t, len(seeded), len(seen))
	for id := range seeded {
		assert.True(t, seen[id], "listing %s missing from the page walk", id)
	}
}

func TestListingService_UpdateLandInvariant(t *testing.T) {
	db := setupTestDBListing(t, "testdb_listing_service_land_update")
	svc := NewListingService(db, &config.Config{})
	ctx := context.Background()

	ownerID := uuid.New()

	landForm := testListingForm("Kavling siap bangun")
	landForm.PropertyType = models.PropertyTypeTanah
	land, err := svc.CreateListing(ctx, ownerID, landForm)
	require.NoError(t, err)

	// Room counts cannot be added to a land listing
	_, err = svc.UpdateListing(ctx, land.ID, ownerID, map[string]interface{}{"bedrooms": 3})
	assert.True(t, IsValidationError(err))

	two := 2
	houseForm := testListingForm("Rumah dua kamar")
	houseForm.Bedrooms = &two
	houseForm.Bathrooms = &two
	house, err := svc.CreateListing(ctx, ownerID, houseForm)
	require.NoError(t, err)

	// Converting to land together with room counts is rejected
	_, err = svc.UpdateListing(ctx, house.ID, ownerID, map[string]interface{}{
		"property_type": models.PropertyTypeTanah,
		"bathrooms":     1,
	})
	assert.True(t, IsValidationError(err))

	// Converting to land alone drops the stored counts
	updated, err := svc.UpdateListing(ctx, house.ID, ownerID, map[string]interface{}{
		"property_type": models.PropertyTypeTanah,
	})
	require.NoError(t, err)
	assert.Equal(t, models.PropertyTypeTanah, updated.PropertyType)
	assert.Nil(t, updated.Bedrooms)
	assert.Nil(t, updated.Bathrooms)
}

func TestListingService_NewestFirstOrdering(t *testing.T) {
	db := setupTestDBListing(t, "testdb_listing_service_order")
	svc := NewListingService(db, &config.Config{})
	ctx := context.Background()

	ownerID := uuid.New()
	_, err := svc.CreateListing(ctx, ownerID, testListingForm("Older"))
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	newer, err := svc.CreateListing(ctx, ownerID, testListingForm("Newer"))
	require.NoError(t, err)

	page, err := svc.ListListings(ctx, models.ListingFilter{}, models.Pagination{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, newer.ID, page.Items[0].ID)

	byOwner, err := svc.ListingsByOwner(ctx, ownerID)
	require.NoError(t, err)
	require.Len(t, byOwner, 2)
	assert.Equal(t, newer.ID, byOwner[0].ID)
}

func TestListingService_OwnedListings(t *testing.T) {
	db := setupTestDBListing(t, "testdb_listing_service_owned")
	svc := NewListingService(db, &config.Config{})
	ctx := context.Background()

	mine := uuid.New()
	other := uuid.New()
	_, err := svc.CreateListing(ctx, mine, testListingForm("Mine"))
	require.NoError(t, err)
	_, err = svc.CreateListing(ctx, other, testListingForm("Not mine"))
	require.NoError(t, err)

	sess := &fakeSession{user: models.AuthUser{ID: mine, Email: "me@example.com"}}
	listings, err := svc.OwnedListings(ctx, sess)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, "Mine", listings[0].Title)

	// No session means no listings, not an empty success
	_, err = svc.OwnedListings(ctx, &fakeSession{err: ErrAuthenticationRequired})
	assert.ErrorIs(t, err, ErrAuthenticationRequired)
}

func TestListingService_MediaJoin(t *testing.T) {
	db := setupTestDBListing(t, "testdb_listing_service_media_join")
	svc := NewListingService(db, &config.Config{})
	ctx := context.Background()

	ownerID := uuid.New()
	listing, err := svc.CreateListing(ctx, ownerID, testListingForm("With photos"))
	require.NoError(t, err)
	bare, err := svc.CreateListing(ctx, ownerID, testListingForm("Without photos"))
	require.NoError(t, err)

	mediaColl := db.Collection(mediaCollection)
	for i := 0; i < 2; i++ {
		_, err := mediaColl.InsertOne(ctx, models.PropertyMedia{
			ID:        uuid.New(),
			ListingID: listing.ID,
			MediaURL:  "https://media.example.com/x.jpg",
			MediaType: models.MediaTypePhoto,
			CreatedAt: time.Now().UTC().Add(time.Duration(i) * time.Millisecond),
		})
		require.NoError(t, err)
	}

	found, err := svc.FindListingByID(ctx, listing.ID)
	require.NoError(t, err)
	assert.Len(t, found.Media, 2)

	foundBare, err := svc.FindListingByID(ctx, bare.ID)
	require.NoError(t, err)
	assert.Empty(t, foundBare.Media)

	page, err := svc.ListListings(ctx, models.ListingFilter{}, models.Pagination{Page: 1, PageSize: 10})
	require.NoError(t, err)
	for _, item := range page.Items {
		if item.ID == listing.ID {
			assert.Len(t, item.Media, 2)
		}
	}
}
