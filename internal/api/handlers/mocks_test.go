package handlers_test

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/mock"

	"github.com/dranie18/propertypro/internal/api/middleware"
	"github.com/dranie18/propertypro/internal/models"
	"github.com/dranie18/propertypro/internal/services"
)

// --- Mocks ---

// MockListingService
type MockListingService struct {
	mock.Mock
}

func (m *MockListingService) ListListings(ctx context.Context, filter models.ListingFilter, page models.Pagination) (*models.ListingPage, error) {
	args := m.Called(ctx, filter, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ListingPage), args.Error(1)
}
func (m *MockListingService) FindListingByID(ctx context.Context, listingID uuid.UUID) (*models.Listing, error) {
	args := m.Called(ctx, listingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}
func (m *MockListingService) ListingsByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Listing, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Listing), args.Error(1)
}
func (m *MockListingService) OwnedListings(ctx context.Context, sess services.CurrentSession) ([]models.Listing, error) {
	args := m.Called(ctx, sess)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Listing), args.Error(1)
}
func (m *MockListingService) CreateListing(ctx context.Context, ownerID uuid.UUID, form models.ListingForm) (*models.Listing, error) {
	args := m.Called(ctx, ownerID, form)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}
func (m *MockListingService) UpdateListing(ctx context.Context, listingID, ownerID uuid.UUID, updates map[string]interface{}) (*models.Listing, error) {
	args := m.Called(ctx, listingID, ownerID, updates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}
func (m *MockListingService) DeleteListing(ctx context.Context, listingID, ownerID uuid.UUID) error {
	args := m.Called(ctx, listingID, ownerID)
	return args.Error(0)
}

// MockMediaService
type MockMediaService struct {
	mock.Mock
}

func (m *MockMediaService) UploadMedia(ctx context.Context, listingID uuid.UUID, upload models.MediaUpload, isPrimary bool) (*models.PropertyMedia, error) {
	args := m.Called(ctx, listingID, upload, isPrimary)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PropertyMedia), args.Error(1)
}
func (m *MockMediaService) UploadMediaBatch(ctx context.Context, listingID uuid.UUID, uploads []models.MediaUpload) []models.MediaUploadResult {
	args := m.Called(ctx, listingID, uploads)
	return args.Get(0).([]models.MediaUploadResult)
}
func (m *MockMediaService) SetPrimaryMedia(ctx context.Context, listingID, mediaID uuid.UUID) (*models.PropertyMedia, error) {
	args := m.Called(ctx, listingID, mediaID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PropertyMedia), args.Error(1)
}
func (m *MockMediaService) DeleteMedia(ctx context.Context, mediaID uuid.UUID) error {
	args := m.Called(ctx, mediaID)
	return args.Error(0)
}
func (m *MockMediaService) FindMediaByID(ctx context.Context, mediaID uuid.UUID) (*models.PropertyMedia, error) {
	args := m.Called(ctx, mediaID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PropertyMedia), args.Error(1)
}
func (m *MockMediaService) MediaByListing(ctx context.Context, listingID uuid.UUID) ([]models.PropertyMedia, error) {
	args := m.Called(ctx, listingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.PropertyMedia), args.Error(1)
}

// MockAuthService
type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) SignUp(ctx context.Context, email, password, fullName string) (*models.Session, error) {
	args := m.Called(ctx, email, password, fullName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Session), args.Error(1)
}
func (m *MockAuthService) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Session), args.Error(1)
}
func (m *MockAuthService) SignOut(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}
func (m *MockAuthService) Authenticate(ctx context.Context, token string) (*models.AuthUser, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AuthUser), args.Error(1)
}
func (m *MockAuthService) ResetPassword(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}
func (m *MockAuthService) CompletePasswordReset(ctx context.Context, token, newPassword string) error {
	args := m.Called(ctx, token, newPassword)
	return args.Error(0)
}
func (m *MockAuthService) UpdatePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error {
	args := m.Called(ctx, userID, currentPassword, newPassword)
	return args.Error(0)
}
func (m *MockAuthService) ProfileByID(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserProfile), args.Error(1)
}

// MockTaskEnqueuer
type MockTaskEnqueuer struct {
	mock.Mock
}

func (m *MockTaskEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(task)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*asynq.TaskInfo), args.Error(1)
}

// authAs simulates AuthMiddleware for a signed-in user.
func authAs(user models.AuthUser, token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyUser, user)
		c.Set(middleware.ContextKeyToken, token)
		c.Next()
	}
}

func testAuthUser() models.AuthUser {
	return models.AuthUser{
		ID:       uuid.New(),
		Email:    "owner@example.com",
		FullName: "Owner",
		Role:     "user",
	}
}
