package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dranie18/propertypro/internal/auth"
	"github.com/dranie18/propertypro/internal/config"
	"github.com/dranie18/propertypro/internal/db"
	"github.com/dranie18/propertypro/internal/models"
	"github.com/dranie18/propertypro/internal/tasks"
)

// AuthEventsChannel is the Redis pub/sub channel carrying auth state changes.
// Session managers subscribe to it to keep their view of the current user fresh.
const AuthEventsChannel = "auth:events"

// Auth event kinds published on AuthEventsChannel.
const (
	AuthEventSignedIn    = "SIGNED_IN"
	AuthEventSignedOut   = "SIGNED_OUT"
	AuthEventUserUpdated = "USER_UPDATED"
)

// AuthEvent is the payload published on AuthEventsChannel.
type AuthEvent struct {
	Event  string `json:"event"`
	UserID string `json:"user_id"`
}

// ITaskEnqueuer is the narrow enqueue surface the auth service needs.
// Satisfied by *asynq.Client.
type ITaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// IAuthService defines the interface for account and session operations.
type IAuthService interface {
	SignUp(ctx context.Context, email, password, fullName string) (*models.Session, error)
	SignIn(ctx context.Context, email, password string) (*models.Session, error)
	SignOut(ctx context.Context, token string) error
	Authenticate(ctx context.Context, token string) (*models.AuthUser, error)
	ResetPassword(ctx context.Context, email string) error
	CompletePasswordReset(ctx context.Context, token, newPassword string) error
	UpdatePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error
	ProfileByID(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error)
}

const profilesCollection = "user_profiles"

// Redis key prefixes owned by the auth service.
const (
	revokedTokenKeyPrefix = "auth:revoked:"
	resetTokenKeyPrefix   = "auth:pwreset:"
)

var emailShapeRegexp = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// authService implements IAuthService.
type authService struct {
	db         *mongo.Database
	cfg        *config.Config
	rdb        *redis.Client
	taskClient ITaskEnqueuer
}

// NewAuthService creates a new AuthService.
func NewAuthService(db *mongo.Database, cfg *config.Config, rdb *redis.Client, taskClient ITaskEnqueuer) IAuthService {
	return &authService{db: db, cfg: cfg, rdb: rdb, taskClient: taskClient}
}

// SignUp validates the registration input, creates the account, and signs the
// new user straight in. All input validation happens before any database call.
func (s *authService) SignUp(ctx context.Context, email, password, fullName string) (*models.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailShapeRegexp.MatchString(email) {
		return nil, NewValidationError("email", "is not a valid email address")
	}
	if strings.TrimSpace(fullName) == "" {
		return nil, NewValidationError("full_name", "is required")
	}
	ok, err := auth.CheckPasswordPolicy(password, s.cfg.PasswordRegexp)
	if err != nil {
		return nil, fmt.Errorf("failed to check password policy: %w", err)
	}
	if !ok {
		return nil, NewValidationError("password", "does not meet the password policy")
	}

	collection := s.db.Collection(profilesCollection)

	// Pre-check before insert; the unique email index is the real guarantee.
	count, err := collection.CountDocuments(ctx, bson.M{"email": email})
	if err != nil {
		return nil, fmt.Errorf("error checking email uniqueness for %s: %w", email, err)
	}
	if count > 0 {
		return nil, ErrEmailExists
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	var profile *models.UserProfile

	operation := func() error {
		profile = &models.UserProfile{
			ID:           uuid.New(),
			Email:        email,
			FullName:     strings.TrimSpace(fullName),
			Role:         models.RoleUser,
			PasswordHash: hashed,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		_, insertErr := collection.InsertOne(ctx, profile)
		return insertErr
	}

	if err := db.Try(operation); err != nil {
		if mongo.IsDuplicateKeyError(err) && strings.Contains(err.Error(), "email_1") {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("error inserting new profile for %s: %w", email, err)
	}

	return s.issueSession(ctx, profile)
}

// SignIn verifies credentials and issues a session. Unknown email and wrong
// password both surface as ErrInvalidCredentials.
func (s *authService) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	profile, err := s.findByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.CheckPasswordHash(password, profile.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return s.issueSession(ctx, profile)
}

// SignOut revokes the given token until its natural expiry and announces the
// sign-out. Revoking an already-invalid token is a no-op.
func (s *authService) SignOut(ctx context.Context, token string) error {
	claims, err := auth.ValidateJWT(token, s.cfg.JwtSecret)
	if err != nil {
		return nil
	}

	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	if err := s.rdb.Set(ctx, revokedTokenKey(token), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	s.publishAuthEvent(ctx, AuthEventSignedOut, claims.UserID)
	return nil
}

// Authenticate resolves a token to its user: signature and expiry check,
// revocation check, then a profile fetch. A transient profile fetch failure
// degrades to the claims-derived identity rather than failing the request.
func (s *authService) Authenticate(ctx context.Context, token string) (*models.AuthUser, error) {
	claims, err := auth.ValidateJWT(token, s.cfg.JwtSecret)
	if err != nil {
		return nil, ErrAuthenticationRequired
	}

	revoked, err := s.rdb.Exists(ctx, revokedTokenKey(token)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check token revocation: %w", err)
	}
	if revoked > 0 {
		return nil, ErrAuthenticationRequired
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, ErrAuthenticationRequired
	}

	profile, err := s.ProfileByID(ctx, userID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// Account gone; the token no longer identifies anyone.
			return nil, ErrAuthenticationRequired
		}
		log.Printf("Profile fetch failed for user %s, falling back to token claims: %v", claims.UserID, err)
		return &models.AuthUser{ID: userID, Email: claims.Email, Role: models.RoleUser}, nil
	}

	return authUserFromProfile(profile), nil
}

// ResetPassword starts the password reset flow. An unknown email is silently
// accepted so the endpoint does not reveal which addresses have accounts.
func (s *authService) ResetPassword(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	profile, err := s.findByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			log.Printf("Password reset requested for unknown email")
			return nil
		}
		return err
	}

	token := uuid.NewString()
	if err := s.rdb.Set(ctx, resetTokenKey(token), profile.ID.String(), s.cfg.ResetPasswordTTL).Err(); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	payload, err := json.Marshal(tasks.EmailTaskPayload{
		To:      profile.Email,
		Subject: fmt.Sprintf("%s password reset", s.cfg.AppName),
		Body: fmt.Sprintf("Hi %s,\r\n\r\nA password reset was requested for your account.\r\nFollow this link to choose a new password:\r\n\r\n%s?token=%s\r\n\r\nThe link expires in %s. If you did not request this, ignore this email.\r\n",
			profile.FullName, s.cfg.ResetPasswordURL, token, s.cfg.ResetPasswordTTL),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal reset email payload: %w", err)
	}

	if _, err := s.taskClient.Enqueue(asynq.NewTask(tasks.TypeEmailDelivery, payload)); err != nil {
		return fmt.Errorf("failed to enqueue reset email: %w", err)
	}

	log.Printf("Password reset email enqueued for user %s", profile.ID)
	return nil
}

// CompletePasswordReset redeems a reset token and sets the new password.
// The token is single use.
func (s *authService) CompletePasswordReset(ctx context.Context, token, newPassword string) error {
	ok, err := auth.CheckPasswordPolicy(newPassword, s.cfg.PasswordRegexp)
	if err != nil {
		return fmt.Errorf("failed to check password policy: %w", err)
	}
	if !ok {
		return NewValidationError("password", "does not meet the password policy")
	}

	userIDStr, err := s.rdb.Get(ctx, resetTokenKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrInvalidResetToken
		}
		return fmt.Errorf("failed to look up reset token: %w", err)
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return ErrInvalidResetToken
	}

	if err := s.setPassword(ctx, userID, newPassword); err != nil {
		return err
	}

	if err := s.rdb.Del(ctx, resetTokenKey(token)).Err(); err != nil {
		log.Printf("Failed to delete used reset token: %v", err)
	}

	s.publishAuthEvent(ctx, AuthEventUserUpdated, userID.String())
	return nil
}

// UpdatePassword changes the password of a signed-in user. The current
// password must be supplied and verified first.
func (s *authService) UpdatePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error {
	profile, err := s.ProfileByID(ctx, userID)
	if err != nil {
		return err
	}
	if !auth.CheckPasswordHash(currentPassword, profile.PasswordHash) {
		return ErrInvalidCredentials
	}

	ok, err := auth.CheckPasswordPolicy(newPassword, s.cfg.PasswordRegexp)
	if err != nil {
		return fmt.Errorf("failed to check password policy: %w", err)
	}
	if !ok {
		return NewValidationError("password", "does not meet the password policy")
	}

	if err := s.setPassword(ctx, userID, newPassword); err != nil {
		return err
	}

	s.publishAuthEvent(ctx, AuthEventUserUpdated, userID.String())
	return nil
}

// ProfileByID finds a profile by its ID. Returns mongo.ErrNoDocuments if not found.
func (s *authService) ProfileByID(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error) {
	var profile models.UserProfile
	err := s.db.Collection(profilesCollection).FindOne(ctx, bson.M{"_id": userID}).Decode(&profile)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding profile by ID %s: %w", userID, err)
	}
	return &profile, nil
}

func (s *authService) findByEmail(ctx context.Context, email string) (*models.UserProfile, error) {
	var profile models.UserProfile
	err := s.db.Collection(profilesCollection).FindOne(ctx, bson.M{"email": email}).Decode(&profile)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding profile by email: %w", err)
	}
	return &profile, nil
}

func (s *authService) setPassword(ctx context.Context, userID uuid.UUID, newPassword string) error {
	hashed, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password for user %s: %w", userID, err)
	}

	update := bson.M{"$set": bson.M{"password": hashed, "updated_at": time.Now().UTC()}}
	result, err := s.db.Collection(profilesCollection).UpdateByID(ctx, userID, update)
	if err != nil {
		return fmt.Errorf("error updating password for user %s: %w", userID, err)
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// issueSession signs a JWT for the profile and announces the sign-in.
func (s *authService) issueSession(ctx context.Context, profile *models.UserProfile) (*models.Session, error) {
	token, err := auth.GenerateJWT(profile.ID, profile.Email, profile.Role, s.cfg.JwtSecret, s.cfg.JwtTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session for user %s: %w", profile.ID, err)
	}

	s.publishAuthEvent(ctx, AuthEventSignedIn, profile.ID.String())

	return &models.Session{
		Token:     token,
		ExpiresAt: time.Now().Add(s.cfg.JwtTTL),
		User:      *authUserFromProfile(profile),
	}, nil
}

// publishAuthEvent is fire and forget; a missed event only delays a session
// manager until its next explicit refresh.
func (s *authService) publishAuthEvent(ctx context.Context, event, userID string) {
	payload, err := json.Marshal(AuthEvent{Event: event, UserID: userID})
	if err != nil {
		log.Printf("Failed to marshal auth event %s: %v", event, err)
		return
	}
	if err := s.rdb.Publish(ctx, AuthEventsChannel, payload).Err(); err != nil {
		log.Printf("Failed to publish auth event %s: %v", event, err)
	}
}

func authUserFromProfile(profile *models.UserProfile) *models.AuthUser {
	role := profile.Role
	if role == "" {
		role = models.RoleUser
	}
	return &models.AuthUser{
		ID:       profile.ID,
		Email:    profile.Email,
		FullName: profile.FullName,
		Role:     role,
	}
}

func revokedTokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return revokedTokenKeyPrefix + hex.EncodeToString(sum[:])
}

func resetTokenKey(token string) string {
	return resetTokenKeyPrefix + token
}
