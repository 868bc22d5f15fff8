package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dranie18/propertypro/internal/models"
	"github.com/dranie18/propertypro/internal/services"
)

// fakeBackend implements Backend with swappable behavior per test.
type fakeBackend struct {
	mu           sync.Mutex
	signIn       func(ctx context.Context, email, password string) (*models.Session, error)
	signOut      func(ctx context.Context, token string) error
	authenticate func(ctx context.Context, token string) (*models.AuthUser, error)
	signOutCalls int
}

func (b *fakeBackend) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	return b.signIn(ctx, email, password)
}

func (b *fakeBackend) SignOut(ctx context.Context, token string) error {
	b.mu.Lock()
	b.signOutCalls++
	b.mu.Unlock()
	if b.signOut != nil {
		return b.signOut(ctx, token)
	}
	return nil
}

func (b *fakeBackend) Authenticate(ctx context.Context, token string) (*models.AuthUser, error) {
	return b.authenticate(ctx, token)
}

func testUser() models.AuthUser {
	return models.AuthUser{
		ID:       uuid.New(),
		Email:    "user@example.com",
		FullName: "Test User",
		Role:     "user",
	}
}

func TestManager_InitialState(t *testing.T) {
	m := NewManager(&fakeBackend{}, nil)
	assert.Equal(t, StateUnauthenticated, m.State())
	assert.Empty(t, m.Token())

	_, ok := m.CurrentUser()
	assert.False(t, ok)

	_, err := m.RequireUser()
	assert.ErrorIs(t, err, services.ErrAuthenticationRequired)
}

func TestManager_SignInSuccess(t *testing.T) {
	user := testUser()
	backend := &fakeBackend{
		signIn: func(ctx context.Context, email, password string) (*models.Session, error) {
			assert.Equal(t, "user@example.com", email)
			return &models.Session{Token: "tok-1", User: user}, nil
		},
	}
	m := NewManager(backend, nil)

	err := m.SignIn(context.Background(), "user@example.com", "password123")
	require.NoError(t, err)

	assert.Equal(t, StateAuthenticated, m.State())
	assert.Equal(t, "tok-1", m.Token())

	got, ok := m.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, user.ID, got.ID)

	got, err = m.RequireUser()
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
}

func TestManager_SignInFailure(t *testing.T) {
	backend := &fakeBackend{
		signIn: func(ctx context.Context, email, password string) (*models.Session, error) {
			return nil, services.ErrInvalidCredentials
		},
	}
	m := NewManager(backend, nil)

	err := m.SignIn(context.Background(), "user@example.com", "wrong")
	assert.ErrorIs(t, err, services.ErrInvalidCredentials)
	assert.Equal(t, StateUnauthenticated, m.State())
	assert.Empty(t, m.Token())
}

func TestManager_ResumeValidToken(t *testing.T) {
	user := testUser()
	backend := &fakeBackend{
		authenticate: func(ctx context.Context, token string) (*models.AuthUser, error) {
			assert.Equal(t, "tok-resume", token)
			return &user, nil
		},
	}
	m := NewManager(backend, nil)

	require.NoError(t, m.Resume(context.Background(), "tok-resume"))
	assert.Equal(t, StateAuthenticated, m.State())
	assert.Equal(t, "tok-resume", m.Token())
}

func TestManager_ResumeInvalidTokenIsNotAnError(t *testing.T) {
	backend := &fakeBackend{
		authenticate: func(ctx context.Context, token string) (*models.AuthUser, error) {
			return nil, services.ErrAuthenticationRequired
		},
	}
	m := NewManager(backend, nil)

	// An invalid or revoked token just means not signed in
	err := m.Resume(context.Background(), "stale-token")
	assert.NoError(t, err)
	assert.Equal(t, StateUnauthenticated, m.State())
}

func TestManager_ResumeBackendFailure(t *testing.T) {
	backendErr := errors.New("redis unreachable")
	backend := &fakeBackend{
		authenticate: func(ctx context.Context, token string) (*models.AuthUser, error) {
			return nil, backendErr
		},
	}
	m := NewManager(backend, nil)

	err := m.Resume(context.Background(), "tok")
	assert.ErrorIs(t, err, backendErr)
	assert.Equal(t, StateUnauthenticated, m.State())
}

func TestManager_SignOut(t *testing.T) {
	user := testUser()
	backend := &fakeBackend{
		signIn: func(ctx context.Context, email, password string) (*models.Session, error) {
			return &models.Session{Token: "tok-out", User: user}, nil
		},
	}
	m := NewManager(backend, nil)
	require.NoError(t, m.SignIn(context.Background(), "user@example.com", "pw"))

	require.NoError(t, m.SignOut(context.Background()))
	assert.Equal(t, StateUnauthenticated, m.State())
	assert.Empty(t, m.Token())
	assert.Equal(t, 1, backend.signOutCalls)

	// Signing out while signed out never hits the backend again
	require.NoError(t, m.SignOut(context.Background()))
	assert.Equal(t, 1, backend.signOutCalls)
}

func TestManager_SignOutClearsLocallyOnBackendFailure(t *testing.T) {
	user := testUser()
	revokeErr := errors.New("revocation failed")
	backend := &fakeBackend{
		signIn: func(ctx context.Context, email, password string) (*models.Session, error) {
			return &models.Session{Token: "tok", User: user}, nil
		},
		signOut: func(ctx context.Context, token string) error {
			return revokeErr
		},
	}
	m := NewManager(backend, nil)
	require.NoError(t, m.SignIn(context.Background(), "user@example.com", "pw"))

	err := m.SignOut(context.Background())
	assert.ErrorIs(t, err, revokeErr)
	// Local state is gone regardless; the token just ages out server-side
	assert.Equal(t, StateUnauthenticated, m.State())
	assert.Empty(t, m.Token())
}

func TestManager_LastCompleterWins(t *testing.T) {
	user := testUser()
	release := make(chan struct{})
	backend := &fakeBackend{
		signIn: func(ctx context.Context, email, password string) (*models.Session, error) {
			// A slow sign-in that finishes after a newer operation
			<-release
			return &models.Session{Token: "stale-tok", User: user}, nil
		},
		authenticate: func(ctx context.Context, token string) (*models.AuthUser, error) {
			return nil, services.ErrAuthenticationRequired
		},
	}
	m := NewManager(backend, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = m.SignIn(context.Background(), "user@example.com", "pw")
	}()

	// Wait for the sign-in to take its generation, then start a newer
	// operation that completes first.
	for m.State() != StateLoading {
		time.Sleep(time.Millisecond)
	}
	require.NoError(t, m.Resume(context.Background(), "whatever"))
	assert.Equal(t, StateUnauthenticated, m.State())

	// Let the stale sign-in finish; its outcome must be discarded.
	close(release)
	wg.Wait()

	assert.Equal(t, StateUnauthenticated, m.State())
	assert.Empty(t, m.Token())
	_, ok := m.CurrentUser()
	assert.False(t, ok)
}

func TestManager_HandleEventReChecksSession(t *testing.T) {
	user := testUser()
	authOK := true
	var mu sync.Mutex
	backend := &fakeBackend{
		signIn: func(ctx context.Context, email, password string) (*models.Session, error) {
			return &models.Session{Token: "tok-evt", User: user}, nil
		},
		authenticate: func(ctx context.Context, token string) (*models.AuthUser, error) {
			mu.Lock()
			defer mu.Unlock()
			if authOK {
				return &user, nil
			}
			return nil, services.ErrAuthenticationRequired
		},
	}
	m := NewManager(backend, nil)
	require.NoError(t, m.SignIn(context.Background(), "user@example.com", "pw"))

	// An event about a different user changes nothing
	payload, _ := json.Marshal(services.AuthEvent{Event: services.AuthEventSignedOut, UserID: uuid.NewString()})
	m.handleEvent(context.Background(), string(payload))
	assert.Equal(t, StateAuthenticated, m.State())

	// A sign-out event for the current user re-checks the token; once the
	// backend rejects it, the session drops.
	mu.Lock()
	authOK = false
	mu.Unlock()
	payload, _ = json.Marshal(services.AuthEvent{Event: services.AuthEventSignedOut, UserID: user.ID.String()})
	m.handleEvent(context.Background(), string(payload))
	assert.Equal(t, StateUnauthenticated, m.State())

	// Malformed events are ignored
	m.handleEvent(context.Background(), "{not json")
	assert.Equal(t, StateUnauthenticated, m.State())
}
