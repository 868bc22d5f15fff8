package session

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/dranie18/propertypro/internal/models"
	"github.com/dranie18/propertypro/internal/services"
)

// State is the authentication state of a session manager.
type State int

const (
	// StateUnauthenticated means no user is signed in.
	StateUnauthenticated State = iota
	// StateLoading means an auth operation is in flight and the outcome is
	// not yet known. Consumers should treat this as "not signed in yet",
	// not as a failure.
	StateLoading
	// StateAuthenticated means a user is signed in and CurrentUser is valid.
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateAuthenticated:
		return "authenticated"
	}
	return "unauthenticated"
}

// Backend is the auth surface the manager drives. Implemented by
// services.IAuthService.
type Backend interface {
	SignIn(ctx context.Context, email, password string) (*models.Session, error)
	SignOut(ctx context.Context, token string) error
	Authenticate(ctx context.Context, token string) (*models.AuthUser, error)
}

// Manager owns one client session: the current user, the token that proves
// it, and a state that is always one of unauthenticated, loading, or
// authenticated. Concurrent operations follow last-completer-wins: each
// operation takes a generation number when it starts and only applies its
// outcome if no newer operation has started since.
type Manager struct {
	backend Backend
	rdb     *redis.Client

	mu    sync.RWMutex
	state State
	user  *models.AuthUser
	token string
	gen   uint64

	sub  *redis.PubSub
	done chan struct{}
	wg   sync.WaitGroup
}

// NewManager creates a manager in the unauthenticated state. Pass a nil rdb
// to run without auth event subscription.
func NewManager(backend Backend, rdb *redis.Client) *Manager {
	return &Manager{
		backend: backend,
		rdb:     rdb,
		state:   StateUnauthenticated,
	}
}

// Start subscribes to auth change events so a sign-out or profile change made
// elsewhere is reflected here. Safe to skip for short-lived managers.
func (m *Manager) Start(ctx context.Context) {
	if m.rdb == nil || m.done != nil {
		return
	}
	m.done = make(chan struct{})
	m.sub = m.rdb.Subscribe(ctx, services.AuthEventsChannel)

	m.wg.Add(1)
	go m.eventLoop(ctx)
}

// Close stops the event subscription and waits for the loop to exit.
func (m *Manager) Close() {
	if m.done == nil {
		return
	}
	close(m.done)
	m.sub.Close()
	m.wg.Wait()
	m.done = nil
}

// SignIn authenticates with the backend. The manager is in the loading state
// for the duration of the call.
func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	gen := m.begin()

	sess, err := m.backend.SignIn(ctx, email, password)
	if err != nil {
		m.complete(gen, StateUnauthenticated, nil, "")
		return err
	}

	m.complete(gen, StateAuthenticated, &sess.User, sess.Token)
	return nil
}

// Resume validates a previously issued token and restores the session it
// represents. An invalid or revoked token leaves the manager unauthenticated
// without error; the caller simply is not signed in.
func (m *Manager) Resume(ctx context.Context, token string) error {
	gen := m.begin()

	user, err := m.backend.Authenticate(ctx, token)
	if err != nil {
		m.complete(gen, StateUnauthenticated, nil, "")
		if errors.Is(err, services.ErrAuthenticationRequired) {
			return nil
		}
		return err
	}

	m.complete(gen, StateAuthenticated, user, token)
	return nil
}

// SignOut revokes the current token and clears the session. The local state
// is cleared even if revocation fails; the token then just ages out.
func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	token := m.token
	m.gen++
	m.state = StateUnauthenticated
	m.user = nil
	m.token = ""
	m.mu.Unlock()

	if token == "" {
		return nil
	}
	return m.backend.SignOut(ctx, token)
}

// State returns the current session state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// CurrentUser returns the signed-in user, if any.
func (m *Manager) CurrentUser() (models.AuthUser, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateAuthenticated || m.user == nil {
		return models.AuthUser{}, false
	}
	return *m.user, true
}

// Token returns the current session token, empty when not authenticated.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// RequireUser returns the signed-in user or ErrAuthenticationRequired.
// Satisfies services.CurrentSession.
func (m *Manager) RequireUser() (models.AuthUser, error) {
	user, ok := m.CurrentUser()
	if !ok {
		return models.AuthUser{}, services.ErrAuthenticationRequired
	}
	return user, nil
}

// begin marks the start of an auth operation and returns its generation.
func (m *Manager) begin() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.state = StateLoading
	return m.gen
}

// complete applies an operation outcome unless a newer operation has started.
func (m *Manager) complete(gen uint64, state State, user *models.AuthUser, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return
	}
	m.state = state
	m.user = user
	m.token = token
}

func (m *Manager) eventLoop(ctx context.Context) {
	defer m.wg.Done()
	ch := m.sub.Channel()

	for {
		select {
		case <-m.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			m.handleEvent(ctx, msg.Payload)
		}
	}
}

// handleEvent reacts to auth changes announced by other clients or workers.
// Events for other users are ignored.
func (m *Manager) handleEvent(ctx context.Context, payload string) {
	var event services.AuthEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		log.Printf("Ignoring malformed auth event: %v", err)
		return
	}

	m.mu.RLock()
	current := ""
	token := m.token
	if m.user != nil {
		current = m.user.ID.String()
	}
	m.mu.RUnlock()

	if current == "" || event.UserID != current {
		return
	}

	switch event.Event {
	case services.AuthEventSignedOut:
		// The token may have been revoked elsewhere; re-check it.
		if err := m.Resume(ctx, token); err != nil {
			log.Printf("Session re-check after sign-out event failed: %v", err)
		}
	case services.AuthEventUserUpdated:
		if err := m.Resume(ctx, token); err != nil {
			log.Printf("Session refresh after user update failed: %v", err)
		}
	}
}
