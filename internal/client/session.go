package client

import (
	"context"
	"sync"

	domain "bandsched/backend/internal/domain/auth"
)

// Phase is the client-side authentication phase.
type Phase string

const (
	PhaseUnauthenticated Phase = "unauthenticated"
	PhaseLoading         Phase = "loading"
	PhaseAuthenticated   Phase = "authenticated"
	PhaseError           Phase = "error"
)

const (
	loginFailedMessage    = "Login failed. Please try again."
	registerFailedMessage = "Registration failed. Please try again."
)

// State is a snapshot of the session. Authenticated implies User and Token
// are set; Error implies both are empty.
type State struct {
	Phase Phase
	User  *domain.PublicUser
	Token string
	Err   string
}

// InvalidationSource publishes auth invalidation events. *Client is one.
type InvalidationSource interface {
	OnAuthInvalidated(fn func(AuthInvalidated)) (cancel func())
}

// Session is the client-side authentication state machine. Operations may
// overlap; only the most recently started one is allowed to resolve into
// the current state.
type Session struct {
	api    AuthAPI
	tokens TokenStore

	mu      sync.Mutex
	state   State
	gen     uint64
	changed chan struct{}
	subs    map[int]chan State
	nextSub int
}

// NewSession starts in the loading phase until Restore resolves.
func NewSession(api AuthAPI, tokens TokenStore) *Session {
	return &Session{
		api:     api,
		tokens:  tokens,
		state:   State{Phase: PhaseLoading},
		changed: make(chan struct{}),
		subs:    make(map[int]chan State),
	}
}

// State returns the current snapshot.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe returns a channel that receives the latest state after every
// transition. Slow readers only ever see the newest state.
func (s *Session) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan State, 1)
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Watch resets the session whenever src reports that the backend rejected
// the stored token.
func (s *Session) Watch(src InvalidationSource) (cancel func()) {
	return src.OnAuthInvalidated(s.invalidate)
}

// WaitReady blocks while the session is loading. Route decisions should be
// made on the state it returns.
func (s *Session) WaitReady(ctx context.Context) (State, error) {
	for {
		s.mu.Lock()
		st, changed := s.state, s.changed
		s.mu.Unlock()
		if st.Phase != PhaseLoading {
			return st, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return st, ctx.Err()
		}
	}
}

// Restore resolves the persisted token into an identity. A missing token
// resolves without a network call; a rejected token is cleared silently.
func (s *Session) Restore(ctx context.Context) State {
	token, err := s.tokens.Load()
	if err != nil || token == "" {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.gen++
		if err != nil {
			_ = s.tokens.Clear()
		}
		s.setLocked(State{Phase: PhaseUnauthenticated})
		return s.state
	}

	gen := s.begin()
	user, err := s.api.Me(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return s.state
	}
	if err != nil || user == nil {
		_ = s.tokens.Clear()
		s.setLocked(State{Phase: PhaseUnauthenticated})
		return s.state
	}
	s.setLocked(State{Phase: PhaseAuthenticated, User: user, Token: token})
	return s.state
}

// Login exchanges credentials for a token.
func (s *Session) Login(ctx context.Context, creds domain.Credentials) error {
	gen := s.begin()
	resp, err := s.api.Login(ctx, creds)
	return s.resolve(gen, resp, err, loginFailedMessage)
}

// Register creates an account and signs in as it.
func (s *Session) Register(ctx context.Context, reg domain.Registration) error {
	gen := s.begin()
	resp, err := s.api.Register(ctx, reg)
	return s.resolve(gen, resp, err, registerFailedMessage)
}

// Logout clears the token immediately. Any in-flight operation resolves
// into nothing.
func (s *Session) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	err := s.tokens.Clear()
	s.setLocked(State{Phase: PhaseUnauthenticated})
	return err
}

// ResetError returns an error phase to unauthenticated.
func (s *Session) ResetError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Phase == PhaseError {
		s.setLocked(State{Phase: PhaseUnauthenticated})
	}
}

func (s *Session) begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.setLocked(State{Phase: PhaseLoading})
	return s.gen
}

func (s *Session) resolve(gen uint64, resp *AuthResponse, err error, fallback string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return err
	}
	if err == nil && (resp == nil || resp.Token == "" || resp.User == nil) {
		err = &APIError{Message: fallback}
	}
	if err == nil {
		err = s.tokens.Save(resp.Token)
	}
	if err != nil {
		_ = s.tokens.Clear()
		s.setLocked(State{Phase: PhaseError, Err: failureMessage(err, fallback)})
		return err
	}
	s.setLocked(State{Phase: PhaseAuthenticated, User: resp.User, Token: resp.Token})
	return nil
}

// invalidate handles a 401 seen anywhere in the transport. The token is
// already gone; an error phase keeps its message.
func (s *Session) invalidate(AuthInvalidated) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state.Phase {
	case PhaseUnauthenticated, PhaseError:
		return
	}
	s.gen++
	s.setLocked(State{Phase: PhaseUnauthenticated})
}

func (s *Session) setLocked(st State) {
	s.state = st
	close(s.changed)
	s.changed = make(chan struct{})
	for _, ch := range s.subs {
		select {
		case ch <- st:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- st
		}
	}
}

func failureMessage(err error, fallback string) string {
	if apiErr, ok := AsAPIError(err); ok && apiErr.Status != 0 && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
