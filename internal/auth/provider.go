// Package auth holds the per-client authentication session: who is signed in,
// whether an auth call is in flight, and who wants to hear about changes.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"taskflow/backend/internal/models"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

var ErrProfileNotFound = errors.New("profile not found")

// Backend is the identity service a Provider talks to.
type Backend interface {
	SignIn(ctx context.Context, email, password string) (*models.Session, error)
	SignUp(ctx context.Context, email, password string) (*models.Session, error)
	SignOut(ctx context.Context, refreshToken string) error
	LookupProfile(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

// Provisioner creates the profile and default categories of a fresh account.
type Provisioner interface {
	ProvisionUser(ctx context.Context, accessToken, name string) error
}

type Listener func(session *models.Session)

type Provider struct {
	mu          sync.RWMutex
	backend     Backend
	provisioner Provisioner
	session     *models.Session
	loading     int
	listeners   map[int]Listener
	nextID      int
	log         *zap.Logger
}

func NewProvider(backend Backend, provisioner Provisioner, log *zap.Logger) *Provider {
	if log == nil {
		log = zap.NewNop()
	}
	return &Provider{
		backend:     backend,
		provisioner: provisioner,
		listeners:   make(map[int]Listener),
		log:         log.Named("auth"),
	}
}

func (p *Provider) User() *models.Identity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.session == nil {
		return nil
	}
	user := p.session.Identity
	return &user
}

func (p *Provider) Session() *models.Session {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.session == nil {
		return nil
	}
	s := *p.session
	return &s
}

// Loading reports whether a sign-in, sign-up or sign-out is in flight.
func (p *Provider) Loading() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loading > 0
}

// Subscribe registers fn for session changes and returns its removal func.
func (p *Provider) Subscribe(fn Listener) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

func (p *Provider) begin() func() {
	p.mu.Lock()
	p.loading++
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		p.loading--
		p.mu.Unlock()
	}
}

func (p *Provider) setSession(session *models.Session) {
	p.mu.Lock()
	p.session = session
	listeners := make([]Listener, 0, len(p.listeners))
	for _, fn := range p.listeners {
		listeners = append(listeners, fn)
	}
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(session)
	}
}

// SignIn authenticates and, when the account has no profile yet, provisions
// it once. A provisioning failure is returned but the session stays.
func (p *Provider) SignIn(ctx context.Context, email, password string) error {
	defer p.begin()()

	session, err := p.backend.SignIn(ctx, email, password)
	if err != nil {
		return err
	}
	p.setSession(session)

	_, err = p.backend.LookupProfile(ctx, session.Identity.ID)
	switch {
	case errors.Is(err, ErrProfileNotFound):
		p.log.Info("profile missing, provisioning", zap.String("user_id", session.Identity.ID.String()))
		return p.provision(ctx, session, "")
	case err != nil:
		return fmt.Errorf("lookup profile: %w", err)
	}
	return nil
}

// SignUp creates the account, signs it in and provisions it with name.
func (p *Provider) SignUp(ctx context.Context, name, email, password string) error {
	defer p.begin()()

	session, err := p.backend.SignUp(ctx, email, password)
	if err != nil {
		return err
	}
	p.setSession(session)
	return p.provision(ctx, session, name)
}

func (p *Provider) provision(ctx context.Context, session *models.Session, name string) error {
	if p.provisioner == nil {
		return nil
	}
	if err := p.provisioner.ProvisionUser(ctx, session.AccessToken, name); err != nil {
		p.log.Warn("provisioning failed", zap.String("user_id", session.Identity.ID.String()), zap.Error(err))
		return fmt.Errorf("provision profile: %w", err)
	}
	return nil
}

// SignOut revokes the refresh token and clears the session even when the
// revocation fails.
func (p *Provider) SignOut(ctx context.Context) error {
	defer p.begin()()

	session := p.Session()
	if session == nil {
		return nil
	}
	err := p.backend.SignOut(ctx, session.RefreshToken)
	p.setSession(nil)
	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}
