package auth

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Identity is an opaque principal. Nothing outside this package looks inside.
type Identity struct {
	uid string
}

// UID returns the identifier the store records for audit logging.
func (i Identity) UID() string { return i.uid }

// IsZero reports whether the identity was never issued.
func (i Identity) IsZero() bool { return i.uid == "" }

// AnonymousProvider issues a single anonymous identity for the process, which
// is enough to pass the store's write check.
type AnonymousProvider struct {
	mu        sync.Mutex
	current   Identity
	listeners []func(Identity)
	log       logrus.FieldLogger
}

// NewAnonymousProvider creates a provider with no signed-in identity.
func NewAnonymousProvider(logger logrus.FieldLogger) *AnonymousProvider {
	return &AnonymousProvider{log: logger.WithField("component", "auth")}
}

// SignIn returns the current identity, issuing one on first use.
func (p *AnonymousProvider) SignIn(ctx context.Context) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	p.mu.Lock()
	if !p.current.IsZero() {
		id := p.current
		p.mu.Unlock()
		return id, nil
	}
	p.current = Identity{uid: uuid.NewString()}
	id := p.current
	listeners := append([]func(Identity){}, p.listeners...)
	p.mu.Unlock()

	p.log.WithField("uid", id.uid).Info("Signed in anonymously")
	for _, fn := range listeners {
		fn(id)
	}
	return id, nil
}

// SignOut drops the current identity and notifies listeners with a zero value.
func (p *AnonymousProvider) SignOut() {
	p.mu.Lock()
	p.current = Identity{}
	listeners := append([]func(Identity){}, p.listeners...)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(Identity{})
	}
}

// Current returns the signed-in identity, zero if none.
func (p *AnonymousProvider) Current() Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// OnChange registers fn to run after every sign-in or sign-out. fn is called
// immediately with the current identity.
func (p *AnonymousProvider) OnChange(fn func(Identity)) {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	id := p.current
	p.mu.Unlock()
	fn(id)
}

type ctxKey struct{}

// WithIdentity attaches id to ctx for the store's write check.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity attached to ctx.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	if !ok || id.IsZero() {
		return Identity{}, false
	}
	return id, true
}
