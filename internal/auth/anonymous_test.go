package auth

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider() *AnonymousProvider {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewAnonymousProvider(logger)
}

func TestSignInReusesIdentity(t *testing.T) {
	p := newTestProvider()
	ctx := context.Background()

	var seen []Identity
	p.OnChange(func(id Identity) { seen = append(seen, id) })

	first, err := p.SignIn(ctx)
	require.NoError(t, err)
	second, err := p.SignIn(ctx)
	require.NoError(t, err)

	assert.False(t, first.IsZero())
	assert.Equal(t, first, second)
	assert.Equal(t, first, p.Current())
	// One immediate call with the zero identity, one for the sign-in.
	require.Len(t, seen, 2)
	assert.True(t, seen[0].IsZero())
	assert.Equal(t, first, seen[1])

	p.SignOut()
	assert.True(t, p.Current().IsZero())
	assert.Len(t, seen, 3)
}

func TestSignInCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestProvider().SignIn(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestContextIdentity(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	id := Identity{uid: "u1"}
	got, ok := FromContext(WithIdentity(context.Background(), id))
	require.True(t, ok)
	assert.Equal(t, "u1", got.UID())

	_, ok = FromContext(WithIdentity(context.Background(), Identity{}))
	assert.False(t, ok)
}
