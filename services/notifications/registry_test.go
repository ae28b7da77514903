package notifications

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockProvider struct {
	mock.Mock
	name string
}

func (m *mockProvider) Name() string {
	return m.name
}

func (m *mockProvider) Send(ctx context.Context, payload Payload) error {
	return m.Called(ctx, payload).Error(0)
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(&mockProvider{name: "email"}))
	require.NoError(t, r.Register(&mockProvider{name: "telegram"}))

	assert.ErrorIs(t, r.Register(&mockProvider{name: "email"}), ErrProviderAlreadyRegistered)
	assert.Error(t, r.Register(&mockProvider{name: ""}))
	assert.Error(t, r.Register(nil))

	assert.Equal(t, []string{"email", "telegram"}, r.List())
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry()
	p := &mockProvider{name: "whatsapp"}
	require.NoError(t, r.Register(p))

	got, err := r.Get("whatsapp")
	require.NoError(t, err)
	assert.Same(t, p, got)

	_, err = r.Get("sms")
	assert.ErrorIs(t, err, ErrProviderNotFound)

	assert.Equal(t, []string{"whatsapp"}, r.List())
}
