package capability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoProvider() Provider {
	return ProviderFunc(func(_ context.Context, input map[string]any) (map[string]any, error) {
		return input, nil
	})
}

func TestRegisterAndLookup(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("echo", echoProvider()))

	assert.True(t, reg.Has("echo"))
	p, err := reg.Lookup("echo")
	require.NoError(t, err)

	out, err := p.Execute(context.Background(), map[string]any{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, "v", out["k"])
}

func TestLookupUnknownCapability(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Lookup("nope")

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "nope", notFound.Capability)
}

func TestDuplicateRegistrationRejected(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("echo", echoProvider()))
	assert.Error(t, reg.Register("echo", echoProvider()))
}

func TestFrozenRegistryRejectsRegistration(t *testing.T) {
	reg := NewRegistry()
	reg.Freeze()
	assert.Error(t, reg.Register("late", echoProvider()))
}

func TestNilAndEmptyRegistration(t *testing.T) {
	reg := NewRegistry()
	assert.Error(t, reg.Register("", echoProvider()))
	assert.Error(t, reg.Register("nil", nil))
}

func TestNamesSorted(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("zeta", echoProvider()))
	require.NoError(t, reg.Register("alpha", echoProvider()))
	assert.Equal(t, []string{"alpha", "zeta"}, reg.Names())
}
