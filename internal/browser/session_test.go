package browser_test

import (
	"context"
	"errors"
	"testing"

	"github.com/halc8312/esp/internal/browser"
	"github.com/halc8312/esp/internal/browser/browsertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireOwned(t *testing.T) {
	provider := browsertest.NewProvider(browsertest.NewSite())

	lease, err := browser.Acquire(context.Background(), provider, nil, true)
	require.NoError(t, err)
	assert.True(t, lease.Owned())
	assert.Equal(t, 1, provider.Opened())

	require.NoError(t, lease.Release())
	require.NoError(t, lease.Release())
	assert.Equal(t, 1, lease.Session().(*browsertest.Session).Closes())
}

func TestAcquireBorrowed(t *testing.T) {
	provider := browsertest.NewProvider(browsertest.NewSite())
	shared := browsertest.NewSession(browsertest.NewSite())

	lease, err := browser.Acquire(context.Background(), provider, shared, true)
	require.NoError(t, err)
	assert.False(t, lease.Owned())
	assert.Same(t, shared, lease.Session())

	require.NoError(t, lease.Release())
	assert.Zero(t, shared.Closes())
	assert.Zero(t, provider.Opened())
}

func TestAcquireInitFailure(t *testing.T) {
	provider := browsertest.NewProvider(browsertest.NewSite())
	provider.OpenErr = errors.New("executable not found")

	_, err := browser.Acquire(context.Background(), provider, nil, true)
	var initErr *browser.SessionInitError
	require.ErrorAs(t, err, &initErr)

	_, err = browser.Acquire(context.Background(), nil, nil, true)
	require.ErrorIs(t, err, browser.ErrNoProvider)
}
