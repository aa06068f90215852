package browser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.True(t, opts.Headless)
	assert.Equal(t, 30*time.Second, opts.Timeout)
	assert.Equal(t, 1920, opts.ViewportWidth)
	assert.Equal(t, 1080, opts.ViewportHeight)
	assert.Equal(t, "en-US", opts.Locale)
	assert.Equal(t, "America/Denver", opts.TimezoneID)
}

func TestLaunchArgsFollowViewport(t *testing.T) {
	opts := DefaultOptions()
	opts.ViewportWidth = 1280
	opts.ViewportHeight = 800

	args := opts.launchArgs()
	assert.Contains(t, args, "--window-size=1280,800")
	assert.Contains(t, args, "--disable-blink-features=AutomationControlled")
}

func TestHeadersIncludeAcceptLanguage(t *testing.T) {
	opts := DefaultOptions()
	headers := opts.headers()

	assert.Equal(t, "en-US,en;q=0.9", headers["Accept-Language"])
	assert.Equal(t, "1", headers["DNT"])
	assert.NotContains(t, opts.ExtraHeaders, "Accept-Language")
}

func TestIsBlockedTitle(t *testing.T) {
	tests := []struct {
		title    string
		expected bool
	}{
		{"Access Denied", true},
		{"  request rejected ", true},
		{"Meat & Seafood | Costco", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsBlockedTitle(tt.title))
		})
	}
}
