package config

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"universe/internal/upstream"
)

func TestLoadCreatesDefaultConfigOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "universe", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadNormalizesPartialConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":8443"
timezone: America/New_York
upstream:
  timeout: 3s
  insecure_skip_verify: true
cache:
  backend: redis
basic_auth:
  username: admin
  password: ""
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8443", cfg.Listen)
	assert.Equal(t, "America/New_York", cfg.Timezone)
	assert.Equal(t, 3*time.Second, cfg.Upstream.Timeout)
	assert.True(t, cfg.Upstream.InsecureSkipVerify)
	assert.Equal(t, upstream.DefaultURL, cfg.Upstream.URL)
	assert.Equal(t, upstream.DefaultMaxEvents, cfg.Upstream.MaxEvents)
	assert.Equal(t, CacheBackendFile, cfg.Cache.Backend, "unknown backend falls back to file")
	assert.Equal(t, defaultCachePath, cfg.Cache.Path)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Empty(t, cfg.RefreshCron, "an explicit config without refresh disables warm-up")
	assert.Nil(t, cfg.BasicAuth, "blank password disables basic auth")
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsEmptyPath(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)
	assert.Error(t, Save("", DefaultConfig()))
	assert.Error(t, Save(filepath.Join(t.TempDir(), "c.yaml"), nil))
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Cache.Backend = CacheBackendMemory
	cfg.BasicAuth = &BasicAuthConfig{Username: "ops", Password: "secret"}
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestUpstreamClientConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Upstream.RequireImages = true

	uc := cfg.UpstreamClientConfig()
	assert.Equal(t, cfg.Upstream.URL, uc.URL)
	assert.Empty(t, uc.Host, "Host follows the URL unless overridden")
	assert.True(t, uc.RequireImages)
	assert.False(t, uc.InsecureSkipVerify)
	assert.Equal(t, upstream.DefaultTimeout, uc.Timeout)
}

func TestDefaultHostFollowsEditedURL(t *testing.T) {
	var gotHost string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHost = r.Host
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "config.yaml")
	_, err := Load(path)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "host:")

	cfg, err := Load(path)
	require.NoError(t, err)
	cfg.Upstream.URL = srv.URL

	client, err := upstream.NewClient(cfg.UpstreamClientConfig(), srv.Client())
	require.NoError(t, err)
	_, err = client.Fetch(context.Background(), time.Date(2025, time.March, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	assert.Equal(t, u.Host, gotHost)
}
