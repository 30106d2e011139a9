package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "portal.json5")
	require.NoError(t, os.WriteFile(path, []byte(`{
		// portal account
		base_url: "https://lms.example.com",
		username: "2024-12345",
		password: "from-file",
		rate_limit: 2,
		session: { driver: "file", path: "`+filepath.Join(dir, "sessions")+`" },
		telemetry: {
			traces: { protocol: "grpc", url: "http://localhost:4317" },
			sample_ratio: 0.25,
		},
	}`), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "portal.local.json5"), []byte(`{
		timezone: "Asia/Seoul",
	}`), 0600))

	t.Setenv("LMS_PASSWORD", "from-env")
	t.Setenv("LMS_USERNAME", "")
	t.Setenv("LMS_BASE_URL", "")
	t.Setenv("LMS_SESSION_PASSPHRASE", "")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "https://lms.example.com", cfg.BaseUrl)
	require.Equal(t, "2024-12345", cfg.Username)
	require.Equal(t, "from-env", cfg.Password)
	require.Equal(t, "Asia/Seoul", cfg.Timezone)
	require.Equal(t, 2.0, cfg.RateLimit)
	require.Equal(t, "2024-12345", cfg.Session.Name)
	require.Equal(t, "grpc", cfg.Telemetry.Traces.Protocol)
	require.Equal(t, "http://localhost:4317", cfg.Telemetry.Traces.Url)
	require.Equal(t, 0.25, cfg.Telemetry.SampleRatio)
	require.Empty(t, cfg.Telemetry.Metrics.Url)
}

func TestLoadConfigMissingExplicit(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.json5"))
	require.Error(t, err)
}

func TestWithDefaults(t *testing.T) {
	cfg, err := withDefaults(Config{Session: SessionConfig{Driver: "file", Path: "/tmp/sessions"}})
	require.NoError(t, err)
	require.Equal(t, defaultBaseUrl, cfg.BaseUrl)
	require.Equal(t, "default", cfg.Session.Name)

	_, err = withDefaults(Config{Session: SessionConfig{Driver: "libsql"}})
	require.Error(t, err)
}
