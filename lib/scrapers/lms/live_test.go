package lms

import (
	"context"
	"testing"

	devenv "snulms/dev/env"
	"snulms/lib/telemetry"

	"github.com/stretchr/testify/require"
)

// TestLive runs against a real portal account configured in
// <dev_state>/lms.json5, it is skipped when that file does not exist.
func TestLive(t *testing.T) {
	config, err := devenv.GetStateConfig[devenv.LiveConfig]("lms.json5")
	if err != nil {
		t.Skip("no live config:", err)
	}

	ctx := context.Background()
	client, err := NewClient(ctx, Options{
		BaseUrl:   config.BaseUrl,
		RateLimit: 2,
		Telemetry: telemetry.SlogAPI{},
	})
	require.NoError(t, err)

	user, err := client.Login(ctx, LoginOptions{
		Credentials: &Credentials{Username: config.Username, Password: config.Password},
	})
	require.NoError(t, err)
	require.NotEmpty(t, user.Name)
	t.Logf("logged in as %s (%d) with %d courses", user.Name, user.Id, len(user.Courses))

	if config.OtherUser > 0 {
		other, err := client.User(ctx, config.OtherUser)
		require.NoError(t, err)
		require.NotEmpty(t, other.Name)
	}

	blob, err := client.DumpSession()
	require.NoError(t, err)
	restored, err := NewClient(ctx, Options{BaseUrl: config.BaseUrl, RateLimit: 2})
	require.NoError(t, err)
	require.NoError(t, restored.RestoreSession(blob))
	valid, err := restored.CheckSession(ctx)
	require.NoError(t, err)
	require.True(t, valid)

	require.NoError(t, client.Logout(ctx))
}
