package lms

import (
	"context"
	"path/filepath"
	"testing"

	"snulms/lib/scrapers/lms/core"
	"snulms/lib/scrapers/lms/lmstest"
	"snulms/lib/sessionstore"
	"snulms/lib/telemetry"
	"snulms/lib/transport"

	"github.com/stretchr/testify/require"
)

var studentCredentials = &Credentials{
	Username: lmstest.Student.Username,
	Password: lmstest.Student.Password,
}

func setup(t testing.TB) *lmstest.Server {
	t.Helper()
	server := lmstest.NewServer()
	t.Cleanup(server.Close)
	return server
}

func newClient(t testing.TB, server *lmstest.Server) *Client {
	t.Helper()
	client, err := NewClient(context.Background(), Options{
		BaseUrl:   server.URL,
		Telemetry: telemetry.NewRecorder(),
	})
	require.NoError(t, err)
	return client
}

// loggedInDump logs a throwaway client in and returns its session dump.
func loggedInDump(t testing.TB, server *lmstest.Server) []byte {
	t.Helper()
	client := newClient(t, server)
	_, err := client.Login(context.Background(), LoginOptions{Credentials: studentCredentials})
	require.NoError(t, err)
	blob, err := client.DumpSession()
	require.NoError(t, err)
	return blob
}

func TestLoginWithCredentials(t *testing.T) {
	server := setup(t)
	client := newClient(t, server)

	user, err := client.Login(context.Background(), LoginOptions{Credentials: studentCredentials})
	require.NoError(t, err)
	require.Equal(t, lmstest.Student.Id, user.Id)
	require.Equal(t, lmstest.Student.Name, user.Name)
	require.Equal(t, core.StateAuthenticated, client.State())
	require.Equal(t, 1, server.LoginPosts())
}

func TestLoginBadCredentials(t *testing.T) {
	server := setup(t)
	client := newClient(t, server)

	_, err := client.Login(context.Background(), LoginOptions{
		Credentials: &Credentials{Username: lmstest.Student.Username, Password: "nope"},
	})
	require.ErrorIs(t, err, core.ErrBadCredentials)
	require.Equal(t, core.StateUnauthenticated, client.State())
}

func TestLoginMissingCredentials(t *testing.T) {
	server := setup(t)
	client := newClient(t, server)
	ctx := context.Background()

	_, err := client.Login(ctx, LoginOptions{})
	require.ErrorIs(t, err, core.ErrMissingCredentials)

	_, err = client.Login(ctx, LoginOptions{
		Credentials:  &Credentials{Username: lmstest.Student.Username},
		AllowRelogin: true,
	})
	require.ErrorIs(t, err, core.ErrMissingCredentials)
	require.Equal(t, 0, server.LoginPosts())
}

func TestLoginSavedSession(t *testing.T) {
	server := setup(t)
	blob := loggedInDump(t, server)

	client := newClient(t, server)
	user, err := client.Login(context.Background(), LoginOptions{
		Credentials:  studentCredentials,
		SavedSession: blob,
	})
	require.NoError(t, err)
	require.Equal(t, lmstest.Student.Id, user.Id)
	require.Equal(t, core.StateAuthenticated, client.State())
	require.Equal(t, 1, server.LoginPosts(), "a valid saved session must not log in again")
}

func TestLoginExpiredSession(t *testing.T) {
	server := setup(t)
	blob := loggedInDump(t, server)
	server.ExpireSessions()

	client := newClient(t, server)
	_, err := client.Login(context.Background(), LoginOptions{
		Credentials:  studentCredentials,
		SavedSession: blob,
		AllowRelogin: false,
	})
	require.ErrorIs(t, err, core.ErrSessionExpired)
	require.Equal(t, 1, server.LoginPosts(), "credentials must not be submitted")
}

func TestLoginExpiredSessionRelogin(t *testing.T) {
	server := setup(t)
	blob := loggedInDump(t, server)
	server.ExpireSessions()

	client := newClient(t, server)
	user, err := client.Login(context.Background(), LoginOptions{
		Credentials:  studentCredentials,
		SavedSession: blob,
		AllowRelogin: true,
	})
	require.NoError(t, err)
	require.Equal(t, lmstest.Student.Id, user.Id)
	require.Equal(t, 2, server.LoginPosts())
}

func TestLoginExpiredSessionReloginWithoutCredentials(t *testing.T) {
	server := setup(t)
	blob := loggedInDump(t, server)
	server.ExpireSessions()

	client := newClient(t, server)
	_, err := client.Login(context.Background(), LoginOptions{
		SavedSession: blob,
		AllowRelogin: true,
	})
	require.ErrorIs(t, err, core.ErrMissingCredentials)
	require.Equal(t, 1, server.LoginPosts())
}

func TestLoginInvalidSavedSession(t *testing.T) {
	server := setup(t)
	client := newClient(t, server)

	_, err := client.Login(context.Background(), LoginOptions{
		SavedSession: []byte("definitely not a session"),
	})
	require.ErrorIs(t, err, core.ErrSessionExpired)
	require.ErrorIs(t, err, transport.ErrInvalidDump)
}

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	server := setup(t)

	original := newClient(t, server)
	_, err := original.Login(ctx, LoginOptions{Credentials: studentCredentials})
	require.NoError(t, err)
	expected, err := original.CheckSession(ctx)
	require.NoError(t, err)

	blob, err := original.DumpSession()
	require.NoError(t, err)

	restored := newClient(t, server)
	require.NoError(t, restored.RestoreSession(blob))
	require.Equal(t, core.StateUnknown, restored.State())
	require.Equal(t, original.SessionId(), restored.SessionId())

	valid, err := restored.CheckSession(ctx)
	require.NoError(t, err)
	require.Equal(t, expected, valid)
	require.Equal(t, 1, server.LoginPosts())

	sesskey, err := restored.Sesskey(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, sesskey)
}

func TestCoursesFollowProfileRefresh(t *testing.T) {
	ctx := context.Background()
	server := setup(t)
	client := newClient(t, server)

	_, err := client.Login(ctx, LoginOptions{Credentials: studentCredentials})
	require.NoError(t, err)
	courses, err := client.Courses(ctx, false)
	require.NoError(t, err)
	require.Equal(t, map[int64]string{101: "Calculus 1", 102: "Korean History"}, courses)

	server.SetProfile(lmstest.Student.Id, lmstest.Fixture("profile_updated.html"))

	_, err = client.Profile(ctx, true)
	require.NoError(t, err)
	courses, err = client.Courses(ctx, false)
	require.NoError(t, err)
	require.Equal(t, map[int64]string{201: "Calculus 2"}, courses)
}

func TestUserWithoutLoginActivity(t *testing.T) {
	ctx := context.Background()
	server := setup(t)
	client := newClient(t, server)

	_, err := client.Login(ctx, LoginOptions{Credentials: studentCredentials})
	require.NoError(t, err)

	user, err := client.User(ctx, lmstest.MinimalUserId)
	require.NoError(t, err)
	require.True(t, user.FirstAccess.IsZero())
	require.True(t, user.LastAccess.IsZero())
}

func TestLogoutForgetsProfile(t *testing.T) {
	ctx := context.Background()
	server := setup(t)
	client := newClient(t, server)

	_, err := client.Login(ctx, LoginOptions{Credentials: studentCredentials})
	require.NoError(t, err)
	require.NoError(t, client.Logout(ctx))
	require.Equal(t, 1, server.Logouts())
	require.Equal(t, core.StateUnauthenticated, client.State())

	// nothing cached, and the portal no longer shows a user menu
	_, err = client.Profile(ctx, false)
	require.ErrorIs(t, err, core.ErrUnknown)

	err = client.Logout(ctx)
	require.ErrorIs(t, err, core.ErrNotAuthenticated)
}

func TestLoginFromStore(t *testing.T) {
	ctx := context.Background()
	server := setup(t)
	store, err := sessionstore.NewFileStore(filepath.Join(t.TempDir(), "sessions"), "passphrase")
	require.NoError(t, err)

	first := newClient(t, server)
	_, err = first.LoginFromStore(ctx, store, "student", studentCredentials, false)
	require.NoError(t, err)
	require.Equal(t, 1, server.LoginPosts())

	blob, err := store.Load(ctx, "student")
	require.NoError(t, err)
	require.NotEmpty(t, blob)

	second := newClient(t, server)
	user, err := second.LoginFromStore(ctx, store, "student", nil, false)
	require.NoError(t, err)
	require.Equal(t, lmstest.Student.Id, user.Id)
	require.Equal(t, 1, server.LoginPosts())

	server.ExpireSessions()
	third := newClient(t, server)
	_, err = third.LoginFromStore(ctx, store, "student", studentCredentials, true)
	require.NoError(t, err)
	require.Equal(t, 2, server.LoginPosts())
}
