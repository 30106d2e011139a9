package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"snulms/lib/telemetry"

	"github.com/stretchr/testify/require"
)

func newPortal(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/portal/set", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "MoodleSession", Value: "abc123", Path: "/"})
		w.Write([]byte("set"))
	})
	mux.HandleFunc("/portal/echo", func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("MoodleSession")
		if err != nil {
			w.Write([]byte("none"))
			return
		}
		w.Write([]byte(c.Value))
	})
	mux.HandleFunc("/portal/form", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Write([]byte(r.Method + " " + r.PostForm.Get("username") + " " + r.URL.Query().Get("id")))
	})
	mux.HandleFunc("/portal/redirect", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/portal/echo", http.StatusSeeOther)
	})
	mux.HandleFunc("/portal/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newSession(t *testing.T, baseUrl string) *Session {
	t.Helper()
	s, err := New(Options{
		BaseUrl:   baseUrl,
		Telemetry: telemetry.NewRecorder(),
	})
	require.NoError(t, err)
	return s
}

func TestNewRejectsBadBaseUrl(t *testing.T) {
	for _, raw := range []string{"", "ftp://lms.example.com", "not a url", "https://"} {
		_, err := New(Options{BaseUrl: raw})
		require.Error(t, err, raw)
	}
}

func TestGetResolvesAgainstBasePath(t *testing.T) {
	server := newPortal(t)
	s := newSession(t, server.URL+"/portal/")
	ctx := context.Background()

	require.Equal(t, server.URL+"/portal", s.BaseUrl().String())

	res, err := s.Get(ctx, "/set")
	require.NoError(t, err)
	require.Equal(t, "set", string(res.Body))

	res, err = s.Get(ctx, "echo")
	require.NoError(t, err)
	require.Equal(t, "abc123", string(res.Body))
}

func TestPostForm(t *testing.T) {
	server := newPortal(t)
	s := newSession(t, server.URL+"/portal")

	res, err := s.PostForm(context.Background(), "/form?id=7", map[string]string{
		"username": "student",
	})
	require.NoError(t, err)
	require.Equal(t, "POST student 7", string(res.Body))
}

func TestFinalUrlAfterRedirect(t *testing.T) {
	server := newPortal(t)
	s := newSession(t, server.URL+"/portal")

	res, err := s.Get(context.Background(), "/redirect")
	require.NoError(t, err)
	require.Equal(t, "/portal/echo", res.Url.Path)
	require.Equal(t, "none", string(res.Body))
}

func TestStatusError(t *testing.T) {
	server := newPortal(t)
	s := newSession(t, server.URL+"/portal")

	_, err := s.Get(context.Background(), "/missing")
	var statusErr StatusError
	require.True(t, errors.As(err, &statusErr), "got %v", err)
	require.Equal(t, http.StatusNotFound, statusErr.Status)
}

func TestDumpRestoreRoundTrip(t *testing.T) {
	server := newPortal(t)
	ctx := context.Background()

	original := newSession(t, server.URL+"/portal")
	_, err := original.Get(ctx, "/set")
	require.NoError(t, err)

	blob, err := original.Dump()
	require.NoError(t, err)

	restored := newSession(t, server.URL+"/portal")
	require.NotEqual(t, original.Id(), restored.Id())
	require.NoError(t, restored.Restore(blob))
	require.Equal(t, original.Id(), restored.Id())

	res, err := restored.Get(ctx, "/echo")
	require.NoError(t, err)
	require.Equal(t, "abc123", string(res.Body))
}

func TestRestoreReplacesCookies(t *testing.T) {
	server := newPortal(t)
	ctx := context.Background()

	empty := newSession(t, server.URL+"/portal")
	blob, err := empty.Dump()
	require.NoError(t, err)

	s := newSession(t, server.URL+"/portal")
	_, err = s.Get(ctx, "/set")
	require.NoError(t, err)
	require.NoError(t, s.Restore(blob))

	res, err := s.Get(ctx, "/echo")
	require.NoError(t, err)
	require.Equal(t, "none", string(res.Body))
}

func TestRestoreRejectsInvalidDumps(t *testing.T) {
	server := newPortal(t)
	s := newSession(t, server.URL+"/portal")

	otherPortal, err := json.Marshal(dump{
		Version: dumpVersion,
		BaseUrl: "https://elsewhere.example.com",
	})
	require.NoError(t, err)
	wrongVersion, err := json.Marshal(dump{
		Version: 99,
		BaseUrl: server.URL + "/portal",
	})
	require.NoError(t, err)

	for name, blob := range map[string][]byte{
		"garbage":       []byte("not json"),
		"other portal":  otherPortal,
		"wrong version": wrongVersion,
	} {
		err := s.Restore(blob)
		require.ErrorIs(t, err, ErrInvalidDump, name)
	}
}

func TestRateLimitedSessionStillServes(t *testing.T) {
	server := newPortal(t)
	s, err := New(Options{
		BaseUrl:   server.URL + "/portal",
		RateLimit: 50,
		Telemetry: telemetry.NewRecorder(),
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := s.Get(context.Background(), "/echo")
		require.NoError(t, err)
	}
}
