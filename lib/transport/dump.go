package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"
)

const dumpVersion = 1

var ErrInvalidDump = errors.New("invalid session dump")

type dumpCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type dump struct {
	Version   int          `json:"version"`
	Id        string       `json:"id"`
	BaseUrl   string       `json:"base_url"`
	Cookies   []dumpCookie `json:"cookies"`
	CreatedAt time.Time    `json:"created_at"`
}

// Dump serializes the cookies the portal has set on this session. The blob
// holds live credentials and should be stored accordingly.
func (s *Session) Dump() ([]byte, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	cookies := s.jar.Cookies(s.cookieUrl())
	out := dump{
		Version:   dumpVersion,
		Id:        s.id,
		BaseUrl:   s.baseUrl.String(),
		Cookies:   make([]dumpCookie, 0, len(cookies)),
		CreatedAt: time.Now().UTC(),
	}
	for _, c := range cookies {
		out.Cookies = append(out.Cookies, dumpCookie{Name: c.Name, Value: c.Value})
	}
	return json.Marshal(out)
}

// Restore replaces every cookie of the session with the ones in `blob`. A
// blob from another portal or an unknown version is rejected and leaves the
// session untouched.
func (s *Session) Restore(blob []byte) error {
	var in dump
	err := json.Unmarshal(blob, &in)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDump, err.Error())
	}
	if in.Version != dumpVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidDump, in.Version)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if in.BaseUrl != s.baseUrl.String() {
		return fmt.Errorf(
			"%w: dump belongs to '%s' not '%s'",
			ErrInvalidDump, in.BaseUrl, s.baseUrl.String(),
		)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	path := s.baseUrl.Path
	if path == "" {
		path = "/"
	}
	cookies := make([]*http.Cookie, 0, len(in.Cookies))
	for _, c := range in.Cookies {
		if c.Name == "" {
			return fmt.Errorf("%w: cookie without a name", ErrInvalidDump)
		}
		cookies = append(cookies, &http.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Path:   path,
			Secure: s.baseUrl.Scheme == "https",
		})
	}
	jar.SetCookies(s.cookieUrl(), cookies)

	s.jar = jar
	s.http.SetCookieJar(jar)
	if in.Id != "" {
		s.id = in.Id
	}
	return nil
}

// cookieUrl is the url whose cookies make up the session, the trailing slash
// makes cookies scoped to the install path match.
func (s *Session) cookieUrl() *url.URL {
	u := *s.baseUrl
	u.Path += "/"
	return &u
}
