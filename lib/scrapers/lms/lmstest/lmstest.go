// Package lmstest runs an in-process portal that follows the same markup
// contract as the real one, so the scrapers can be tested end to end.
package lmstest

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
)

//go:embed testdata/*.html
var fixtures embed.FS

// Fixture returns the contents of testdata/<name>, it panics on a missing
// fixture since that is always a mistake in the test itself.
func Fixture(name string) string {
	contents, err := fixtures.ReadFile("testdata/" + name)
	if err != nil {
		panic(err)
	}
	return string(contents)
}

const CookieName = "MoodleSession"

type Account struct {
	Id       int64
	Username string
	Password string
	Name     string
}

var (
	Student = Account{
		Id:       3,
		Username: "2024-12345",
		Password: "correct horse battery staple",
		Name:     "Jane Student",
	}
	MinimalUserId int64 = 4
	HiddenUserId  int64 = 5
	BrokenUserId  int64 = 6
	NamelessId    int64 = 7

	// GroupedActivityId lists every login activity entry in a single <dl>.
	GroupedActivityId int64 = 8
)

type portalSession struct {
	userId     int64
	sesskey    string
	logintoken string
}

// Server is a fake portal. NewServer registers Student along with a handful
// of profiles covering the optional sections.
type Server struct {
	*httptest.Server

	mutex    sync.Mutex
	counter  int
	accounts map[string]Account
	profiles map[int64]string
	sessions map[string]*portalSession

	loginPosts int
	logouts    int

	omitLoginToken bool
	loginInfo      *string
}

func NewServer() *Server {
	s := &Server{
		accounts: map[string]Account{},
		profiles: map[int64]string{},
		sessions: map[string]*portalSession{},
	}
	s.AddAccount(Student, Fixture("profile_full.html"))
	s.SetProfile(MinimalUserId, Fixture("profile_minimal.html"))
	s.SetProfile(HiddenUserId, Fixture("profile_hidden.html"))
	s.SetProfile(BrokenUserId, Fixture("profile_broken_activity.html"))
	s.SetProfile(NamelessId, Fixture("profile_no_name.html"))
	s.SetProfile(GroupedActivityId, Fixture("profile_grouped_activity.html"))

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleDashboard)
	mux.HandleFunc("/login/index.php", s.handleLogin)
	mux.HandleFunc("/login/logout.php", s.handleLogout)
	mux.HandleFunc("/user/profile.php", s.handleProfile)
	s.Server = httptest.NewServer(mux)
	return s
}

func (s *Server) AddAccount(account Account, profile string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.accounts[account.Username] = account
	s.profiles[account.Id] = profile
}

func (s *Server) SetProfile(id int64, profile string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.profiles[id] = profile
}

// LoginPosts is the number of credential submissions the portal received.
func (s *Server) LoginPosts() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.loginPosts
}

// Logouts is the number of logout requests carrying a valid session key.
func (s *Server) Logouts() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.logouts
}

// RotateSesskeys gives every logged in session a new session key, which makes
// the keys clients already hold stale.
func (s *Server) RotateSesskeys() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for _, sess := range s.sessions {
		if sess.userId != 0 {
			sess.sesskey = s.nextId("sesskey")
		}
	}
}

// ExpireSessions forgets every session, like the portal does when a session
// times out on its side.
func (s *Server) ExpireSessions() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.sessions = map[string]*portalSession{}
}

// OmitLoginToken drops the hidden login token field from the login form.
func (s *Server) OmitLoginToken() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.omitLoginToken = true
}

// SetLoginInfo replaces the login status line with `text`, an empty string
// removes the element altogether.
func (s *Server) SetLoginInfo(text string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.loginInfo = &text
}

func (s *Server) nextId(prefix string) string {
	s.counter++
	return fmt.Sprintf("%s-%d", prefix, s.counter)
}

// session returns the session of the request, starting an anonymous one if
// the cookie is missing or unknown. The caller must hold the mutex.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *portalSession {
	cookie, err := r.Cookie(CookieName)
	if err == nil {
		if sess, ok := s.sessions[cookie.Value]; ok {
			return sess
		}
	}
	return s.startSession(w, 0)
}

func (s *Server) startSession(w http.ResponseWriter, userId int64) *portalSession {
	id := s.nextId("session")
	sess := &portalSession{userId: userId}
	if userId != 0 {
		sess.sesskey = s.nextId("sesskey")
	}
	s.sessions[id] = sess
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
	})
	return sess
}

func (s *Server) accountById(id int64) (Account, bool) {
	for _, a := range s.accounts {
		if a.Id == id {
			return a, true
		}
	}
	return Account{}, false
}

type pageData struct {
	LoggedIn   bool
	User       Account
	Sesskey    string
	LoginToken string

	OverrideLoginInfo bool
	LoginInfo         string
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html dir="ltr" lang="en" xml:lang="en">
<head><title>SNU eTL</title></head>
<body>
<nav class="navbar">
{{- if .LoggedIn }}
    <div class="usermenu">
        <div class="dropdown-menu dropdown-menu-right">
            <a class="dropdown-item" href="/user/profile.php?id={{ .User.Id }}">Profile</a>
            <a class="dropdown-item" href="/grade/report/overview/index.php">Grades</a>
            <a class="dropdown-item" href="/user/preferences.php">Preferences</a>
            <a class="dropdown-item" href="/login/logout.php?sesskey={{ .Sesskey }}">Log out</a>
        </div>
    </div>
{{- else }}
    <div class="usermenu"><span class="login">You are not logged in. (<a href="/login/index.php">Log in</a>)</span></div>
{{- end }}
</nav>
<div id="page">
{{- if .LoginToken }}
    <form class="login-form" action="/login/index.php" method="post" id="login">
        <input id="anchor" type="hidden" name="anchor" value="">
        <input type="hidden" name="logintoken" value="{{ .LoginToken }}">
        <input type="text" name="username" id="username" value="">
        <input type="password" name="password" id="password" value="">
        <button type="submit" class="btn btn-primary" id="loginbtn">Log in</button>
    </form>
{{- end }}
</div>
<footer id="page-footer">
{{- if .OverrideLoginInfo }}
    {{- if .LoginInfo }}
    <div class="logininfo">{{ .LoginInfo }}</div>
    {{- end }}
{{- else if .LoggedIn }}
    <div class="logininfo">You are logged in as <a href="/user/profile.php?id={{ .User.Id }}" title="View profile">{{ .User.Name }}</a> (<a href="/login/logout.php?sesskey={{ .Sesskey }}">Log out</a>)</div>
{{- else }}
    <div class="logininfo">You are not logged in. (<a href="/login/index.php">Log in</a>)</div>
{{- end }}
</footer>
</body>
</html>
`))

func (s *Server) render(w http.ResponseWriter, sess *portalSession, withForm bool) {
	data := pageData{Sesskey: sess.sesskey}
	if s.loginInfo != nil {
		data.OverrideLoginInfo = true
		data.LoginInfo = *s.loginInfo
	}
	if account, ok := s.accountById(sess.userId); ok {
		data.LoggedIn = true
		data.User = account
	}
	if withForm && !s.omitLoginToken {
		sess.logintoken = s.nextId("logintoken")
		data.LoginToken = sess.logintoken
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := pageTemplate.Execute(w, data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.render(w, s.session(w, r), false)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	sess := s.session(w, r)
	if r.Method != http.MethodPost {
		s.render(w, sess, true)
		return
	}

	s.loginPosts++
	err := r.ParseForm()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	token := r.PostForm.Get("logintoken")
	expected := sess.logintoken
	sess.logintoken = ""
	if token == "" || token != expected {
		http.Redirect(w, r, "/login/index.php", http.StatusSeeOther)
		return
	}

	account, ok := s.accounts[r.PostForm.Get("username")]
	if !ok || account.Password != r.PostForm.Get("password") {
		http.Redirect(w, r, "/login/index.php", http.StatusSeeOther)
		return
	}

	// the portal hands out a new session id on every successful login
	s.startSession(w, account.Id)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cookie, err := r.Cookie(CookieName)
	if err != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	sess, ok := s.sessions[cookie.Value]
	if !ok || sess.sesskey == "" || r.URL.Query().Get("sesskey") != sess.sesskey {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><body><div class="confirm">Do you really want to log out?</div></body></html>`))
		return
	}

	s.logouts++
	delete(s.sessions, cookie.Value)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	sess := s.session(w, r)
	if sess.userId == 0 {
		http.Redirect(w, r, "/login/index.php", http.StatusSeeOther)
		return
	}

	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		id = sess.userId
	}
	profile, ok := s.profiles[id]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(profile))
}
