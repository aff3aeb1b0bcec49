package community

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"steamcommunity/internal/steamid"
	"strconv"
	"strings"
	"sync"

	"github.com/mazen160/go-random"
)

// Cookie is one stored cookie as seen by the community origin.
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Secure bool
}

// Session is a point in time copy of the authenticated state.
type Session struct {
	SteamID   steamid.SteamID
	Cookies   []Cookie
	SessionID string
	// SteamGuard is "<steamid>||<token>" when the machine auth cookie is present.
	SteamGuard        string
	MobileAccessToken string
}

// CookieStrings renders the cookies as "name=value" strings accepted by
// Client.SetCookies.
func (s Session) CookieStrings() []string {
	out := make([]string, len(s.Cookies))
	for i, c := range s.Cookies {
		out[i] = c.Name + "=" + c.Value
	}
	return out
}

// sessionStore owns every cookie the client sends. It is installed as the
// transport's cookie jar so cookies set by responses land here as well.
type sessionStore struct {
	// mu serializes read-modify-write sequences on the jar and guards the
	// fields below.
	mu sync.Mutex

	jarMu sync.RWMutex
	jar   *cookiejar.Jar

	plain  *url.URL
	secure *url.URL
	extra  []*url.URL

	steamID           steamid.SteamID
	mobileAccessToken string
}

func newSessionStore(community *url.URL, extraHosts []string) (*sessionStore, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	s := &sessionStore{
		jar:    jar,
		plain:  &url.URL{Scheme: "http", Host: community.Host, Path: "/"},
		secure: &url.URL{Scheme: "https", Host: community.Host, Path: "/"},
	}
	for _, host := range extraHosts {
		s.extra = append(s.extra, &url.URL{Scheme: "https", Host: host, Path: "/"})
	}
	s.setCookie(cookieLanguage, "english", false)
	return s, nil
}

// SetCookies implements http.CookieJar.
func (s *sessionStore) SetCookies(u *url.URL, cookies []*http.Cookie) {
	s.jarMu.RLock()
	jar := s.jar
	s.jarMu.RUnlock()
	jar.SetCookies(u, cookies)
}

// Cookies implements http.CookieJar.
func (s *sessionStore) Cookies(u *url.URL) []*http.Cookie {
	s.jarMu.RLock()
	jar := s.jar
	s.jarMu.RUnlock()
	return jar.Cookies(u)
}

func isSecureCookie(name string) bool {
	return strings.HasPrefix(name, cookieMachineAuth) || strings.HasSuffix(name, "Secure")
}

// setCookie must be called with mu held or before the store is shared.
func (s *sessionStore) setCookie(name, value string, secure bool) {
	cookie := &http.Cookie{Name: name, Value: value, Path: "/", Secure: secure}
	origin := s.plain
	if secure {
		origin = s.secure
	}
	s.SetCookies(origin, []*http.Cookie{cookie})
	for _, u := range s.extra {
		s.SetCookies(u, []*http.Cookie{cookie})
	}
}

func (s *sessionStore) removeCookie(name string) {
	expired := &http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1}
	s.SetCookies(s.plain, []*http.Cookie{expired})
	s.SetCookies(s.secure, []*http.Cookie{expired})
	for _, u := range s.extra {
		s.SetCookies(u, []*http.Cookie{expired})
	}
}

func (s *sessionStore) lookup(name string) (string, bool) {
	for _, cookie := range s.Cookies(s.secure) {
		if cookie.Name == name {
			return cookie.Value, true
		}
	}
	return "", false
}

var leadingDigits = regexp.MustCompile(`^[0-9]+`)

// setCookies stores "name=value[; attributes]" strings. Attributes are ignored,
// the scope is derived from the name.
func (s *sessionStore) setCookies(cookies []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, raw := range cookies {
		pair, _, _ := strings.Cut(raw, ";")
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return fmt.Errorf("malformed cookie %q", raw)
		}

		if name == cookieSteamLogin || name == cookieSteamLoginSecure {
			digits := leadingDigits.FindString(value)
			if digits != "" {
				id, err := strconv.ParseUint(digits, 10, 64)
				if err == nil {
					s.steamID = steamid.SteamID(id)
				}
			}
		}

		s.setCookie(name, value, isSecureCookie(name))
	}

	s.setCookie(cookieLanguage, "english", false)
	return nil
}

// sessionID returns the sessionid cookie, creating it when it is missing.
func (s *sessionStore) sessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if value, ok := s.lookup(cookieSessionID); ok && value != "" {
		return value
	}
	value := newSessionToken()
	s.setCookie(cookieSessionID, value, false)
	return value
}

// resetSessionID replaces the sessionid cookie unconditionally.
func (s *sessionStore) resetSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	value := newSessionToken()
	s.setCookie(cookieSessionID, value, false)
	return value
}

// newSessionToken returns a decimal CSRF nonce. It does not need to be
// unpredictable, and the insecure generator cannot fail.
func newSessionToken() string {
	token, _ := random.Random(sessionTokenLength, "0123456789", false)
	return token
}

func (s *sessionStore) cookieStrings() []string {
	out := []string{}
	for _, cookie := range s.Cookies(s.secure) {
		out = append(out, cookie.Name+"="+cookie.Value)
	}
	return out
}

func (s *sessionStore) getSteamID() steamid.SteamID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.steamID
}

func (s *sessionStore) setSteamID(id steamid.SteamID) {
	s.mu.Lock()
	s.steamID = id
	s.mu.Unlock()
}

func (s *sessionStore) setMobileAccessToken(token string) {
	s.mu.Lock()
	s.mobileAccessToken = token
	s.mu.Unlock()
}

// steamGuard renders the machine auth cookie of the current principal as
// "<steamid>||<token>".
func (s *sessionStore) steamGuard() string {
	s.mu.Lock()
	id := s.steamID
	s.mu.Unlock()
	if id == 0 {
		return ""
	}

	value, ok := s.lookup(cookieMachineAuth + id.String())
	if !ok {
		return ""
	}
	if unescaped, err := url.QueryUnescape(value); err == nil {
		value = unescaped
	}
	return id.String() + "||" + value
}

func (s *sessionStore) snapshot() Session {
	sessionID, _ := s.lookup(cookieSessionID)

	s.mu.Lock()
	session := Session{
		SteamID:           s.steamID,
		SessionID:         sessionID,
		MobileAccessToken: s.mobileAccessToken,
	}
	s.mu.Unlock()

	for _, cookie := range s.Cookies(s.secure) {
		session.Cookies = append(session.Cookies, Cookie{
			Name:   cookie.Name,
			Value:  cookie.Value,
			Domain: s.secure.Hostname(),
			Secure: isSecureCookie(cookie.Name),
		})
	}
	session.SteamGuard = s.steamGuard()
	return session
}

// reset drops every cookie and the principal.
func (s *sessionStore) reset() error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.jarMu.Lock()
	s.jar = jar
	s.jarMu.Unlock()

	s.steamID = 0
	s.mobileAccessToken = ""
	s.setCookie(cookieLanguage, "english", false)
	return nil
}
