package community

import (
	"context"
	"net/http"
	"regexp"
	"steamcommunity/internal/steamid"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func cookieNames(cookies []string) []string {
	names := []string{}
	for _, cookie := range cookies {
		name, _, _ := strings.Cut(cookie, "=")
		names = append(names, name)
	}
	return names
}

func TestSessionIDIdempotent(t *testing.T) {
	client, _, _ := newTestClient(t, http.NotFoundHandler(), Options{})

	first := client.SessionID()
	second := client.SessionID()
	require.Equal(t, first, second)
	require.Regexp(t, regexp.MustCompile(`^[0-9]{12}$`), first)
	require.Contains(t, client.Cookies(), "sessionid="+first)

	err := client.SetCookies([]string{"sessionid=12345"})
	require.NoError(t, err)
	require.Equal(t, "12345", client.SessionID())
	require.Equal(t, "12345", client.SessionID())
}

func TestLogoutRegeneratesSessionID(t *testing.T) {
	client, _, _ := newTestClient(t, http.NotFoundHandler(), Options{})

	tokens := map[string]struct{}{}
	for range 5 {
		token := client.SessionID()
		require.Len(t, token, sessionTokenLength)
		tokens[token] = struct{}{}
		require.NoError(t, client.Logout())
	}
	require.Greater(t, len(tokens), 1)
}

func TestSetCookies(t *testing.T) {
	client, _, _ := newTestClient(t, http.NotFoundHandler(), Options{})

	err := client.SetCookies([]string{
		"steamLoginSecure=76561197960287930%7C%7Ctoken; path=/; secure; HttpOnly",
		"steamMachineAuth76561197960287930=MACHINE",
		"browserid=42",
	})
	require.NoError(t, err)
	require.Equal(t, steamid.SteamID(76561197960287930), client.SteamID())

	secure := map[string]bool{}
	for _, cookie := range client.Session().Cookies {
		secure[cookie.Name] = cookie.Secure
	}
	diff := cmp.Diff(map[string]bool{
		"steamLoginSecure":                  true,
		"steamMachineAuth76561197960287930": true,
		"browserid":                         false,
		"Steam_Language":                    false,
	}, secure)
	if diff != "" {
		t.Fatal(diff)
	}
	require.Equal(t, "76561197960287930||MACHINE", client.Session().SteamGuard)

	err = client.SetCookies([]string{"novalue"})
	require.Error(t, err)
}

func TestCookiesSentOnPlainOrigin(t *testing.T) {
	seen := newCaptured()
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, cookie := range r.Cookies() {
			seen.add("cookie", cookie.Name+"="+cookie.Value)
		}
	}), Options{})

	require.NoError(t, client.SetCookies([]string{"browserid=42", "steamLoginSecure=1%7C%7Cx"}))
	sessionID := client.SessionID()

	_, err := client.Get(context.Background(), RequestDescriptor{URL: "/"})
	require.NoError(t, err)

	cookies := seen.get("cookie")
	require.Contains(t, cookies, "browserid=42")
	require.Contains(t, cookies, "sessionid="+sessionID)
	require.Contains(t, cookies, "Steam_Language=english")
	// secure cookies never travel over plain http
	require.NotContains(t, cookieNames(cookies), "steamLoginSecure")
}

func TestLogout(t *testing.T) {
	client, _, _ := newTestClient(t, http.NotFoundHandler(), Options{})

	require.NoError(t, client.SetCookies([]string{"steamLoginSecure=76561197960287930%7C%7Ctoken"}))
	client.SessionID()
	require.NoError(t, client.Logout())

	require.Equal(t, steamid.SteamID(0), client.SteamID())
	require.Equal(t, []string{"Steam_Language"}, cookieNames(client.Cookies()))
}

func TestDeviceID(t *testing.T) {
	require.Equal(
		t,
		"android:6d3f10d9-6369-a1ae-97a0-94df28b95192",
		DeviceID(steamid.SteamID(76561197960287930)),
	)
}

func TestSessionRestore(t *testing.T) {
	first, _, _ := newTestClient(t, http.NotFoundHandler(), Options{})
	require.NoError(t, first.SetCookies([]string{
		"steamLoginSecure=76561197960287930%7C%7Ctoken",
		"steamMachineAuth76561197960287930=ABCDEF",
	}))
	sessionID := first.SessionID()
	saved := first.Session()
	require.Equal(t, "76561197960287930||ABCDEF", saved.SteamGuard)

	second, _, _ := newTestClient(t, http.NotFoundHandler(), Options{})
	require.NoError(t, second.SetCookies(saved.CookieStrings()))
	require.Equal(t, first.SteamID(), second.SteamID())
	require.Equal(t, sessionID, second.SessionID())
	require.Equal(t, saved.SteamGuard, second.Session().SteamGuard)
}
