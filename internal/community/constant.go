package community

import "time"

const (
	DefaultCommunityURL = "https://steamcommunity.com"
	DefaultAPIURL       = "https://api.steampowered.com"

	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
	mobileUserAgent  = "Mozilla/5.0 (Linux; U; Android 4.1.1; en-us; Google Nexus 4 - 4.1.1 - API 16 - 768x1280 Build/JRO03S) AppleWebKit/534.30 (KHTML, like Gecko) Version/4.0 Mobile Safari/534.30"

	defaultTimeout = 50 * time.Second
	maxRedirects   = 10
)

var defaultExtraCookieHosts = []string{
	"store.steampowered.com",
	"help.steampowered.com",
}

const (
	cookieSessionID        = "sessionid"
	cookieSteamLogin       = "steamLogin"
	cookieSteamLoginSecure = "steamLoginSecure"
	cookieMachineAuth      = "steamMachineAuth"
	cookieLanguage         = "Steam_Language"
	cookieMobileClient     = "mobileClient"
	cookieMobileVersion    = "mobileClientVersion"

	sessionTokenLength = 12
)

const (
	oauthClientID = "DE45CD61"
	oauthScope    = "read_profile write_profile read_client write_client"
)

// markers the classifier looks for
const (
	familyViewNotice     = "Enter your PIN below to exit Family View."
	anonymousPrincipal   = "g_steamID = false;"
	signInTitle          = "Sign In"
	sorryHeading         = "Sorry!"
	unknownSiteError     = "Unknown error occurred"
	familyViewRestricted = "Family View Restricted"
)

var loginRedirectMarkers = []string{"/login", "steammobile:"}

const (
	report_client_execute   = "client.execute"
	report_client_login     = "client.login"
	report_client_logged_in = "client.logged-in"
	report_session_cookies  = "session.set-cookies"
)
