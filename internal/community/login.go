package community

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"steamcommunity/internal/steamid"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/codes"
)

type LoginDetails struct {
	AccountName string
	Password    string
	// AuthCode is the code mailed after a KindNeedsEmailGuard failure.
	AuthCode string
	// TwoFactorCode is the mobile authenticator code.
	TwoFactorCode string
	// Captcha answers the challenge of the last KindNeedsCaptcha failure.
	Captcha string
	// SteamGuard is a "<steamid>||<token>" value from an earlier LoginResult,
	// it lets a known machine skip the email code.
	SteamGuard string
	// DisableMobile logs in as the desktop site, which yields no oauth token.
	DisableMobile bool
}

type LoginResult struct {
	SteamID    steamid.SteamID
	SessionID  string
	Cookies    []string
	SteamGuard string
	OAuthToken string
}

type rsaKeyResponse struct {
	Success      bool   `json:"success"`
	PublickeyMod string `json:"publickey_mod"`
	PublickeyExp string `json:"publickey_exp"`
	Timestamp    string `json:"timestamp"`
	TokenGid     string `json:"token_gid"`
}

// looseString decodes a JSON string or number, the login endpoint uses both
// for the same fields.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var str string
		err := json.Unmarshal(data, &str)
		if err != nil {
			return err
		}
		*s = looseString(str)
		return nil
	}
	if string(data) == "null" {
		*s = ""
		return nil
	}
	*s = looseString(data)
	return nil
}

type doLoginResponse struct {
	Success           bool        `json:"success"`
	Message           string      `json:"message"`
	LoginComplete     bool        `json:"login_complete"`
	RequiresTwoFactor bool        `json:"requires_twofactor"`
	EmailAuthNeeded   bool        `json:"emailauth_needed"`
	EmailDomain       string      `json:"emaildomain"`
	EmailSteamID      looseString `json:"emailsteamid"`
	CaptchaNeeded     bool        `json:"captcha_needed"`
	CaptchaGID        looseString `json:"captcha_gid"`
	// OAuth is itself a JSON document encoded as a string.
	OAuth              string `json:"oauth"`
	TransferParameters struct {
		SteamID string `json:"steamid"`
	} `json:"transfer_parameters"`
}

type oauthPayload struct {
	SteamID    string `json:"steamid"`
	OAuthToken string `json:"oauth_token"`
	WGToken    string `json:"wgtoken"`
}

func mobileHeaders(communityURL string) map[string]string {
	referer := url.Values{
		"oauth_client_id": {oauthClientID},
		"oauth_scope":     {oauthScope},
	}
	return map[string]string{
		"x-requested-with": "com.valvesoftware.android.steam.community",
		"referer":          communityURL + "/mobilelogin?" + referer.Encode(),
		"user-agent":       mobileUserAgent,
		"accept":           "text/javascript, text/html, application/xml, text/xml, */*",
	}
}

// Login exchanges credentials for a session. Guard and captcha challenges come
// back as *Error with the matching Kind, the caller collects the extra input and
// calls Login again. Concurrent calls run one at a time.
func (c *Client) Login(ctx context.Context, details LoginDetails) (LoginResult, error) {
	c.loginMu.Lock()
	defer c.loginMu.Unlock()

	ctx, span := tracer.Start(ctx, "client:Login")
	defer span.End()

	result, err := c.login(ctx, details)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.tel.ReportWarning(report_client_login, err, details.AccountName)
		return LoginResult{}, err
	}
	return result, nil
}

func (c *Client) login(ctx context.Context, details LoginDetails) (LoginResult, error) {
	if details.AccountName == "" || details.Password == "" {
		return LoginResult{}, ErrMissingCredentials
	}

	if details.SteamGuard != "" {
		id, token, ok := strings.Cut(details.SteamGuard, "||")
		if !ok || id == "" || token == "" {
			return LoginResult{}, ErrInvalidSteamGuard
		}
		err := c.session.setCookies([]string{cookieMachineAuth + id + "=" + url.QueryEscape(token)})
		if err != nil {
			return LoginResult{}, err
		}
	}

	headers := map[string]string{
		"x-requested-with": "XMLHttpRequest",
		"referer":          c.URL("login"),
		"origin":           c.communityURL.String(),
	}
	if !details.DisableMobile {
		headers = mobileHeaders(c.communityURL.String())

		c.session.mu.Lock()
		c.session.setCookie(cookieMobileVersion, "0 (2.1.3)", false)
		c.session.setCookie(cookieMobileClient, "android", false)
		c.session.mu.Unlock()
		defer c.removeMobileCookies()
	}

	c.debug("requesting rsa key for %s", details.AccountName)
	res, err := c.Post(ctx, RequestDescriptor{
		URL:     c.URL("login/getrsakey/"),
		Form:    url.Values{"username": {details.AccountName}},
		Headers: headers,
		JSON:    true,
		Source:  "login",
	})
	if err != nil {
		return LoginResult{}, err
	}
	var key rsaKeyResponse
	err = res.JSON(&key)
	if err != nil {
		return LoginResult{}, err
	}
	if key.PublickeyMod == "" || key.PublickeyExp == "" {
		return LoginResult{}, NewError(KindDomainError, "Invalid RSA key received")
	}

	encrypted, err := encryptPassword(key.PublickeyMod, key.PublickeyExp, details.Password)
	if err != nil {
		return LoginResult{}, fmt.Errorf("encrypt password: %w", err)
	}

	captchaGID := c.captchaGID
	if captchaGID == "" {
		captchaGID = "-1"
	}
	form := url.Values{
		"captcha_text":      {details.Captcha},
		"captchagid":        {captchaGID},
		"emailauth":         {details.AuthCode},
		"emailsteamid":      {""},
		"password":          {encrypted},
		"remember_login":    {"true"},
		"rsatimestamp":      {key.Timestamp},
		"twofactorcode":     {details.TwoFactorCode},
		"username":          {details.AccountName},
		"loginfriendlyname": {""},
		"donotcache":        {strconv.FormatInt(c.time.Now().UnixMilli(), 10)},
	}
	if !details.DisableMobile {
		form.Set("oauth_client_id", oauthClientID)
		form.Set("oauth_scope", oauthScope)
		form.Set("loginfriendlyname", "#login_emailauth_friendlyname_mobile")
	}

	c.debug("submitting login for %s", details.AccountName)
	res, err = c.Post(ctx, RequestDescriptor{
		URL:     c.URL("login/dologin/"),
		Form:    form,
		Headers: headers,
		JSON:    true,
		Source:  "login",
	})
	if !details.DisableMobile {
		c.removeMobileCookies()
	}
	if err != nil {
		return LoginResult{}, err
	}
	var body doLoginResponse
	err = res.JSON(&body)
	if err != nil {
		return LoginResult{}, err
	}

	switch {
	case !body.Success && body.EmailAuthNeeded:
		return LoginResult{}, &Error{
			Kind:    KindNeedsEmailGuard,
			Message: ErrNeedsEmailGuard.Message,
			Detail:  body.EmailDomain,
		}
	case !body.Success && body.RequiresTwoFactor:
		return LoginResult{}, &Error{Kind: KindNeedsMobileGuard, Message: ErrNeedsMobileGuard.Message}
	case !body.Success && body.CaptchaNeeded:
		c.captchaGID = string(body.CaptchaGID)
		return LoginResult{}, &Error{
			Kind:    KindNeedsCaptcha,
			Message: ErrNeedsCaptcha.Message,
			Detail:  string(body.CaptchaGID),
		}
	case !body.Success:
		message := body.Message
		if message == "" {
			message = "Unknown error"
		}
		return LoginResult{}, NewError(KindDomainError, message)
	case !details.DisableMobile && body.OAuth == "":
		return LoginResult{}, malformedPayload(fmt.Errorf("login response carries no oauth data"))
	}

	return c.completeLogin(details, body)
}

func (c *Client) completeLogin(details LoginDetails, body doLoginResponse) (LoginResult, error) {
	c.captchaGID = ""
	result := LoginResult{}

	if !details.DisableMobile {
		var oauth oauthPayload
		err := json.Unmarshal([]byte(body.OAuth), &oauth)
		if err != nil {
			return LoginResult{}, malformedPayload(fmt.Errorf("decode oauth: %w", err))
		}
		id, err := steamid.Parse(oauth.SteamID)
		if err != nil {
			return LoginResult{}, malformedPayload(err)
		}
		c.session.setSteamID(id)
		c.session.setMobileAccessToken(oauth.OAuthToken)
		result.OAuthToken = oauth.OAuthToken
	} else if body.TransferParameters.SteamID != "" {
		id, err := steamid.Parse(body.TransferParameters.SteamID)
		if err == nil {
			c.session.setSteamID(id)
		}
	}

	result.SessionID = c.session.resetSessionID()

	// rescopes what the server set and picks the principal out of the login
	// cookies when no other source had it
	err := c.session.setCookies(c.session.cookieStrings())
	if err != nil {
		return LoginResult{}, err
	}

	result.SteamID = c.session.getSteamID()
	if !result.SteamID.IsValid() {
		return LoginResult{}, malformedPayload(fmt.Errorf("could not determine the logged in steam id"))
	}
	result.Cookies = c.session.cookieStrings()
	result.SteamGuard = c.session.steamGuard()

	c.debug("logged in as %s", result.SteamID)
	return result, nil
}

func (c *Client) removeMobileCookies() {
	c.session.mu.Lock()
	defer c.session.mu.Unlock()
	c.session.removeCookie(cookieMobileVersion)
	c.session.removeCookie(cookieMobileClient)
}

// CaptchaURL is where the image for a KindNeedsCaptcha challenge lives.
func (c *Client) CaptchaURL(gid string) string {
	return c.URL("login/rendercaptcha/") + "?gid=" + url.QueryEscape(gid)
}
