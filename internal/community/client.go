package community

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"steamcommunity/internal/components/assert"
	"steamcommunity/internal/components/chrono"
	"steamcommunity/internal/components/telemetry"
	"steamcommunity/internal/steamid"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("steamcommunity.internal.community")
var meter = otel.Meter("steamcommunity.internal.community")

var requestCounter, _ = meter.Int64Counter(
	"community.requests",
	metric.WithDescription("Requests sent to the community site by source and outcome."),
)

// CheckFlags disable individual classification passes for one request.
type CheckFlags struct {
	SkipHTTP        bool
	SkipSiteError   bool
	SkipDomainError bool
	SkipJSON        bool
}

// RequestDescriptor describes one outbound request. It is passed by value and
// never modified once dispatched.
type RequestDescriptor struct {
	Method string
	// URL is either absolute or relative to the community base url.
	URL     string
	Query   url.Values
	Form    url.Values
	Headers map[string]string
	// JSON marks the body as expected JSON, which skips the HTML checks.
	JSON   bool
	Checks CheckFlags
	// Source names the caller for observability.
	Source string
	// Timeout overrides the client default when positive.
	Timeout time.Duration
}

// Response is the raw result of a request that reached the server.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// URL is the url of the last request made, after redirects.
	URL string
}

// JSON decodes the body into out, a decoding failure is a malformed payload.
func (r *Response) JSON(out any) error {
	err := json.Unmarshal(r.Body, out)
	if err != nil {
		return malformedPayload(err)
	}
	return nil
}

// Interceptor runs before every dispatch. It may block, for instance to wait
// for a rate limit, or return an error to abort the request.
type Interceptor func(ctx context.Context, d RequestDescriptor) error

type Options struct {
	// CommunityURL defaults to DefaultCommunityURL.
	CommunityURL string
	// APIURL defaults to DefaultAPIURL.
	APIURL string
	// ExtraCookieHosts also receive every cookie the store sets, nil means the
	// store and help sites.
	ExtraCookieHosts []string
	UserAgent        string
	// Timeout is the per request default, 50 seconds when zero.
	Timeout time.Duration
	// RequestsPerSecond enables a token bucket limiter when positive.
	RequestsPerSecond float64
	Interceptor       Interceptor
	CloudflareBypass  bool
	Time              chrono.API
}

// Client is a cookie authenticated session against the community site. Every
// request made through it goes through Execute.
type Client struct {
	Events Events

	http         *resty.Client
	session      *sessionStore
	communityURL *url.URL
	apiURL       string
	timeout      time.Duration
	interceptor  Interceptor
	limiter      *rate.Limiter
	time         chrono.API
	tel          telemetry.API

	requestID atomic.Uint64

	// loginMu serializes logins and guards captchaGID.
	loginMu    sync.Mutex
	captchaGID string
}

func NewClient(opts Options, tel telemetry.API) (*Client, error) {
	assert.NotNil(tel)
	tel = telemetry.NewScopedAPI("community", tel)

	if opts.CommunityURL == "" {
		opts.CommunityURL = DefaultCommunityURL
	}
	if opts.APIURL == "" {
		opts.APIURL = DefaultAPIURL
	}
	if opts.ExtraCookieHosts == nil {
		opts.ExtraCookieHosts = defaultExtraCookieHosts
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Time == nil {
		opts.Time = chrono.NewStandardImpl()
	}

	communityURL, err := url.Parse(strings.TrimRight(opts.CommunityURL, "/"))
	if err != nil {
		return nil, err
	}
	session, err := newSessionStore(communityURL, opts.ExtraCookieHosts)
	if err != nil {
		return nil, err
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(communityURL.String())
	httpClient.SetCookieJar(session)
	if opts.CloudflareBypass {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}
	httpClient.SetHeader("user-agent", opts.UserAgent)
	httpClient.SetRedirectPolicy(resty.RedirectPolicyFunc(stopAtLoginRedirect))
	httpClient.SetTimeout(opts.Timeout)

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	telemetry.InstrumentResty(httpClient, tel)

	return &Client{
		http:         httpClient,
		session:      session,
		communityURL: communityURL,
		apiURL:       strings.TrimRight(opts.APIURL, "/"),
		timeout:      opts.Timeout,
		interceptor:  opts.Interceptor,
		limiter:      limiter,
		time:         opts.Time,
		tel:          tel,
	}, nil
}

func isLoginRedirect(location string) bool {
	for _, marker := range loginRedirectMarkers {
		if strings.Contains(location, marker) {
			return true
		}
	}
	return false
}

// stopAtLoginRedirect hands redirects to a login page back as the response so
// they can be classified, everything else is followed.
func stopAtLoginRedirect(req *http.Request, via []*http.Request) error {
	if isLoginRedirect(req.URL.String()) {
		return http.ErrUseLastResponse
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return http.ErrUseLastResponse
	}
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	return nil
}

// URL resolves a path against the community base url.
func (c *Client) URL(path string) string {
	return c.communityURL.String() + "/" + strings.TrimLeft(path, "/")
}

// APIURL resolves a path against the web API base url.
func (c *Client) APIURL(path string) string {
	return c.apiURL + "/" + strings.TrimLeft(path, "/")
}

func (c *Client) debug(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.tel.ReportDebug(msg)
	c.Events.Debug.Publish(DebugEvent{Message: msg})
}

func (c *Client) Get(ctx context.Context, d RequestDescriptor) (*Response, error) {
	d.Method = http.MethodGet
	return c.Execute(ctx, d)
}

func (c *Client) Post(ctx context.Context, d RequestDescriptor) (*Response, error) {
	d.Method = http.MethodPost
	return c.Execute(ctx, d)
}

// Execute dispatches d and classifies the result. The returned error, if any,
// is a *Error. The response is returned whenever the server answered, even
// when the answer was classified as an error.
func (c *Client) Execute(ctx context.Context, d RequestDescriptor) (*Response, error) {
	if d.Method == "" {
		d.Method = http.MethodGet
	}
	id := c.requestID.Add(1)

	ctx, span := tracer.Start(ctx, "client:Execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("method", d.Method),
		attribute.String("url", d.URL),
		attribute.String("source", d.Source),
	)

	res, err := c.dispatch(ctx, d)
	classified, flags := classify(d, res, err)

	outcome := "ok"
	if classified != nil {
		outcome = classified.Kind.String()
	}
	requestCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", d.Source),
		attribute.String("outcome", outcome),
	))

	if classified != nil && classified.Kind == KindNotAuthenticated {
		c.Events.SessionExpired.Publish(SessionExpiredEvent{
			Err:    classified,
			Source: d.Source,
			URL:    d.URL,
		})
	}

	event := PostRequestEvent{
		ID:         id,
		Source:     d.Source,
		Descriptor: d,
		Response:   res,
		Flags:      flags,
	}
	if res != nil {
		event.Body = res.Body
	}
	if classified != nil {
		event.Err = classified
	}
	c.Events.PostRequest.Publish(event)

	if classified != nil {
		span.RecordError(classified)
		span.SetStatus(codes.Error, classified.Error())
		if classified.Kind == KindTransport {
			c.tel.ReportWarning(report_client_execute, classified, d.Method, d.URL)
		} else {
			c.tel.ReportDebug(report_client_execute, id, d.Method, d.URL, classified.Error())
		}
		return res, classified
	}
	return res, nil
}

// dispatch waits for the interceptor and the rate limiter first, the request
// timeout only covers the exchange itself.
func (c *Client) dispatch(ctx context.Context, d RequestDescriptor) (*Response, error) {
	if c.interceptor != nil {
		err := c.interceptor(ctx, d)
		if err != nil {
			return nil, fmt.Errorf("interceptor: %w", err)
		}
	}
	if c.limiter != nil {
		err := c.limiter.Wait(ctx)
		if err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := c.http.R().SetContext(ctx)
	if d.JSON {
		req.SetHeader("accept", "application/json, text/plain, */*")
	}
	for key, value := range d.Headers {
		req.SetHeader(key, value)
	}
	if len(d.Query) > 0 {
		req.SetQueryParamsFromValues(d.Query)
	}
	if len(d.Form) > 0 {
		req.SetFormDataFromValues(d.Form)
	}

	res, err := req.Execute(d.Method, d.URL)
	if err != nil {
		return nil, err
	}

	finalURL := res.Request.URL
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		finalURL = res.RawResponse.Request.URL.String()
	}
	return &Response{
		StatusCode: res.StatusCode(),
		Header:     res.Header(),
		Body:       res.Body(),
		URL:        finalURL,
	}, nil
}

// SetCookies stores "name=value" cookie strings in the session.
func (c *Client) SetCookies(cookies []string) error {
	err := c.session.setCookies(cookies)
	if err != nil {
		c.tel.ReportWarning(report_session_cookies, err)
	}
	return err
}

// SessionID returns the session's CSRF token, generating one when missing.
// Repeated calls return the same value until the cookie changes.
func (c *Client) SessionID() string {
	return c.session.sessionID()
}

// Cookies returns the session cookies visible to the community site as
// "name=value" strings.
func (c *Client) Cookies() []string {
	return c.session.cookieStrings()
}

// SteamID is the authenticated principal, zero when logged out.
func (c *Client) SteamID() steamid.SteamID {
	return c.session.getSteamID()
}

// SetSteamID records the principal for sessions restored from storage.
func (c *Client) SetSteamID(id steamid.SteamID) {
	c.session.setSteamID(id)
}

func (c *Client) Session() Session {
	return c.session.snapshot()
}

// Logout forgets the local session. Nothing is sent to the server.
func (c *Client) Logout() error {
	c.loginMu.Lock()
	c.captchaGID = ""
	c.loginMu.Unlock()
	return c.session.reset()
}

// LoggedIn asks the site whether the current cookies are still authenticated.
// familyView is true when the account is locked behind Family View.
func (c *Client) LoggedIn(ctx context.Context) (loggedIn bool, familyView bool, err error) {
	res, err := c.Get(ctx, RequestDescriptor{
		URL:    c.URL("my"),
		Source: "logged-in",
		Checks: CheckFlags{
			SkipHTTP:        true,
			SkipSiteError:   true,
			SkipDomainError: true,
		},
	})
	if err != nil {
		c.tel.ReportWarning(report_client_logged_in, err)
		return false, false, err
	}

	switch {
	case res.StatusCode == http.StatusForbidden:
		return true, true, nil
	case res.StatusCode >= 300 && res.StatusCode < 400:
		return !isLoginRedirect(res.Header.Get("Location")), false, nil
	case res.StatusCode >= 400:
		return false, false, &Error{Kind: KindHTTPStatus, StatusCode: res.StatusCode}
	}
	return true, false, nil
}

// IsKind reports whether err was classified as kind.
func IsKind(err error, kind Kind) bool {
	return errors.Is(err, &Error{Kind: kind})
}
