package confirmation

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"steamcommunity/internal/community"
	"steamcommunity/internal/components/assert"
	"steamcommunity/internal/components/chrono"
	"steamcommunity/internal/components/telemetry"
	"steamcommunity/internal/steamid"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("steamcommunity.internal.confirmation")

// Community is the part of community.Client the manager needs.
type Community interface {
	Execute(ctx context.Context, d community.RequestDescriptor) (*community.Response, error)
	SteamID() steamid.SteamID
	URL(path string) string
	APIURL(path string) string
}

type Options struct {
	// KeyReuseWindow is how long conf and details keys from a KeyProvider or
	// the KeyNeeded event are reused.
	KeyReuseWindow time.Duration
	// TimeOffsetLifetime is how long the server time offset is cached.
	TimeOffsetLifetime time.Duration
	// InitialDelay is the wait before the first poll of a started checker.
	InitialDelay time.Duration
	// Cooldown is the wait between two processed confirmations.
	Cooldown time.Duration
	// PollTimeout bounds one poll or one processed confirmation.
	PollTimeout time.Duration
	// HandledWindow is how long the checker ignores a confirmation it
	// accepted when a later listing still shows it.
	HandledWindow time.Duration
	KeyProvider   KeyProvider
	// IdentitySecret lets GetKey generate every key locally when no checker
	// secret is set.
	IdentitySecret string
	// LastKeyTime is the latest allow or cancel timestamp used by an earlier
	// process. New allow and cancel keys are always generated after it.
	LastKeyTime int64
	// DeviceID overrides the device id derived from the logged in account.
	DeviceID string
	Time     chrono.API
}

type cachedKey struct {
	key     Key
	fetched time.Time
}

// Manager lists and responds to mobile confirmations for the account logged
// in on its Community.
type Manager struct {
	Events Events

	community Community
	opts      Options
	time      chrono.API
	tel       telemetry.API

	offsetMu      sync.Mutex
	offset        int64
	offsetFetched time.Time
	offsetValid   bool

	used    *usedTimes
	keys    *expirable.LRU[Tag, cachedKey]
	handled *expirable.LRU[string, struct{}]

	checker checker
}

func NewManager(client Community, opts Options, tel telemetry.API) *Manager {
	assert.NotNil(client)
	assert.NotNil(tel)

	if opts.KeyReuseWindow <= 0 {
		opts.KeyReuseWindow = DefaultKeyReuseWindow
	}
	if opts.TimeOffsetLifetime <= 0 {
		opts.TimeOffsetLifetime = DefaultTimeOffsetLifetime
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = DefaultInitialDelay
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = DefaultPollTimeout
	}
	if opts.HandledWindow <= 0 {
		opts.HandledWindow = DefaultHandledWindow
	}
	if opts.Time == nil {
		opts.Time = chrono.NewStandardImpl()
	}

	return &Manager{
		community: client,
		opts:      opts,
		time:      opts.Time,
		tel:       telemetry.NewScopedAPI("confirmation", tel),
		used:      newUsedTimes(usedTimesLimit, opts.LastKeyTime),
		keys:      expirable.NewLRU[Tag, cachedKey](8, nil, opts.KeyReuseWindow),
		handled:   expirable.NewLRU[string, struct{}](handledLimit, nil, opts.HandledWindow),
	}
}

func (m *Manager) debug(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	m.tel.ReportDebug(msg)
	m.Events.Debug.Publish(DebugEvent{Message: msg})
}

func (m *Manager) deviceID(id steamid.SteamID) string {
	if m.opts.DeviceID != "" {
		return m.opts.DeviceID
	}
	return community.DeviceID(id)
}

// call sends one mobileconf request. Only multiajaxop is a POST, every other
// endpoint takes its parameters in the query string.
func (m *Manager) call(ctx context.Context, endpoint string, tag Tag, t int64, key string, extra url.Values, expectJSON bool) (*community.Response, error) {
	id := m.community.SteamID()
	if !id.IsValid() {
		return nil, ErrNotLoggedIn
	}

	params := url.Values{
		"p":   {m.deviceID(id)},
		"a":   {id.String()},
		"k":   {key},
		"t":   {strconv.FormatInt(t, 10)},
		"m":   {"android"},
		"tag": {string(tag)},
	}
	for name, values := range extra {
		for _, v := range values {
			params.Add(name, v)
		}
	}

	d := community.RequestDescriptor{
		Method: http.MethodGet,
		URL:    m.community.URL("mobileconf/" + endpoint),
		Query:  params,
		JSON:   expectJSON,
		Source: "confirmation",
	}
	if endpoint == endpointMultiple {
		d.Method = http.MethodPost
		d.Query = nil
		d.Form = params
	}
	return m.community.Execute(ctx, d)
}

// List returns the pending confirmations in the order the site shows them.
func (m *Manager) List(ctx context.Context, t int64, key string) ([]Confirmation, error) {
	ctx, span := tracer.Start(ctx, "manager:List")
	defer span.End()

	confirmations, err := m.list(ctx, t, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.tel.ReportDebug(report_manager_list, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("count", len(confirmations)))
	return confirmations, nil
}

func (m *Manager) list(ctx context.Context, t int64, key string) ([]Confirmation, error) {
	res, err := m.call(ctx, endpointList, TagConf, t, key, nil, false)
	if err != nil {
		return nil, err
	}
	return parseConfirmations(res.Body)
}

type detailsResponse struct {
	Success bool   `json:"success"`
	HTML    string `json:"html"`
}

// ObjectID returns the trade offer id behind a confirmation. found is false
// when the confirmation is not for a trade offer.
func (m *Manager) ObjectID(ctx context.Context, confirmationID string, t int64, key string) (id uint64, found bool, err error) {
	ctx, span := tracer.Start(ctx, "manager:ObjectID")
	defer span.End()

	res, err := m.call(ctx, endpointDetails+url.PathEscape(confirmationID), TagDetails, t, key, nil, true)
	if err != nil {
		span.RecordError(err)
		return 0, false, err
	}

	var body detailsResponse
	err = res.JSON(&body)
	if err != nil {
		return 0, false, err
	}
	if !body.Success {
		err = community.NewError(community.KindDomainError, "Cannot load confirmation details")
		m.tel.ReportDebug(report_manager_object_id, confirmationID, err)
		return 0, false, err
	}
	return parseOfferID(body.HTML)
}

type respondResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Respond accepts or cancels confirmations. ids and nonces are parallel, the
// nonce being Confirmation.Key. A batch is not atomic: the site may act on
// some of the ids before it reports a failure.
func (m *Manager) Respond(ctx context.Context, ids []string, nonces []string, t int64, key string, accept bool) error {
	if len(ids) == 0 || len(ids) != len(nonces) {
		return ErrMismatchedNonces
	}

	ctx, span := tracer.Start(ctx, "manager:Respond")
	defer span.End()
	span.SetAttributes(
		attribute.Int("count", len(ids)),
		attribute.Bool("accept", accept),
	)

	op := TagCancel
	if accept {
		op = TagAllow
	}

	endpoint := endpointRespond
	params := url.Values{"op": {string(op)}}
	if len(ids) == 1 {
		params.Set("cid", ids[0])
		params.Set("ck", nonces[0])
	} else {
		endpoint = endpointMultiple
		params["cid[]"] = ids
		params["ck[]"] = nonces
	}

	res, err := m.call(ctx, endpoint, op, t, key, params, true)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	var body respondResponse
	err = res.JSON(&body)
	if err != nil {
		return err
	}
	if !body.Success {
		message := body.Message
		if message == "" {
			message = "Could not act on confirmation"
		}
		err = community.NewError(community.KindDomainError, message)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.tel.ReportWarning(report_manager_respond, ids, err)
		return err
	}
	return nil
}

// AcceptForObject finds the confirmation created by objectID, a trade offer
// or market listing id, and accepts it.
func (m *Manager) AcceptForObject(ctx context.Context, identitySecret string, objectID uint64) error {
	ctx, span := tracer.Start(ctx, "manager:AcceptForObject")
	defer span.End()
	span.SetAttributes(attribute.String("object", strconv.FormatUint(objectID, 10)))

	offset, err := m.TimeOffset(ctx)
	if err != nil {
		return err
	}

	t := m.time.Now().Unix() + offset
	confKey, err := GenerateKey(identitySecret, t, TagConf)
	if err != nil {
		return err
	}
	confirmations, err := m.List(ctx, t, confKey.Key)
	if err != nil {
		return err
	}

	var target *Confirmation
	for i := range confirmations {
		if confirmations[i].Creator == objectID {
			target = &confirmations[i]
			break
		}
	}
	if target == nil {
		return community.WrapError(
			community.KindDomainError,
			fmt.Sprintf("Could not find confirmation for object %d", objectID),
			ErrConfirmationNotFound,
		)
	}

	allowTime := m.used.reserve(m.time.Now().Unix() + offset)
	allowKey, err := GenerateKey(identitySecret, allowTime, TagAllow)
	if err != nil {
		return err
	}
	return m.Respond(ctx, []string{target.ID}, []string{target.Key}, allowTime, allowKey.Key, true)
}

// AcceptAll accepts every pending confirmation and returns what was accepted.
func (m *Manager) AcceptAll(ctx context.Context, t int64, confKey string, allowKey string) ([]Confirmation, error) {
	confirmations, err := m.List(ctx, t, confKey)
	if err != nil {
		return nil, err
	}
	if len(confirmations) == 0 {
		return confirmations, nil
	}

	ids := make([]string, len(confirmations))
	nonces := make([]string, len(confirmations))
	for i, conf := range confirmations {
		ids[i] = conf.ID
		nonces[i] = conf.Key
	}
	err = m.Respond(ctx, ids, nonces, t, allowKey, true)
	if err != nil {
		return nil, err
	}
	return confirmations, nil
}
