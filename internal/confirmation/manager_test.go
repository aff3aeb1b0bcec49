package confirmation

import (
	"context"
	"net/http"
	"steamcommunity/internal/community"
	"steamcommunity/internal/steamid"
	"strconv"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestListRequest(t *testing.T) {
	site := newFakeSite(
		entry{id: "111", nonce: "9001", typ: TypeTrade, creator: 4801},
		entry{id: "222", nonce: "9002", typ: TypeMarketListing, creator: 5702},
	)
	manager, _, _ := newTestManager(t, site, Options{})

	confirmations, err := manager.List(context.Background(), 1700000000, "confkey")
	require.NoError(t, err)
	require.Len(t, confirmations, 2)
	require.Equal(t, "111", confirmations[0].ID)
	require.Equal(t, "222", confirmations[1].ID)
	require.Equal(t, uint64(5702), confirmations[1].Creator)

	calls := site.callsTo("/mobileconf/conf")
	require.Len(t, calls, 1)
	require.Equal(t, http.MethodGet, calls[0].method)
	diff := cmp.Diff(map[string][]string{
		"p":   {community.DeviceID(steamid.SteamID(76561197960287930))},
		"a":   {"76561197960287930"},
		"k":   {"confkey"},
		"t":   {"1700000000"},
		"m":   {"android"},
		"tag": {"conf"},
	}, map[string][]string(calls[0].params))
	if diff != "" {
		t.Fatal(diff)
	}
}

func TestListEmpty(t *testing.T) {
	manager, _, _ := newTestManager(t, newFakeSite(), Options{})

	confirmations, err := manager.List(context.Background(), 1700000000, "confkey")
	require.NoError(t, err)
	require.Empty(t, confirmations)
}

func TestListSessionExpired(t *testing.T) {
	site := newFakeSite()
	site.listRedirect = true
	manager, client, _ := newTestManager(t, site, Options{})

	expired := 0
	client.Events.SessionExpired.Subscribe(func(community.SessionExpiredEvent) {
		expired++
	})

	_, err := manager.List(context.Background(), 1700000000, "confkey")
	require.ErrorIs(t, err, community.ErrNotAuthenticated)
	require.Equal(t, 1, expired)
}

func TestListNotLoggedIn(t *testing.T) {
	manager, client, _ := newTestManager(t, newFakeSite(), Options{})
	client.SetSteamID(0)

	_, err := manager.List(context.Background(), 1700000000, "confkey")
	require.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestObjectID(t *testing.T) {
	site := newFakeSite()
	site.details["111"] = `<div class="tradeoffer" id="tradeofferid_4801"></div>`
	site.details["222"] = `<div class="mobileconf_listing_prices">1.86</div>`
	manager, _, _ := newTestManager(t, site, Options{})
	ctx := context.Background()

	id, found, err := manager.ObjectID(ctx, "111", 1700000000, "detailskey")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(4801), id)

	_, found, err = manager.ObjectID(ctx, "222", 1700000000, "detailskey")
	require.NoError(t, err)
	require.False(t, found)

	_, _, err = manager.ObjectID(ctx, "333", 1700000000, "detailskey")
	require.ErrorIs(t, err, community.ErrDomainError)
	require.EqualError(t, err, "Cannot load confirmation details")

	calls := site.callsTo("/mobileconf/details/111")
	require.Len(t, calls, 1)
	require.Equal(t, "details", calls[0].params.Get("tag"))
}

func TestRespond(t *testing.T) {
	site := newFakeSite(
		entry{id: "111", nonce: "9001"},
		entry{id: "222", nonce: "9002"},
		entry{id: "333", nonce: "9003"},
	)
	manager, _, _ := newTestManager(t, site, Options{})
	ctx := context.Background()

	err := manager.Respond(ctx, []string{"111"}, []string{"9001"}, 1700000000, "cancelkey", false)
	require.NoError(t, err)
	single := site.callsTo("/mobileconf/ajaxop")
	require.Len(t, single, 1)
	require.Equal(t, http.MethodGet, single[0].method)
	require.Equal(t, "cancel", single[0].params.Get("op"))
	require.Equal(t, "cancel", single[0].params.Get("tag"))
	require.Equal(t, "111", single[0].params.Get("cid"))
	require.Equal(t, "9001", single[0].params.Get("ck"))

	err = manager.Respond(ctx, []string{"222", "333"}, []string{"9002", "9003"}, 1700000000, "allowkey", true)
	require.NoError(t, err)
	multi := site.callsTo("/mobileconf/multiajaxop")
	require.Len(t, multi, 1)
	require.Equal(t, http.MethodPost, multi[0].method)
	require.Equal(t, "allow", multi[0].params.Get("op"))
	require.Equal(t, []string{"222", "333"}, multi[0].params["cid[]"])
	require.Equal(t, []string{"9002", "9003"}, multi[0].params["ck[]"])

	err = manager.Respond(ctx, []string{"111", "222"}, []string{"9001"}, 1700000000, "allowkey", true)
	require.ErrorIs(t, err, ErrMismatchedNonces)
}

func TestRespondFailure(t *testing.T) {
	site := newFakeSite()
	site.respondError = "Confirmation has already been processed"
	manager, _, _ := newTestManager(t, site, Options{})

	err := manager.Respond(context.Background(), []string{"111"}, []string{"9001"}, 1700000000, "allowkey", true)
	require.ErrorIs(t, err, community.ErrDomainError)
	require.EqualError(t, err, "Confirmation has already been processed")
}

func TestAcceptForObject(t *testing.T) {
	site := newFakeSite(
		entry{id: "111", nonce: "9001", typ: TypeTrade, creator: 4801},
		entry{id: "222", nonce: "9002", typ: TypeTrade, creator: 4802},
	)
	site.serverAhead = 7
	manager, _, _ := newTestManager(t, site, Options{})
	ctx := context.Background()

	require.NoError(t, manager.AcceptForObject(ctx, testSecret, 4801))
	require.NoError(t, manager.AcceptForObject(ctx, testSecret, 4802))

	responses := site.callsTo("/mobileconf/ajaxop")
	require.Len(t, responses, 2)
	require.Equal(t, "111", responses[0].params.Get("cid"))
	require.Equal(t, "222", responses[1].params.Get("cid"))

	first, _ := strconv.ParseInt(responses[0].params.Get("t"), 10, 64)
	second, _ := strconv.ParseInt(responses[1].params.Get("t"), 10, 64)
	require.Equal(t, testStart.Unix()+7, first)
	require.GreaterOrEqual(t, second-first, int64(1))

	key, err := GenerateKey(testSecret, first, TagAllow)
	require.NoError(t, err)
	require.Equal(t, key.Key, responses[0].params.Get("k"))

	// one QueryTime for both calls
	require.Len(t, site.callsTo("/ITwoFactorService/QueryTime/v1/"), 1)

	err = manager.AcceptForObject(ctx, testSecret, 4801)
	require.ErrorIs(t, err, ErrConfirmationNotFound)
	require.ErrorIs(t, err, community.ErrDomainError)
}

func TestAcceptForObjectUniqueTimes(t *testing.T) {
	site := newFakeSite(entry{id: "111", nonce: "9001", typ: TypeTrade, creator: 4801})
	site.keepAccepted = true
	manager, _, _ := newTestManager(t, site, Options{})
	ctx := context.Background()

	for range usedTimesLimit {
		require.NoError(t, manager.AcceptForObject(ctx, testSecret, 4801))
	}

	seen := map[string]bool{}
	for _, c := range site.callsTo("/mobileconf/ajaxop") {
		ts := c.params.Get("t")
		require.False(t, seen[ts], "timestamp %s used twice", ts)
		seen[ts] = true
	}
	require.Len(t, seen, usedTimesLimit)
	require.Equal(t, usedTimesLimit, manager.used.len())
}

func TestAcceptAll(t *testing.T) {
	site := newFakeSite(
		entry{id: "111", nonce: "9001"},
		entry{id: "222", nonce: "9002"},
	)
	manager, _, _ := newTestManager(t, site, Options{})
	ctx := context.Background()

	accepted, err := manager.AcceptAll(ctx, 1700000000, "confkey", "allowkey")
	require.NoError(t, err)
	require.Len(t, accepted, 2)

	multi := site.callsTo("/mobileconf/multiajaxop")
	require.Len(t, multi, 1)
	require.Equal(t, "allowkey", multi[0].params.Get("k"))

	accepted, err = manager.AcceptAll(ctx, 1700000001, "confkey", "allowkey")
	require.NoError(t, err)
	require.Empty(t, accepted)
	require.Len(t, site.callsTo("/mobileconf/multiajaxop"), 1)
}

func TestTimeOffsetCached(t *testing.T) {
	site := newFakeSite()
	site.serverAhead = -12
	manager, _, clock := newTestManager(t, site, Options{})
	ctx := context.Background()

	offset, err := manager.TimeOffset(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(-12), offset)

	clock.Advance(11 * time.Hour)
	_, err = manager.TimeOffset(ctx)
	require.NoError(t, err)
	require.Len(t, site.callsTo("/ITwoFactorService/QueryTime/v1/"), 1)

	clock.Advance(2 * time.Hour)
	offset, err = manager.TimeOffset(ctx)
	require.NoError(t, err)
	// the fake server clock stands still while ours moved 13 hours
	require.Equal(t, int64(-12-13*3600), offset)
	require.Len(t, site.callsTo("/ITwoFactorService/QueryTime/v1/"), 2)
}
