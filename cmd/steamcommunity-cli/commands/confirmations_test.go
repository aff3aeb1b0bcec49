package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"steamcommunity/cmd/steamcommunity-cli/globals"
	"steamcommunity/internal/confirmation"
	"steamcommunity/internal/sessiondb"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const listing = `<html><body><div id="mobileconf_list">
<div class="mobileconf_list_entry" data-confid="111" data-key="9001" data-type="2" data-creator="4801">
	<div class="mobileconf_list_entry_description"><div>Trade with alice</div><div></div><div>Just now</div></div>
</div>
<div class="mobileconf_list_entry" data-confid="222" data-key="9002" data-type="3" data-creator="5702">
	<div class="mobileconf_list_entry_description"><div>Sell - Refined Metal</div><div></div><div>Now</div></div>
</div>
</div></body></html>`

type response struct {
	op  string
	t   int64
	ids []string
}

type mobileconfSite struct {
	mu        sync.Mutex
	responses []response
}

func (s *mobileconfSite) record(r *http.Request, ids []string) {
	t, _ := strconv.ParseInt(r.Form.Get("t"), 10, 64)
	s.mu.Lock()
	s.responses = append(s.responses, response{op: r.Form.Get("op"), t: t, ids: ids})
	s.mu.Unlock()
}

func (s *mobileconfSite) recorded() []response {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]response(nil), s.responses...)
}

func (s *mobileconfSite) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ITwoFactorService/QueryTime/v1/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"response":{"server_time":"%d"}}`, time.Now().Unix())
	})
	mux.HandleFunc("/mobileconf/conf", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(listing))
	})
	mux.HandleFunc("/mobileconf/ajaxop", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		s.record(r, []string{r.Form.Get("cid")})
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	})
	mux.HandleFunc("/mobileconf/multiajaxop", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		s.record(r, r.Form["cid[]"])
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	})
	return mux
}

func newTestValue(t *testing.T, site *mobileconfSite) *globals.Value {
	server := httptest.NewServer(site.handler())
	t.Cleanup(server.Close)

	db, err := sessiondb.OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := globals.DefaultConfig()
	cfg.AccountName = "alice"
	cfg.IdentitySecret = "MTIzNDU2Nzg5MDEyMzQ1Njc4OTA="
	cfg.CommunityURL = server.URL
	cfg.APIURL = server.URL
	return &globals.Value{
		Config: cfg,
		DB:     db,
		Store:  sessiondb.NewStore(db, nil),
	}
}

// newInvocation builds the manager a single command run would use.
func newInvocation(t *testing.T, value *globals.Value) *confirmation.Manager {
	client, err := newClient(value)
	require.NoError(t, err)
	err = client.SetCookies([]string{"steamLoginSecure=76561197960287930%7C%7Ctoken"})
	require.NoError(t, err)
	manager, err := newManager(context.Background(), value, client)
	require.NoError(t, err)
	return manager
}

func TestRespondToUsesFreshTimestamps(t *testing.T) {
	site := &mobileconfSite{}
	value := newTestValue(t, site)
	ctx := context.Background()

	// two back to back runs, usually within the same second
	for _, accept := range []bool{true, false} {
		manager := newInvocation(t, value)
		answered, err := respondTo(ctx, manager, []string{"111"}, accept)
		require.NoError(t, err)
		require.Len(t, answered, 1)
		require.Equal(t, "111", answered[0].ID)
		finishResponses(ctx, value, manager)
	}

	responses := site.recorded()
	require.Len(t, responses, 2)
	require.Equal(t, "allow", responses[0].op)
	require.Equal(t, "cancel", responses[1].op)
	require.Greater(t, responses[1].t, responses[0].t)

	last, err := value.Store.LastKeyTime(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, responses[1].t, last)
}

func TestRespondToAll(t *testing.T) {
	site := &mobileconfSite{}
	value := newTestValue(t, site)
	ctx := context.Background()
	manager := newInvocation(t, value)

	answered, err := respondTo(ctx, manager, nil, true)
	require.NoError(t, err)
	require.Len(t, answered, 2)
	again, err := respondTo(ctx, manager, nil, true)
	require.NoError(t, err)
	require.Len(t, again, 2)

	responses := site.recorded()
	require.Len(t, responses, 2)
	require.Equal(t, []string{"111", "222"}, responses[0].ids)
	require.NotEqual(t, responses[0].t, responses[1].t)
}

func TestRespondToUnknownConfirmation(t *testing.T) {
	site := &mobileconfSite{}
	value := newTestValue(t, site)
	ctx := context.Background()
	manager := newInvocation(t, value)

	_, err := respondTo(ctx, manager, []string{"111", "999"}, true)
	require.EqualError(t, err, "confirmation 999 is not pending")
	require.Empty(t, site.recorded())
}
