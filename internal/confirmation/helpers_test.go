package confirmation

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"steamcommunity/internal/community"
	"steamcommunity/internal/components/chrono"
	"steamcommunity/internal/components/telemetry"
	"strings"
	"sync"
	"testing"
	"time"
)

const testSecret = "MTIzNDU2Nzg5MDEyMzQ1Njc4OTA="

var testStart = time.Unix(1700000000, 0)

type entry struct {
	id      string
	nonce   string
	typ     Type
	creator uint64
}

type call struct {
	method string
	path   string
	params url.Values
}

// fakeSite serves the mobile confirmation endpoints from an in memory list.
type fakeSite struct {
	mu      sync.Mutex
	entries []entry
	// serverAhead is added to testStart for QueryTime.
	serverAhead int64
	calls       []call
	timeQueries int
	// keepAccepted leaves accepted entries listed.
	keepAccepted bool
	respondError string
	respondDelay time.Duration
	inFlight     int
	maxInFlight  int
	details      map[string]string
	// listGate, when set, blocks the listing until it is closed.
	listGate    chan struct{}
	listEntered chan struct{}
	listStatus  int
	// listRedirect sends the listing to the login page.
	listRedirect bool
}

func newFakeSite(entries ...entry) *fakeSite {
	return &fakeSite{entries: entries, details: map[string]string{}}
}

func (s *fakeSite) record(r *http.Request) url.Values {
	r.ParseForm()
	s.mu.Lock()
	s.calls = append(s.calls, call{method: r.Method, path: r.URL.Path, params: r.Form})
	s.mu.Unlock()
	return r.Form
}

func (s *fakeSite) callsTo(path string) []call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []call{}
	for _, c := range s.calls {
		if c.path == path {
			out = append(out, c)
		}
	}
	return out
}

func (s *fakeSite) listHTML() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) == 0 {
		return `<html><body><div id="mobileconf_empty" class="mobileconf_done"><div>Nothing to confirm</div></div></body></html>`
	}
	var b strings.Builder
	b.WriteString(`<html><body><div id="mobileconf_list">`)
	for _, e := range s.entries {
		fmt.Fprintf(
			&b,
			`<div class="mobileconf_list_entry" data-confid="%s" data-key="%s" data-type="%d" data-creator="%d">`+
				`<div class="mobileconf_list_entry_description"><div>Confirmation %s</div><div></div><div>Now</div></div></div>`,
			e.id, e.nonce, int(e.typ), e.creator, e.id,
		)
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

func (s *fakeSite) accept(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keepAccepted {
		return
	}
	kept := s.entries[:0]
	for _, e := range s.entries {
		accepted := false
		for _, id := range ids {
			accepted = accepted || id == e.id
		}
		if !accepted {
			kept = append(kept, e)
		}
	}
	s.entries = kept
}

func (s *fakeSite) respond(w http.ResponseWriter, ids []string, op string) {
	s.mu.Lock()
	s.inFlight++
	s.maxInFlight = max(s.maxInFlight, s.inFlight)
	delay := s.respondDelay
	failure := s.respondError
	s.mu.Unlock()

	time.Sleep(delay)

	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()

	if failure != "" {
		json.NewEncoder(w).Encode(map[string]any{"success": false, "message": failure})
		return
	}
	if op == "allow" {
		s.accept(ids)
	}
	json.NewEncoder(w).Encode(map[string]any{"success": true})
}

func (s *fakeSite) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ITwoFactorService/QueryTime/v1/", func(w http.ResponseWriter, r *http.Request) {
		s.record(r)
		s.mu.Lock()
		s.timeQueries++
		serverTime := testStart.Unix() + s.serverAhead
		s.mu.Unlock()
		fmt.Fprintf(w, `{"response":{"server_time":"%d","skew_tolerance_seconds":"60"}}`, serverTime)
	})
	mux.HandleFunc("/mobileconf/conf", func(w http.ResponseWriter, r *http.Request) {
		s.record(r)
		s.mu.Lock()
		gate, entered, status, redirect := s.listGate, s.listEntered, s.listStatus, s.listRedirect
		s.mu.Unlock()
		if redirect {
			http.Redirect(w, r, "/login/home/?goto=mobileconf%2Fconf", http.StatusFound)
			return
		}
		if entered != nil {
			entered <- struct{}{}
		}
		if gate != nil {
			<-gate
		}
		if status != 0 {
			w.WriteHeader(status)
			return
		}
		w.Write([]byte(s.listHTML()))
	})
	mux.HandleFunc("/mobileconf/details/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.record(r)
		s.mu.Lock()
		html, ok := s.details[r.PathValue("id")]
		s.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"success": ok, "html": html})
	})
	mux.HandleFunc("/mobileconf/ajaxop", func(w http.ResponseWriter, r *http.Request) {
		params := s.record(r)
		s.respond(w, []string{params.Get("cid")}, params.Get("op"))
	})
	mux.HandleFunc("/mobileconf/multiajaxop", func(w http.ResponseWriter, r *http.Request) {
		params := s.record(r)
		s.respond(w, params["cid[]"], params.Get("op"))
	})
	return mux
}

func newTestManager(t testing.TB, site *fakeSite, opts Options) (*Manager, *community.Client, *chrono.Fake) {
	server := httptest.NewServer(site.handler())
	t.Cleanup(server.Close)

	clock := chrono.NewFake(testStart)
	client, err := community.NewClient(community.Options{
		CommunityURL:     server.URL,
		APIURL:           server.URL,
		ExtraCookieHosts: []string{},
		Time:             clock,
	}, telemetry.NewRecorder())
	if err != nil {
		t.Fatal(err)
	}
	err = client.SetCookies([]string{"steamLoginSecure=76561197960287930%7C%7Ctoken"})
	if err != nil {
		t.Fatal(err)
	}

	if opts.Time == nil {
		opts.Time = clock
	}
	manager := NewManager(client, opts, telemetry.NewRecorder())
	t.Cleanup(manager.StopChecker)
	return manager, client, clock
}
