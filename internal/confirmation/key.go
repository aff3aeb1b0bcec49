package confirmation

import (
	"context"
	"fmt"
	"slices"
	"sync"

	authenticator "github.com/bbqtd/go-steam-authenticator"
)

// GenerateKey derives the key for tag at the unix time t from an identity secret.
func GenerateKey(identitySecret string, t int64, tag Tag) (Key, error) {
	timer := func() uint64 {
		return uint64(t)
	}

	var code string
	var err error
	switch tag {
	case TagAllow:
		code, err = authenticator.GenerateAcceptTradeCode(identitySecret, timer)
	case TagCancel:
		code, err = authenticator.GenerateCancelCode(identitySecret, timer)
	case TagConf:
		code, err = authenticator.GenerateLoadConfirmationCode(identitySecret, timer)
	case TagDetails:
		code, err = authenticator.GenerateTradeInfoCode(identitySecret, timer)
	default:
		return Key{}, fmt.Errorf("%w: %q", ErrUnknownTag, tag)
	}
	if err != nil {
		return Key{}, fmt.Errorf("generate %s key: %w", tag, err)
	}
	return Key{Tag: tag, Time: t, Key: code}, nil
}

// usedTimes remembers the timestamps allow and cancel keys were generated for,
// so no two responses share one. Nothing at or before floor is handed out.
type usedTimes struct {
	mu     sync.Mutex
	limit  int
	floor  int64
	latest int64
	times  []int64
}

func newUsedTimes(limit int, floor int64) *usedTimes {
	return &usedTimes{limit: limit, floor: floor, latest: floor}
}

// reserve returns the first unused timestamp at or after t and records it.
func (u *usedTimes) reserve(t int64) int64 {
	u.mu.Lock()
	defer u.mu.Unlock()

	if t <= u.floor {
		t = u.floor + 1
	}
	for slices.Contains(u.times, t) {
		t++
	}
	u.times = append(u.times, t)
	if len(u.times) > u.limit {
		u.times = slices.Clone(u.times[len(u.times)-u.limit:])
	}
	u.latest = max(u.latest, t)
	return t
}

func (u *usedTimes) len() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.times)
}

func (u *usedTimes) last() int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.latest
}

// LastKeyTime returns the latest timestamp an allow or cancel key was
// generated for, so it can be handed to the next process as
// Options.LastKeyTime.
func (m *Manager) LastKeyTime() int64 {
	return m.used.last()
}

// GetKey returns a key for tag. With an identity secret, set by StartChecker
// or Options.IdentitySecret, the key is generated locally at the current
// server time. Otherwise conf and details keys are reused for KeyReuseWindow
// and new keys come from Options.KeyProvider or, failing that, from a
// KeyNeeded subscriber.
func (m *Manager) GetKey(ctx context.Context, tag Tag) (Key, error) {
	secret := m.checker.identitySecret()
	if secret != "" && tag == TagDetails {
		return Key{}, ErrKeyDisabled
	}
	if secret == "" {
		secret = m.opts.IdentitySecret
	}
	if secret != "" {
		t := m.serverNow(ctx)
		if tag == TagAllow || tag == TagCancel {
			t = m.used.reserve(t)
		}
		return GenerateKey(secret, t, tag)
	}

	reusable := tag == TagConf || tag == TagDetails
	if reusable {
		cached, ok := m.keys.Get(tag)
		if ok && m.time.Now().Sub(cached.fetched) < m.opts.KeyReuseWindow {
			return cached.key, nil
		}
	}

	key, err := m.requestKey(ctx, tag)
	if err != nil {
		return Key{}, err
	}
	key.Tag = tag
	if reusable {
		m.keys.Add(tag, cachedKey{key: key, fetched: m.time.Now()})
	}
	return key, nil
}

type keyResult struct {
	key Key
	err error
}

func (m *Manager) requestKey(ctx context.Context, tag Tag) (Key, error) {
	if m.opts.KeyProvider != nil {
		return m.opts.KeyProvider(ctx, tag)
	}

	result := make(chan keyResult, 1)
	var once sync.Once
	provide := func(t int64, key string, err error) {
		once.Do(func() {
			result <- keyResult{key: Key{Tag: tag, Time: t, Key: key}, err: err}
		})
	}

	listeners := m.Events.KeyNeeded.Publish(KeyNeededEvent{Tag: tag, Provide: provide})
	if listeners == 0 {
		return Key{}, ErrNoKeySource
	}

	select {
	case r := <-result:
		return r.key, r.err
	case <-ctx.Done():
		return Key{}, ctx.Err()
	}
}
