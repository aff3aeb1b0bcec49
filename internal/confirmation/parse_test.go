package confirmation

import (
	_ "embed"
	"errors"
	"steamcommunity/internal/community"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

//go:embed testdata/list.html
var listPage []byte

//go:embed testdata/empty_done.html
var emptyDonePage []byte

//go:embed testdata/empty_error.html
var emptyErrorPage []byte

//go:embed testdata/unknown.html
var unknownPage []byte

func TestParseConfirmations(t *testing.T) {
	confirmations, err := parseConfirmations(listPage)
	require.NoError(t, err)

	diff := cmp.Diff([]Confirmation{
		{
			ID:        "111",
			Type:      TypeTrade,
			Creator:   4801,
			Key:       "9001",
			Title:     "Trade with alice",
			Receiving: "You will receive: Mann Co. Supply Crate Key",
			Time:      "Just now",
			Icon:      "https://avatars.example.com/a.jpg",
		},
		{
			ID:        "222",
			Type:      TypeMarketListing,
			Creator:   5702,
			Key:       "9002",
			Title:     "Sell - Refined Metal",
			Receiving: "1.86 (1.62)",
			Time:      "5 minutes ago",
			Icon:      "https://items.example.com/b.png",
		},
	}, confirmations)
	if diff != "" {
		t.Fatal(diff)
	}
}

func TestParseEmptyList(t *testing.T) {
	confirmations, err := parseConfirmations(emptyDonePage)
	require.NoError(t, err)
	require.NotNil(t, confirmations)
	require.Empty(t, confirmations)
}

func TestParseListErrors(t *testing.T) {
	_, err := parseConfirmations(emptyErrorPage)
	require.ErrorIs(t, err, community.ErrDomainError)
	require.Equal(t, "Invalid authenticator, please try again later.", err.Error())

	_, err = parseConfirmations(unknownPage)
	require.ErrorIs(t, err, community.ErrDomainError)
	require.True(t, errors.Is(err, ErrCannotFindConfirmations))
}

func TestParseOfferID(t *testing.T) {
	cases := []struct {
		name  string
		html  string
		id    uint64
		found bool
		err   bool
	}{
		{
			name:  "trade offer",
			html:  `<div class="mobileconf_trade_area"><div class="tradeoffer" id="tradeofferid_6543210987"><div class="tradeoffer_items_ctn"></div></div></div>`,
			id:    6543210987,
			found: true,
		},
		{
			name: "market listing",
			html: `<div class="mobileconf_listing_prices">1.86</div>`,
		},
		{
			name: "broken id",
			html: `<div class="tradeoffer" id="tradeofferid_abc"></div>`,
			err:  true,
		},
		{
			name: "missing id",
			html: `<div class="tradeoffer"></div>`,
			err:  true,
		},
	}

	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			id, found, err := parseOfferID(test.html)
			if test.err {
				require.ErrorIs(t, err, community.ErrMalformedPayload)
				return
			}
			require.NoError(t, err)
			require.Equal(t, test.id, id)
			require.Equal(t, test.found, found)
		})
	}
}
