package confirmation

import (
	"bytes"
	"steamcommunity/internal/community"
	"steamcommunity/lib/htmlutil"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const unknownListError = "Unknown error while loading confirmations"

func parseConfirmations(body []byte) ([]Confirmation, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, community.WrapError(community.KindMalformedPayload, "", err)
	}

	empty := doc.Find("#mobileconf_empty")
	if empty.Length() > 0 {
		if empty.HasClass("mobileconf_done") {
			return []Confirmation{}, nil
		}
		message := htmlutil.CleanText(empty.Find("div").Eq(1))
		if message == "" {
			message = unknownListError
		}
		return nil, community.NewError(community.KindDomainError, message)
	}

	entries := doc.Find(".mobileconf_list_entry")
	if entries.Length() == 0 {
		return nil, community.WrapError(community.KindDomainError, "", ErrCannotFindConfirmations)
	}

	confirmations := make([]Confirmation, 0, entries.Length())
	entries.Each(func(_ int, entry *goquery.Selection) {
		typ, _ := strconv.Atoi(entry.AttrOr("data-type", ""))
		creator, _ := strconv.ParseUint(entry.AttrOr("data-creator", ""), 10, 64)
		description := entry.Find(".mobileconf_list_entry_description > div")

		confirmations = append(confirmations, Confirmation{
			ID:        entry.AttrOr("data-confid", ""),
			Type:      Type(typ),
			Creator:   creator,
			Key:       entry.AttrOr("data-key", ""),
			Title:     htmlutil.CleanText(description.Eq(0)),
			Receiving: htmlutil.CleanText(description.Eq(1)),
			Time:      htmlutil.CleanText(description.Eq(2)),
			Icon:      entry.Find(".mobileconf_list_entry_icon img").AttrOr("src", ""),
		})
	})
	return confirmations, nil
}

// parseOfferID reads the trade offer id out of a details page, the offer is
// rendered as <div class="tradeoffer" id="tradeofferid_123">.
func parseOfferID(html string) (uint64, bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0, false, community.WrapError(community.KindMalformedPayload, "", err)
	}

	offer := doc.Find(".tradeoffer").First()
	if offer.Length() == 0 {
		return 0, false, nil
	}
	_, raw, found := strings.Cut(offer.AttrOr("id", ""), "_")
	if !found {
		return 0, false, community.NewError(community.KindMalformedPayload, "trade offer element has no id")
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false, community.WrapError(community.KindMalformedPayload, "trade offer id is not a number", err)
	}
	return id, true, nil
}
