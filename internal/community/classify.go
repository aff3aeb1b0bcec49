package community

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"steamcommunity/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// page parses the body at most once, and only if an HTML check needs it.
type page struct {
	body   []byte
	doc    *goquery.Document
	parsed bool
}

func (p *page) document() *goquery.Document {
	if !p.parsed {
		p.parsed = true
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.body))
		if err == nil {
			p.doc = doc
		}
	}
	return p.doc
}

// classify turns the result of one dispatch into at most one error. Checks run
// in order and the first match wins.
func classify(d RequestDescriptor, res *Response, transportErr error) (*Error, Flags) {
	var flags Flags

	if transportErr != nil {
		flags.HTTPError = true
		return transportError(transportErr), flags
	}
	if res == nil {
		flags.HTTPError = true
		return transportError(errors.New("no response")), flags
	}

	p := &page{body: res.Body}

	if !d.Checks.SkipHTTP {
		if err := checkHTTP(res, p); err != nil {
			flags.HTTPError = true
			return err, flags
		}
	}

	if !d.JSON && !d.Checks.SkipSiteError {
		if err := checkSiteError(p); err != nil {
			flags.SiteError = true
			return err, flags
		}
	}

	if !d.JSON && !d.Checks.SkipDomainError {
		if err := checkDomainError(p); err != nil {
			flags.DomainError = true
			return err, flags
		}
	}

	if d.JSON && !d.Checks.SkipJSON {
		if len(res.Body) == 0 {
			flags.JSONError = true
			return malformedPayload(errors.New("empty body")), flags
		}
		if !json.Valid(res.Body) {
			flags.JSONError = true
			return malformedPayload(errors.New("invalid json")), flags
		}
	}

	return nil, flags
}

func checkHTTP(res *Response, p *page) *Error {
	if res.StatusCode >= 300 && res.StatusCode < 400 && isLoginRedirect(res.Header.Get("Location")) {
		return notAuthenticated()
	}

	if res.StatusCode == http.StatusForbidden {
		doc := p.document()
		if doc != nil && htmlutil.CleanText(doc.Find("#parental_notice_instructions").First()) == familyViewNotice {
			return &Error{Kind: KindAccessRestricted, Message: familyViewRestricted}
		}
	}

	if res.StatusCode >= 400 {
		return &Error{Kind: KindHTTPStatus, StatusCode: res.StatusCode}
	}
	return nil
}

func checkSiteError(p *page) *Error {
	if len(p.body) == 0 {
		return nil
	}
	doc := p.document()
	if doc == nil {
		return nil
	}

	sorry := doc.Find("h1").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return htmlutil.CleanText(s) == sorryHeading
	})
	if sorry.Length() > 0 {
		message := htmlutil.CleanText(doc.Find("h3").First())
		if message == "" {
			message = unknownSiteError
		}
		return &Error{Kind: KindSiteError, Message: message}
	}

	if bytes.Contains(p.body, []byte(anonymousPrincipal)) &&
		htmlutil.CleanText(doc.Find("title").First()) == signInTitle {
		return notAuthenticated()
	}
	return nil
}

func checkDomainError(p *page) *Error {
	if len(p.body) == 0 {
		return nil
	}
	doc := p.document()
	if doc == nil {
		return nil
	}

	message := htmlutil.CleanText(doc.Find("#error_msg").First())
	if message != "" {
		return &Error{Kind: KindDomainError, Message: message}
	}
	return nil
}
