// Package classify turns raw registry page markup into a Verdict.
// Classification is pure: no I/O, no state, and malformed input
// degrades to a safe verdict instead of an error.
package classify

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Verdict is the classifier's judgment of one fetched page.
type Verdict int

const (
	// VerdictRateLimited marks pages served by the rate limiter, plus
	// anything that is not a recognizable registry page. An unexpected
	// redirect away from the registry empirically only happens while
	// blocked, so it is folded in here rather than treated as a
	// generic error. That conflation can misfire on deleted or moved
	// registry entries; the Reason distinguishes the signals.
	VerdictRateLimited Verdict = iota
	// VerdictHasSubsidiary marks pages showing a branch relationship.
	VerdictHasSubsidiary
	// VerdictNoSubsidiary marks valid registry pages with no branch
	// indicators anywhere.
	VerdictNoSubsidiary
)

// String implements fmt.Stringer for log fields.
func (v Verdict) String() string {
	switch v {
	case VerdictRateLimited:
		return "rate_limited"
	case VerdictHasSubsidiary:
		return "has_subsidiary"
	case VerdictNoSubsidiary:
		return "no_subsidiary"
	default:
		return "unknown"
	}
}

// Reason records which signal produced a rate-limited verdict so the
// caller can log the title marker (the strongest signal) apart from
// the weaker ones. Resolved verdicts carry ReasonNone.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonTitleMarker  Reason = "title_marker"
	ReasonBlockMessage Reason = "block_message"
	ReasonMissingTitle Reason = "missing_title"
	ReasonOffSiteTitle Reason = "off_site_title"
	ReasonUnparsable   Reason = "unparsable_markup"
)

const (
	titleRateLimitMarker = "too many requests"
	siteTitleMarker      = "opencorporates"
	branchKeyword        = "branch"
)

// rateLimitPhrases are the message-region texts the registry serves
// when it throttles a client. Matched case-insensitively against the
// page's flash/alert region.
var rateLimitPhrases = []string{
	"too many requests",
	"rate limit",
	"you have exceeded",
	"please slow down",
	"unusual traffic",
}

// Classify inspects markup and returns a Verdict. The rate-limit
// title check runs before any other interpretation because the title
// is the most reliable block signal; message-region phrases are the
// fallback. Only then is the page interpreted for branch indicators.
func Classify(markup []byte) (Verdict, Reason) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		// A page we cannot parse must not become a permanent negative.
		return VerdictRateLimited, ReasonUnparsable
	}

	if reason := rateLimitReason(doc); reason != ReasonNone {
		return VerdictRateLimited, reason
	}
	if hasBranchIndicators(doc) {
		return VerdictHasSubsidiary, ReasonNone
	}
	return VerdictNoSubsidiary, ReasonNone
}

// rateLimitReason applies the block checks in precedence order: the
// title marker first, then the message region, then page validity. A
// missing title or a title that does not reference the registry site
// (an off-site redirect) also counts as blocked.
func rateLimitReason(doc *goquery.Document) Reason {
	sel := doc.Find("title")
	if sel.Length() == 0 {
		return ReasonMissingTitle
	}
	title := strings.ToLower(sel.First().Text())
	if strings.Contains(title, titleRateLimitMarker) {
		return ReasonTitleMarker
	}
	if messageRegionBlocked(doc) {
		return ReasonBlockMessage
	}
	if !strings.Contains(title, siteTitleMarker) {
		return ReasonOffSiteTitle
	}
	return ReasonNone
}

func messageRegionBlocked(doc *goquery.Document) bool {
	text := strings.ToLower(doc.Find("div.flash, div.alert, #flash_message").Text())
	if text == "" {
		return false
	}
	for _, phrase := range rateLimitPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

// hasBranchIndicators checks the three branch signals in order of
// specificity. Absent regions are evidence of no branches, not an
// error.
func hasBranchIndicators(doc *goquery.Document) bool {
	if doc.Find("div#data-table-branch_relationship_subject").Length() > 0 {
		return true
	}

	found := false
	doc.Find("div.sidebar-item#similarly_named li").EachWithBreak(func(_ int, li *goquery.Selection) bool {
		if strings.Contains(strings.ToLower(li.Text()), branchKeyword) {
			found = true
			return false
		}
		return true
	})
	if found {
		return true
	}

	table := doc.Find("table.company-data-object")
	return table.Length() > 0 && strings.Contains(strings.ToLower(table.Text()), branchKeyword)
}
