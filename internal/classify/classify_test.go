package classify

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const validTitle = `<title>COMPANY B.V. :: OpenCorporates</title>`

func page(body string) []byte {
	return []byte(`<html><head>` + validTitle + `</head><body>` + body + `</body></html>`)
}

func TestClassify_TitleRateLimitPrecedesEverything(t *testing.T) {
	t.Parallel()

	// Branch indicators present, but the title marker must win.
	markup := []byte(`<html><head><title>Too Many Requests</title></head><body>` +
		`<div id="data-table-branch_relationship_subject">branch data</div></body></html>`)

	verdict, reason := Classify(markup)
	require.Equal(t, VerdictRateLimited, verdict)
	require.Equal(t, ReasonTitleMarker, reason)
}

func TestClassify_MessageRegionRateLimit(t *testing.T) {
	t.Parallel()

	cases := []string{
		"too many requests from your network",
		"you have exceeded the allowed rate limit",
		"we detected unusual traffic",
	}
	for _, msg := range cases {
		verdict, reason := Classify(page(`<div class="flash">` + msg + `</div>`))
		require.Equal(t, VerdictRateLimited, verdict, "message %q", msg)
		require.Equal(t, ReasonBlockMessage, reason)
	}
}

func TestClassify_MissingTitleIsRateLimited(t *testing.T) {
	t.Parallel()

	verdict, reason := Classify([]byte(`<html><body><p>hello</p></body></html>`))
	require.Equal(t, VerdictRateLimited, verdict)
	require.Equal(t, ReasonMissingTitle, reason)
}

func TestClassify_OffSiteTitleIsRateLimited(t *testing.T) {
	t.Parallel()

	markup := []byte(`<html><head><title>Some Other Site</title></head><body></body></html>`)
	verdict, reason := Classify(markup)
	require.Equal(t, VerdictRateLimited, verdict)
	require.Equal(t, ReasonOffSiteTitle, reason)
}

func TestClassify_BranchRelationshipRegion(t *testing.T) {
	t.Parallel()

	verdict, reason := Classify(page(`<div id="data-table-branch_relationship_subject">Branch data</div>`))
	require.Equal(t, VerdictHasSubsidiary, verdict)
	require.Equal(t, ReasonNone, reason)
}

func TestClassify_SimilarlyNamedSidebar(t *testing.T) {
	t.Parallel()

	withBranch := page(`<div class="sidebar-item" id="similarly_named"><ul>` +
		`<li>COMPANY B.V.</li><li>COMPANY B.V. (Branch Office)</li></ul></div>`)
	verdict, _ := Classify(withBranch)
	require.Equal(t, VerdictHasSubsidiary, verdict)

	withoutBranch := page(`<div class="sidebar-item" id="similarly_named"><ul>` +
		`<li>COMPANY B.V.</li><li>COMPANY HOLDING B.V.</li></ul></div>`)
	verdict, _ = Classify(withoutBranch)
	require.Equal(t, VerdictNoSubsidiary, verdict)
}

func TestClassify_CompanyDataTable(t *testing.T) {
	t.Parallel()

	verdict, _ := Classify(page(`<table class="company-data-object"><tr><td>Type</td><td>Branch of FOO B.V.</td></tr></table>`))
	require.Equal(t, VerdictHasSubsidiary, verdict)

	verdict, _ = Classify(page(`<table class="company-data-object"><tr><td>Type</td><td>Private company</td></tr></table>`))
	require.Equal(t, VerdictNoSubsidiary, verdict)
}

func TestClassify_ValidPageWithoutIndicatorsIsNegative(t *testing.T) {
	t.Parallel()

	verdict, reason := Classify(page(`<div class="company-info">Just a company</div>`))
	require.Equal(t, VerdictNoSubsidiary, verdict)
	require.Equal(t, ReasonNone, reason)
}

func TestClassify_GarbageInputNeverPanics(t *testing.T) {
	t.Parallel()

	inputs := [][]byte{
		nil,
		{},
		[]byte("<<<<>>>> not html at all \x00\x01"),
		[]byte(`<html><head><title>`),
	}
	for _, markup := range inputs {
		verdict, _ := Classify(markup)
		// Whatever happens, a malformed page must not become a
		// permanent negative or positive.
		require.Equal(t, VerdictRateLimited, verdict)
	}
}
