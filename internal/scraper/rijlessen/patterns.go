package rijlessen

import "regexp"

// matcher is one prioritized extraction rule: a pattern plus the capture
// group carrying the value. Matchers for a field are tried in order and the
// first match wins; no match leaves the field unset.
type matcher struct {
	name  string
	re    *regexp.Regexp
	group int
}

func (m matcher) find(text string) (string, bool) {
	groups := m.re.FindStringSubmatch(text)
	if len(groups) <= m.group {
		return "", false
	}
	return groups[m.group], true
}

// firstMatch evaluates matchers in priority order until one succeeds.
func firstMatch(matchers []matcher, text string) (string, bool) {
	for _, m := range matchers {
		if value, ok := m.find(text); ok {
			return value, true
		}
	}
	return "", false
}

// Listing-page matchers. These run over the loose text block next to each
// school heading, so they stay permissive; the detail pass re-extracts with
// stricter patterns.
var (
	listingAddressMatchers = []matcher{
		{name: "street-and-city", group: 1, re: regexp.MustCompile(
			`([A-Za-z\s]+\d+[A-Za-z\s]*(?:Amsterdam|Utrecht|Rotterdam|Den Haag|Eindhoven|Tilburg|Groningen|Almere|Breda|Nijmegen|[A-Z][a-z]+))`)},
	}
	listingRatingMatchers = []matcher{
		{name: "x-out-of-5", group: 1, re: regexp.MustCompile(`(\d+\.?\d*)/5`)},
	}
	listingReviewMatchers = []matcher{
		{name: "parenthesized-count", group: 1, re: regexp.MustCompile(`\((\d+)\s*reviews?\)`)},
	}
	listingSuccessMatchers = []matcher{
		{name: "percentage-suffix", group: 1, re: regexp.MustCompile(`(\d+)%\s*slagingspercentage`)},
	}
)

// Detail-page matchers, ordered by specificity.
var (
	// phonePatterns cover the delimiter conventions seen in the wild:
	// hyphenated groups, space-separated groups, bare digit runs and the
	// +31 international prefix. All matches on the page are collected.
	phonePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\d{4}-\d{6}`),                 // 0522-244366
		regexp.MustCompile(`\d{2}-\d{8}`),                 // 06-57340906
		regexp.MustCompile(`\d{3}-\d{3}-\d{4}`),           // 015-202-4021
		regexp.MustCompile(`\d{3}\s\d{3}\s\d{4}`),         // 015 202 4021
		regexp.MustCompile(`\d{2}\s\d{2}\s\d{2}\s\d{2}\s\d{2}`), // 06 51 00 03 17
		regexp.MustCompile(`\d{4}\s\d{6}`),                // 0522 244366
		regexp.MustCompile(`\d{2}\s\d{8}`),                // 06 57340906
		regexp.MustCompile(`\d{10,11}`),                   // 0152024021
		regexp.MustCompile(`\+31\s?\d{1,3}\s?\d{3,4}\s?\d{4}`), // +31 15 202 4021
	}

	emailTextRe = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

	detailAddressMatchers = []matcher{
		// Street 123 1234AB City
		{name: "with-postcode", group: 1, re: regexp.MustCompile(
			`([A-Za-z\s]+\d+[A-Za-z]?\s*\d{4}\s?[A-Z]{2}\s+[A-Za-z\s]+)`)},
		// Street 123A City
		{name: "street-number-city", group: 1, re: regexp.MustCompile(
			`([A-Za-z\s]+\d+[A-Za-z]?\s+[A-Za-z\s]+)`)},
	}
	detailRatingMatchers = []matcher{
		{name: "x-out-of-5", group: 1, re: regexp.MustCompile(`(\d+\.?\d*)/5`)},
		{name: "sterren", group: 1, re: regexp.MustCompile(`(\d+\.?\d*)\s*sterren`)},
		{name: "star-glyph", group: 1, re: regexp.MustCompile(`(\d+\.?\d*)\s*★`)},
	}
	detailReviewMatchers = []matcher{
		{name: "reviews", group: 1, re: regexp.MustCompile(`(?i)(\d+)\s*reviews?`)},
		{name: "beoordelingen", group: 1, re: regexp.MustCompile(`(?i)(\d+)\s*beoordelingen`)},
		{name: "op-basis-van", group: 1, re: regexp.MustCompile(`(?i)op\s+basis\s+van\s+(\d+)\s+reviews?`)},
	}
	detailSuccessMatchers = []matcher{
		{name: "label-first", group: 1, re: regexp.MustCompile(`(?i)slagingspercentage\s*(\d+)%`)},
		{name: "label-last", group: 1, re: regexp.MustCompile(`(?i)(\d+)%\s*slagingspercentage`)},
		{name: "exam-count", group: 1, re: regexp.MustCompile(`(?i)(\d+)%\s*op\s+basis\s+van\s+\d+\s+examens`)},
	}
)
