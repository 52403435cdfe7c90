package rijlessen

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/lewandolfski/driving-school-scraper/internal/school"
)

// maxPhones caps how many numbers from a detail page are kept.
const maxPhones = 2

// ExtractDetail enriches a school in place from its detail page. Each field
// keeps its listing value unless a detail match passes its bounds check, so
// a sparse detail page never erases listing data.
func (s *Site) ExtractDetail(body []byte, entry *school.School) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return
	}
	text := doc.Text()

	if phone := extractPhones(text); phone != "" {
		entry.Phone = phone
	}
	if email := extractEmail(doc, text); email != "" {
		entry.Email = email
	}
	if addr := extractAddress(text); addr != "" {
		entry.Address = addr
	}
	if rating, ok := extractRating(text); ok {
		entry.Rating = &rating
	}
	if count, ok := extractInt(detailReviewMatchers, text); ok {
		entry.ReviewCount = &count
	}
	if rate, ok := extractSuccessRate(text); ok {
		entry.SuccessRate = &rate
	}
	if site := externalWebsite(doc, s.host); site != "" {
		entry.Website = site
	}
}

// extractPhones collects every phone-shaped string on the page, drops the
// too-short ones and joins the first two. Pages routinely list a mobile and
// a landline; beyond two the extras are navigation noise.
func extractPhones(text string) string {
	var phones []string
	for _, re := range phonePatterns {
		for _, raw := range re.FindAllString(text, -1) {
			candidate := strings.TrimSpace(raw)
			digits := strings.NewReplacer("-", "", " ", "").Replace(candidate)
			if len(digits) >= 10 {
				phones = append(phones, candidate)
			}
		}
	}
	if len(phones) == 0 {
		return ""
	}
	if len(phones) > maxPhones {
		phones = phones[:maxPhones]
	}
	return strings.Join(phones, ", ")
}

// extractEmail prefers an explicit mailto link over a text scan.
func extractEmail(doc *goquery.Document, text string) string {
	email := ""
	doc.Find(`a[href^="mailto:"]`).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		email = strings.TrimSpace(strings.TrimPrefix(href, "mailto:"))
		return false
	})
	if email != "" {
		return email
	}
	return emailTextRe.FindString(text)
}

// extractAddress tries the detail patterns in order and keeps the first
// match long enough to plausibly be street plus city.
func extractAddress(text string) string {
	for _, m := range detailAddressMatchers {
		if raw, ok := m.find(text); ok {
			addr := strings.TrimSpace(raw)
			if len(addr) > 10 {
				return addr
			}
		}
	}
	return ""
}

func extractRating(text string) (float64, bool) {
	for _, m := range detailRatingMatchers {
		raw, ok := m.find(text)
		if !ok {
			continue
		}
		rating, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		if rating >= 0 && rating <= 5 {
			return rating, true
		}
	}
	return 0, false
}

func extractInt(matchers []matcher, text string) (int, bool) {
	for _, m := range matchers {
		raw, ok := m.find(text)
		if !ok {
			continue
		}
		if value, err := strconv.Atoi(raw); err == nil {
			return value, true
		}
	}
	return 0, false
}

func extractSuccessRate(text string) (int, bool) {
	for _, m := range detailSuccessMatchers {
		raw, ok := m.find(text)
		if !ok {
			continue
		}
		rate, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		if rate >= 0 && rate <= 100 {
			return rate, true
		}
	}
	return 0, false
}

// externalWebsite returns the first absolute link pointing off-site.
func externalWebsite(doc *goquery.Document, host string) string {
	site := ""
	doc.Find(`a[href^="http"]`).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if host != "" && strings.Contains(href, host) {
			return true
		}
		site = strings.TrimSpace(href)
		return false
	})
	return site
}
