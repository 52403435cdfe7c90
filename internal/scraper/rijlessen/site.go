// Package rijlessen implements the scraper.Site capabilities for the
// rijlessen.nl driving-school directory: city discovery from the root
// listing, per-city school extraction and detail-page enrichment.
package rijlessen

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/lewandolfski/driving-school-scraper/internal/school"
	"github.com/lewandolfski/driving-school-scraper/internal/validate"
)

const (
	defaultBaseURL   = "https://rijlessen.nl"
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

	// minNameLen filters out headings that cannot be a school name.
	minNameLen = 3
)

// Config carries the tunable parts of the site profile. Zero values fall
// back to the production defaults.
type Config struct {
	BaseURL   string
	UserAgent string
}

// Site scrapes the rijlessen.nl directory. It is stateless; all crawl
// bookkeeping lives with the caller.
type Site struct {
	baseURL string
	host    string
	headers http.Header
	now     func() time.Time
}

// New builds the site profile. The header set mirrors a desktop browser
// with a Dutch locale; the directory serves different markup otherwise.
func New(cfg Config) (*Site, error) {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", base, err)
	}
	agent := cfg.UserAgent
	if agent == "" {
		agent = defaultUserAgent
	}

	headers := http.Header{}
	headers.Set("User-Agent", agent)
	headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	headers.Set("Accept-Language", "nl-NL,nl;q=0.8,en-US;q=0.5,en;q=0.3")

	return &Site{
		baseURL: strings.TrimRight(base, "/"),
		host:    parsed.Host,
		headers: headers,
		now:     time.Now,
	}, nil
}

// Name labels the site in logs and stored records.
func (s *Site) Name() string { return "rijlessen.nl" }

// RootURL is the city index page.
func (s *Site) RootURL() string { return s.baseURL + "/rijscholen" }

// Headers returns the fixed request header profile.
func (s *Site) Headers() http.Header { return s.headers.Clone() }

// DiscoverUnits extracts city page links from the root listing. Links to
// the index itself are skipped and duplicates collapse to the first
// occurrence, so discovery order is stable across runs of the same page.
func (s *Site) DiscoverUnits(body []byte) ([]school.CrawlUnit, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse root page: %w", err)
	}

	seen := make(map[string]struct{})
	var units []school.CrawlUnit
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !strings.Contains(href, "/rijscholen/") || href == "/rijscholen/" {
			return
		}
		full := s.absoluteURL(href)
		if _, ok := seen[full]; ok {
			return
		}
		seen[full] = struct{}{}
		units = append(units, school.CrawlUnit{URL: full, Index: len(units) + 1})
	})
	return units, nil
}

// ExtractListing parses one city page. Every h3 heading is treated as a
// candidate school; headings shorter than three characters are discarded.
// The surrounding text block yields address, rating, review count and
// success rate when present, with the city name as the address fallback.
func (s *Site) ExtractListing(body []byte, unit school.CrawlUnit) ([]school.School, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse city page %s: %w", unit.URL, err)
	}

	city := cityFromURL(unit.URL)
	var schools []school.School
	doc.Find("h3").Each(func(_ int, h *goquery.Selection) {
		name := strings.TrimSpace(h.Text())
		if len(name) < minNameLen {
			return
		}

		entry := school.School{
			Name:      name,
			URL:       unit.URL,
			Source:    s.baseURL,
			ScrapedAt: s.now(),
		}
		if href, ok := detailLink(h); ok {
			entry.URL = s.absoluteURL(href)
		}

		text := contentText(h)
		if addr, ok := firstMatch(listingAddressMatchers, text); ok {
			entry.Address = strings.TrimSpace(addr)
		} else {
			entry.Address = city
		}
		if raw, ok := firstMatch(listingRatingMatchers, text); ok {
			if rating, err := strconv.ParseFloat(raw, 64); err == nil {
				entry.Rating = &rating
			}
		}
		if raw, ok := firstMatch(listingReviewMatchers, text); ok {
			if count, err := strconv.Atoi(raw); err == nil {
				entry.ReviewCount = &count
			}
		}
		if raw, ok := firstMatch(listingSuccessMatchers, text); ok {
			if rate, err := strconv.Atoi(raw); err == nil {
				entry.SuccessRate = &rate
				entry.Courses = append(entry.Courses, school.CourseFact{
					Type:        "success_rate",
					Value:       rate,
					Description: fmt.Sprintf("%d%% slagingspercentage", rate),
				})
			}
		}

		schools = append(schools, entry)
	})
	return schools, nil
}

// IsDetailURL reports whether url points at an individual school page.
func (s *Site) IsDetailURL(url string) bool {
	return strings.Contains(url, "/rijschool-")
}

func (s *Site) absoluteURL(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return s.baseURL + "/" + strings.TrimLeft(href, "/")
}

// detailLink finds the anchor for the heading's school page. The markup
// nests the link either inside the heading or in the enclosing card, so
// both are tried in that order.
func detailLink(h *goquery.Selection) (string, bool) {
	isDetail := func(href string) bool {
		return strings.Contains(href, "/rijscholen/") && strings.Contains(href, "/rijschool-")
	}
	for _, scope := range []*goquery.Selection{h, h.Parent()} {
		found := ""
		scope.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			href, _ := a.Attr("href")
			if isDetail(href) {
				found = href
				return false
			}
			return true
		})
		if found != "" {
			return found, true
		}
	}
	return "", false
}

// contentText gathers the loose text around a heading: the next sibling
// when one exists, otherwise the enclosing element.
func contentText(h *goquery.Selection) string {
	block := h.Next()
	if block.Length() == 0 {
		block = h.Parent()
	}
	return block.Text()
}

// cityFromURL turns the last path segment of a city page URL into a
// display name: "den-haag" becomes "Den Haag".
func cityFromURL(unitURL string) string {
	trimmed := strings.TrimRight(unitURL, "/")
	segment := trimmed[strings.LastIndex(trimmed, "/")+1:]
	return validate.CleanAddress(strings.ReplaceAll(segment, "-", " "))
}
