package rijlessen

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lewandolfski/driving-school-scraper/internal/school"
)

const rootPage = `<html><body>
<nav><a href="/over-ons">Over ons</a><a href="/rijscholen/">Alle rijscholen</a></nav>
<ul>
<li><a href="/rijscholen/amsterdam">Amsterdam</a></li>
<li><a href="/rijscholen/den-haag">Den Haag</a></li>
<li><a href="https://rijlessen.nl/rijscholen/utrecht">Utrecht</a></li>
<li><a href="/rijscholen/amsterdam">Amsterdam (populair)</a></li>
</ul>
</body></html>`

const cityPage = `<html><body>
<div class="card">
  <h3>Rijschool Jansen</h3>
  <div>
    Hoofdstraat 12 Amsterdam · 4.5/5 (23 reviews) · 80% slagingspercentage
    <a href="/rijscholen/amsterdam/rijschool-jansen">&raquo;</a>
  </div>
</div>
<div class="card">
  <h3>Verkeersschool Zonder Gegevens</h3>
  <div>Nieuwe school, nog geen beoordelingen.</div>
</div>
<div class="card">
  <h3>NL</h3>
  <div>Geen school.</div>
</div>
</body></html>`

func newTestSite(t *testing.T) *Site {
	t.Helper()
	s, err := New(Config{})
	require.NoError(t, err)
	return s
}

func TestDiscoverUnitsDeduplicatesAndAbsolutizes(t *testing.T) {
	t.Parallel()

	s := newTestSite(t)
	units, err := s.DiscoverUnits([]byte(rootPage))
	require.NoError(t, err)

	require.Equal(t, []school.CrawlUnit{
		{URL: "https://rijlessen.nl/rijscholen/amsterdam", Index: 1},
		{URL: "https://rijlessen.nl/rijscholen/den-haag", Index: 2},
		{URL: "https://rijlessen.nl/rijscholen/utrecht", Index: 3},
	}, units)
}

func TestDiscoverUnitsSkipsIndexLink(t *testing.T) {
	t.Parallel()

	s := newTestSite(t)
	units, err := s.DiscoverUnits([]byte(`<a href="/rijscholen/">index</a>`))
	require.NoError(t, err)
	require.Empty(t, units)
}

func TestExtractListingParsesCards(t *testing.T) {
	t.Parallel()

	s := newTestSite(t)
	unit := school.CrawlUnit{URL: "https://rijlessen.nl/rijscholen/amsterdam", Index: 1}
	schools, err := s.ExtractListing([]byte(cityPage), unit)
	require.NoError(t, err)
	require.Len(t, schools, 2, "the two-character heading must be discarded")

	first := schools[0]
	require.Equal(t, "Rijschool Jansen", first.Name)
	require.Equal(t, "https://rijlessen.nl/rijscholen/amsterdam/rijschool-jansen", first.URL)
	require.Equal(t, "Hoofdstraat 12 Amsterdam", first.Address)
	require.NotNil(t, first.Rating)
	require.InDelta(t, 4.5, *first.Rating, 0.001)
	require.NotNil(t, first.ReviewCount)
	require.Equal(t, 23, *first.ReviewCount)
	require.NotNil(t, first.SuccessRate)
	require.Equal(t, 80, *first.SuccessRate)
	require.Equal(t, []school.CourseFact{{
		Type:        "success_rate",
		Value:       80,
		Description: "80% slagingspercentage",
	}}, first.Courses)
	require.Equal(t, "https://rijlessen.nl", first.Source)
	require.False(t, first.ScrapedAt.IsZero())
}

func TestExtractListingFallsBackToCityAddress(t *testing.T) {
	t.Parallel()

	s := newTestSite(t)
	unit := school.CrawlUnit{URL: "https://rijlessen.nl/rijscholen/den-haag", Index: 2}
	schools, err := s.ExtractListing([]byte(cityPage), unit)
	require.NoError(t, err)
	require.Len(t, schools, 2)

	second := schools[1]
	require.Equal(t, "Verkeersschool Zonder Gegevens", second.Name)
	require.Equal(t, "Den Haag", second.Address)
	require.Nil(t, second.Rating)
	require.Nil(t, second.ReviewCount)
	require.Nil(t, second.SuccessRate)
	require.Equal(t, unit.URL, second.URL, "entries without a detail link keep the unit URL")
}

func TestIsDetailURL(t *testing.T) {
	t.Parallel()

	s := newTestSite(t)
	require.True(t, s.IsDetailURL("https://rijlessen.nl/rijscholen/amsterdam/rijschool-jansen"))
	require.False(t, s.IsDetailURL("https://rijlessen.nl/rijscholen/amsterdam"))
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	t.Parallel()

	_, err := New(Config{BaseURL: "://not-a-url"})
	require.Error(t, err)
}
