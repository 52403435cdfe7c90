// Package dedupe resolves near-duplicate school records across sources.
//
// Grouping is a single greedy left-to-right pass over pairwise similarity,
// not a full transitive closure: when j matches i and a later k matches j
// but not i, k stays outside i's group. That asymmetry is inherited from
// the simplest-correct pairwise heuristic and is kept deliberately, since
// changing it changes which records merge.
package dedupe

import (
	"regexp"
	"strings"

	"github.com/lewandolfski/driving-school-scraper/internal/school"
	"github.com/lewandolfski/driving-school-scraper/internal/validate"
)

// DefaultThreshold is the similarity score at or above which two records
// are considered the same real-world school.
const DefaultThreshold = 0.8

// Field weights for the similarity score. A field only contributes its
// weight to the normalizing denominator when both records carry a value.
const (
	nameWeight        = 0.5
	namePartialWeight = 0.3
	addressWeight     = 0.3
	addressPartial    = 0.15
	phoneWeight       = 0.2
)

var digitsOnly = regexp.MustCompile(`\D`)

// Group is a set of indices into the input slice whose pairwise similarity
// met the threshold during the greedy pass.
type Group []int

// Similarity scores two schools in [0,1]. Fields absent on either side are
// excluded from both numerator and denominator, so a pair sharing only a
// phone number can still score 1.0.
func Similarity(a, b school.School) float64 {
	score := 0.0
	totalWeight := 0.0

	if a.Name != "" && b.Name != "" {
		nameA := strings.ToLower(validate.CleanName(a.Name))
		nameB := strings.ToLower(validate.CleanName(b.Name))
		switch {
		case nameA == nameB:
			score += nameWeight
		case strings.Contains(nameA, nameB) || strings.Contains(nameB, nameA):
			score += namePartialWeight
		}
		totalWeight += nameWeight
	}

	if a.Address != "" && b.Address != "" {
		addrA := strings.ToLower(a.Address)
		addrB := strings.ToLower(b.Address)
		switch {
		case addrA == addrB:
			score += addressWeight
		case tokenOverlap(addrA, addrB):
			score += addressPartial
		}
		totalWeight += addressWeight
	}

	if a.Phone != "" && b.Phone != "" {
		if digitsOnly.ReplaceAllString(a.Phone, "") == digitsOnly.ReplaceAllString(b.Phone, "") {
			score += phoneWeight
		}
		totalWeight += phoneWeight
	}

	if totalWeight == 0 {
		return 0
	}
	return score / totalWeight
}

// FindDuplicates groups records whose similarity meets the threshold. Each
// record joins at most one group, claimed by the leftmost unprocessed record
// it matches. Only groups with two or more members are returned.
func FindDuplicates(schools []school.School, threshold float64) []Group {
	var groups []Group
	processed := make(map[int]struct{}, len(schools))

	for i := range schools {
		if _, done := processed[i]; done {
			continue
		}
		group := Group{i}
		for j := i + 1; j < len(schools); j++ {
			if _, done := processed[j]; done {
				continue
			}
			if Similarity(schools[i], schools[j]) >= threshold {
				group = append(group, j)
				processed[j] = struct{}{}
			}
		}
		if len(group) > 1 {
			groups = append(groups, group)
			for _, idx := range group {
				processed[idx] = struct{}{}
			}
		}
	}
	return groups
}

// Merge collapses each group into one canonical record: the member with the
// highest field-completeness count is the base, and any field still absent
// on the base is filled from the first group member that has it. Ungrouped
// records pass through unchanged, after all merged groups.
func Merge(schools []school.School, groups []Group) []school.School {
	merged := make([]school.School, 0, len(schools))
	skip := make(map[int]struct{})

	for _, group := range groups {
		best := schools[group[0]]
		bestScore := -1
		for _, idx := range group {
			if score := schools[idx].Completeness(); score > bestScore {
				bestScore = score
				best = schools[idx]
			}
		}
		for _, idx := range group {
			fillGaps(&best, schools[idx])
			skip[idx] = struct{}{}
		}
		merged = append(merged, best)
	}

	for i, s := range schools {
		if _, skipped := skip[i]; !skipped {
			merged = append(merged, s)
		}
	}
	return merged
}

func fillGaps(dst *school.School, src school.School) {
	if dst.Name == "" {
		dst.Name = src.Name
	}
	if dst.URL == "" {
		dst.URL = src.URL
	}
	if dst.Address == "" {
		dst.Address = src.Address
	}
	if dst.Phone == "" {
		dst.Phone = src.Phone
	}
	if dst.Email == "" {
		dst.Email = src.Email
	}
	if dst.Website == "" {
		dst.Website = src.Website
	}
	if dst.Rating == nil {
		dst.Rating = src.Rating
	}
	if dst.ReviewCount == nil {
		dst.ReviewCount = src.ReviewCount
	}
	if dst.SuccessRate == nil {
		dst.SuccessRate = src.SuccessRate
	}
	if dst.PriceRange == "" {
		dst.PriceRange = src.PriceRange
	}
	if len(dst.Courses) == 0 {
		dst.Courses = src.Courses
	}
	if dst.Source == "" {
		dst.Source = src.Source
	}
}

func tokenOverlap(a, b string) bool {
	for _, word := range strings.Fields(a) {
		if len(word) > 3 && strings.Contains(b, word) {
			return true
		}
	}
	return false
}
