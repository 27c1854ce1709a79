// Package matching compares the fields of two documents under a weighted
// rule set. MatchFields is pure: identical inputs yield identical results.
package matching

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"

	"certverify/internal/normalize"
)

// Kind selects the per-field comparison.
type Kind string

const (
	KindIdentity Kind = "identity"
	KindName     Kind = "name"
	KindDate     Kind = "date"
	KindText     Kind = "text"
)

const DefaultFieldThreshold = 0.8

type Rule struct {
	Field     string
	Kind      Kind
	Weight    float64
	Threshold float64
}

// Status bands a match confidence.
type Status string

const (
	StatusMatched    Status = "matched"
	StatusPartial    Status = "partial"
	StatusNotMatched Status = "not_matched"
)

// Policy holds the confidence bands.
type Policy struct {
	MatchedThreshold float64
	PartialThreshold float64
}

func DefaultPolicy() Policy {
	return Policy{MatchedThreshold: 0.85, PartialThreshold: 0.6}
}

// Classify maps a confidence onto a status band.
func (p Policy) Classify(confidence float64) Status {
	switch {
	case confidence >= p.MatchedThreshold:
		return StatusMatched
	case confidence >= p.PartialThreshold:
		return StatusPartial
	default:
		return StatusNotMatched
	}
}

type FieldMatch struct {
	Field   string  `json:"field"`
	Value1  string  `json:"value1"`
	Value2  string  `json:"value2"`
	Score   float64 `json:"score"`
	Matched bool    `json:"matched"`
	Reason  string  `json:"reason"`
}

type Result struct {
	FieldMatches    []FieldMatch `json:"fieldMatches"`
	MatchStatus     Status       `json:"matchStatus"`
	MatchConfidence float64      `json:"matchConfidence"`
}

// PANAadhaarRules compares the fields a PAN card shares with an Aadhaar card.
func PANAadhaarRules(nameWeight, dobWeight, threshold float64) []Rule {
	return []Rule{
		{Field: normalize.KeyName, Kind: KindName, Weight: nameWeight, Threshold: threshold},
		{Field: normalize.KeyDateOfBirth, Kind: KindDate, Weight: dobWeight, Threshold: threshold},
	}
}

// CertificateRegistryRules compares certificate data with a registry record.
func CertificateRegistryRules(threshold float64) []Rule {
	return []Rule{
		{Field: "certificate_number", Kind: KindIdentity, Weight: 0.4, Threshold: threshold},
		{Field: normalize.KeyName, Kind: KindName, Weight: 0.4, Threshold: threshold},
		{Field: normalize.KeyDateOfBirth, Kind: KindDate, Weight: 0.2, Threshold: threshold},
	}
}

// MatchFields scores every rule and combines the scores as a weighted mean.
// A value missing on either side scores 0 with the reason recorded.
func MatchFields(fields1, fields2 map[string]string, rules []Rule, policy Policy) Result {
	matches := make([]FieldMatch, 0, len(rules))
	var weighted, totalWeight float64

	for _, rule := range rules {
		v1 := strings.TrimSpace(fields1[rule.Field])
		v2 := strings.TrimSpace(fields2[rule.Field])
		threshold := rule.Threshold
		if threshold <= 0 {
			threshold = DefaultFieldThreshold
		}

		score, reason := scoreField(rule.Kind, v1, v2)
		matches = append(matches, FieldMatch{
			Field:   rule.Field,
			Value1:  v1,
			Value2:  v2,
			Score:   score,
			Matched: score > threshold,
			Reason:  reason,
		})
		if rule.Weight > 0 {
			weighted += rule.Weight * score
			totalWeight += rule.Weight
		}
	}

	confidence := 0.0
	if totalWeight > 0 {
		confidence = weighted / totalWeight
	}
	return Result{
		FieldMatches:    matches,
		MatchStatus:     policy.Classify(confidence),
		MatchConfidence: confidence,
	}
}

func scoreField(kind Kind, v1, v2 string) (float64, string) {
	switch {
	case v1 == "" && v2 == "":
		return 0, "missing in both documents"
	case v1 == "":
		return 0, "missing in first document"
	case v2 == "":
		return 0, "missing in second document"
	}

	switch kind {
	case KindIdentity:
		if normalize.IdentityNumber(v1) == normalize.IdentityNumber(v2) {
			return 1, "exact match"
		}
		return 0, "identifiers differ"
	case KindDate:
		d1, d2 := normalize.ConvertDate(v1), normalize.ConvertDate(v2)
		if !normalize.IsISODate(d1) || !normalize.IsISODate(d2) {
			return 0, "unparseable date"
		}
		if d1 == d2 {
			return 1, "dates equal"
		}
		return 0, "dates differ"
	default:
		score := NameSimilarity(v1, v2)
		switch {
		case score == 1:
			return 1, "normalized match"
		case score == 0:
			return 0, "no similarity"
		default:
			return score, fmt.Sprintf("similar (%.2f)", score)
		}
	}
}

var folder = cases.Fold()

// NormalizeName folds case, strips punctuation and collapses whitespace.
func NormalizeName(s string) string {
	folded := folder.String(s)
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return -1
		}
		return r
	}, folded)
	return normalize.CollapseSpaces(stripped)
}

// NameSimilarity is 1 for equal normalized names, otherwise the larger of the
// Levenshtein ratio and the token-set Jaccard index.
func NameSimilarity(a, b string) float64 {
	na, nb := NormalizeName(a), NormalizeName(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	return max(levenshteinRatio(na, nb), tokenJaccard(na, nb))
}

func levenshteinRatio(a, b string) float64 {
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}

func tokenJaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	inter := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, tok := range strings.Fields(s) {
		set[tok] = struct{}{}
	}
	return set
}
