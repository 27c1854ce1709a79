package normalize

import (
	"regexp"
	"sort"
	"strings"
)

// Address is a best-effort decomposition of a free-form Indian postal address.
type Address struct {
	House    string `json:"house,omitempty"`
	Street   string `json:"street,omitempty"`
	Locality string `json:"locality,omitempty"`
	City     string `json:"city,omitempty"`
	State    string `json:"state,omitempty"`
	Pincode  string `json:"pincode,omitempty"`
}

// IsZero reports whether no component was recognised.
func (a Address) IsZero() bool {
	return a == Address{}
}

// String renders the components back into a single comma-separated line.
func (a Address) String() string {
	parts := make([]string, 0, 6)
	for _, p := range []string{a.House, a.Street, a.Locality, a.City, a.State} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	line := strings.Join(parts, ", ")
	if a.Pincode != "" {
		if line != "" {
			line += " - "
		}
		line += a.Pincode
	}
	return line
}

// states lists Indian states and union territories with their canonical
// spelling. Aliases map historic or alternate names to the same value.
var states = []struct {
	name      string
	canonical string
}{
	{"Andhra Pradesh", "Andhra Pradesh"},
	{"Arunachal Pradesh", "Arunachal Pradesh"},
	{"Assam", "Assam"},
	{"Bihar", "Bihar"},
	{"Chhattisgarh", "Chhattisgarh"},
	{"Goa", "Goa"},
	{"Gujarat", "Gujarat"},
	{"Haryana", "Haryana"},
	{"Himachal Pradesh", "Himachal Pradesh"},
	{"Jharkhand", "Jharkhand"},
	{"Karnataka", "Karnataka"},
	{"Kerala", "Kerala"},
	{"Madhya Pradesh", "Madhya Pradesh"},
	{"Maharashtra", "Maharashtra"},
	{"Manipur", "Manipur"},
	{"Meghalaya", "Meghalaya"},
	{"Mizoram", "Mizoram"},
	{"Nagaland", "Nagaland"},
	{"Odisha", "Odisha"},
	{"Orissa", "Odisha"},
	{"Punjab", "Punjab"},
	{"Rajasthan", "Rajasthan"},
	{"Sikkim", "Sikkim"},
	{"Tamil Nadu", "Tamil Nadu"},
	{"Telangana", "Telangana"},
	{"Tripura", "Tripura"},
	{"Uttar Pradesh", "Uttar Pradesh"},
	{"Uttarakhand", "Uttarakhand"},
	{"Uttaranchal", "Uttarakhand"},
	{"West Bengal", "West Bengal"},
	{"Andaman and Nicobar Islands", "Andaman and Nicobar Islands"},
	{"Chandigarh", "Chandigarh"},
	{"Dadra and Nagar Haveli and Daman and Diu", "Dadra and Nagar Haveli and Daman and Diu"},
	{"NCT of Delhi", "Delhi"},
	{"Delhi", "Delhi"},
	{"Jammu and Kashmir", "Jammu and Kashmir"},
	{"Ladakh", "Ladakh"},
	{"Lakshadweep", "Lakshadweep"},
	{"Puducherry", "Puducherry"},
	{"Pondicherry", "Puducherry"},
}

type statePattern struct {
	re        *regexp.Regexp
	canonical string
}

// statePatterns is ordered longest name first so "Dadra and Nagar Haveli and
// Daman and Diu" wins over any shorter overlap.
var statePatterns = func() []statePattern {
	sorted := append(states[:0:0], states...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i].name) > len(sorted[j].name) })
	out := make([]statePattern, len(sorted))
	for i, s := range sorted {
		out[i] = statePattern{
			re:        regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(s.name) + `\b`),
			canonical: s.canonical,
		}
	}
	return out
}()

var (
	pincodeRe   = regexp.MustCompile(`(?:^|\D)(\d{6})(?:\D|$)`)
	separatorRe = regexp.MustCompile(`\s+[-–]\s+`)
)

// ParseAddress splits raw into components. The last standalone six digit run
// is the pincode and a recognised state or union territory is the state. The
// comma separated segments are then assigned by position: with four or more,
// house, street and locality come first and the segment before the state is
// the city; with two or three, locality then city; a single segment is the
// locality. Text that cannot be placed ends up in Locality. Never fails.
func ParseAddress(raw string) Address {
	var addr Address
	text := CollapseSpaces(raw)
	if text == "" {
		return addr
	}

	if locs := pincodeRe.FindAllStringSubmatchIndex(text, -1); len(locs) > 0 {
		last := locs[len(locs)-1]
		addr.Pincode = text[last[2]:last[3]]
		text = text[:last[2]] + text[last[3]:]
	}

	text = separatorRe.ReplaceAllString(text, ", ")
	var parts []string
	for _, seg := range strings.Split(text, ",") {
		if seg = trimSegment(seg); seg != "" {
			parts = append(parts, seg)
		}
	}

	// Locate the state, scanning from the end so the last mention wins.
	stateIdx := -1
	for i := len(parts) - 1; i >= 0 && stateIdx < 0; i-- {
		for _, sp := range statePatterns {
			loc := sp.re.FindStringIndex(parts[i])
			if loc == nil {
				continue
			}
			addr.State = sp.canonical
			stateIdx = i
			parts[i] = trimSegment(parts[i][:loc[0]] + " " + parts[i][loc[1]:])
			break
		}
	}

	// The segment immediately preceding the state token is the city. When the
	// state shares its segment with other text, that text is the candidate.
	n := len(parts)
	cityIdx := n - 1
	if stateIdx >= 0 {
		cityIdx = stateIdx
		if parts[stateIdx] == "" {
			cityIdx = stateIdx - 1
		}
	}

	for i, p := range parts {
		if p == "" {
			continue
		}
		switch {
		case n >= 4 && i == cityIdx:
			addr.City = p
		case n >= 4 && i == 0:
			addr.House = p
		case n >= 4 && i == 1:
			addr.Street = p
		case n < 4 && n > 1 && i == 1:
			addr.City = p
		default:
			addr.Locality = joinNonEmpty(addr.Locality, p)
		}
	}
	return addr
}

func trimSegment(s string) string {
	return strings.Trim(CollapseSpaces(s), " -–.;:")
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + ", " + b
	}
}
