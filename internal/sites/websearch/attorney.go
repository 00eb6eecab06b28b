package websearch

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"deedscout/internal/records"
)

// Query is a parsed "<practice area> attorney <city, ST>" search.
type Query struct {
	Raw      string
	Practice string
	City     string
	State    string
}

var roleRegex = regexp.MustCompile(`(?i)\s+(attorneys?|lawyers?|law firms?)(\s+in)?\s+`)

// ParseQuery splits a search string around its "attorney"/"lawyer" keyword.
func ParseQuery(raw string) Query {
	raw = strings.Join(strings.Fields(raw), " ")
	q := Query{Raw: raw}

	loc := roleRegex.FindStringIndex(raw)
	if loc == nil {
		return q
	}
	q.Practice = strings.TrimSpace(raw[:loc[0]])

	where := strings.TrimSpace(raw[loc[1]:])
	if i := strings.LastIndex(where, ","); i >= 0 {
		q.City = strings.TrimSpace(where[:i])
		q.State = strings.ToUpper(strings.TrimSpace(where[i+1:]))
	} else {
		q.City = where
	}
	return q
}

// directories are listing sites; their pages describe an attorney but are
// not the attorney's own website.
var directories = []string{
	"avvo.com", "justia.com", "findlaw.com", "lawyers.com", "martindale.com",
	"superlawyers.com", "yelp.com", "facebook.com", "linkedin.com", "nolo.com",
	"bbb.org", "yellowpages.com", "lawinfo.com", "expertise.com",
}

var (
	phoneRegex    = regexp.MustCompile(`\(?\b\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)
	titleSplit    = regexp.MustCompile(`\s+[-|–—:]\s+|\s*\|\s*`)
	firmWords     = regexp.MustCompile(`(?i)\b(law|legal|firm|llp|llc|pllc|p\.?a\.?|attorneys|lawyers|associates|group|partners)\b|&`)
	noiseWords    = regexp.MustCompile(`(?i)\b(best|top|near|find|how|what|why|guide|review|reviews|rated|\d+)\b`)
	honorificTail = regexp.MustCompile(`(?i),?\s+(esq\.?|j\.?d\.?|attorney at law)$`)
)

// Host returns the registrable host of a URL without "www.".
func Host(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func isDirectory(host string) bool {
	for _, d := range directories {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// looksLikePerson accepts 2-4 capitalized words with no firm or noise words.
func looksLikePerson(s string) bool {
	s = honorificTail.ReplaceAllString(strings.TrimSpace(s), "")
	words := strings.Fields(s)
	if len(words) < 2 || len(words) > 4 {
		return false
	}
	if firmWords.MatchString(s) || noiseWords.MatchString(s) {
		return false
	}
	for _, w := range words {
		r := []rune(w)
		if !unicode.IsUpper(r[0]) {
			return false
		}
	}
	return true
}

// ToAttorney maps a search result to a contact. It reports false for results
// that name neither a person nor a firm, such as articles and list pages.
func ToAttorney(r Result, q Query) (records.Attorney, bool) {
	var name, firm string
	for _, part := range titleSplit.Split(r.Title, -1) {
		part = strings.TrimSpace(part)
		switch {
		case part == "":
		case name == "" && looksLikePerson(part):
			name = honorificTail.ReplaceAllString(part, "")
		case firm == "" && firmWords.MatchString(part) && !noiseWords.MatchString(part):
			firm = part
		}
	}
	if name == "" && firm == "" {
		return records.Attorney{}, false
	}
	if name == "" {
		name = firm
	}

	host := Host(r.URL)
	a := records.Attorney{
		Name:   name,
		Firm:   firm,
		City:   q.City,
		State:  q.State,
		Phone:  phoneRegex.FindString(r.Snippet),
		Source: "websearch",
	}
	if q.Practice != "" {
		a.PracticeAreas = []string{q.Practice}
	}
	if host != "" {
		if isDirectory(host) {
			a.Source = "websearch:" + host
		} else {
			a.Website = "https://" + host
		}
	}
	a.Normalize()
	return a, true
}
