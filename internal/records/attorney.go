package records

import (
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidRecord is wrapped by every validation failure.
var ErrInvalidRecord = errors.New("invalid record")

// Attorney is a contact gathered from a directory, a web search or a seed file.
type Attorney struct {
	Name          string   `json:"name"`
	Firm          string   `json:"firm,omitempty"`
	City          string   `json:"city,omitempty"`
	State         string   `json:"state,omitempty"`
	Phone         string   `json:"phone,omitempty"`
	Email         string   `json:"email,omitempty"`
	Website       string   `json:"website,omitempty"`
	PracticeAreas []string `json:"practice_areas,omitempty"`
	Source        string   `json:"source,omitempty"`
	Verified      bool     `json:"verified"`
}

var (
	spaceRegex = regexp.MustCompile(`\s+`)
	digitRegex = regexp.MustCompile(`\D`)
	emailRegex = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)
)

func clean(s string) string {
	return strings.TrimSpace(spaceRegex.ReplaceAllString(s, " "))
}

// Normalize cleans up the record in place so that records from different
// sources compare equal.
func (a *Attorney) Normalize() {
	a.Name = clean(a.Name)
	a.Firm = clean(a.Firm)
	a.City = clean(a.City)
	a.State = strings.ToUpper(clean(a.State))
	a.Email = strings.ToLower(clean(a.Email))
	a.Email = strings.TrimPrefix(a.Email, "mailto:")
	a.Phone = FormatPhone(a.Phone)
	a.Website = NormalizeWebsite(a.Website)
	a.Source = clean(a.Source)

	seen := make(map[string]bool, len(a.PracticeAreas))
	areas := make([]string, 0, len(a.PracticeAreas))
	for _, p := range a.PracticeAreas {
		p = clean(p)
		if p == "" || seen[strings.ToLower(p)] {
			continue
		}
		seen[strings.ToLower(p)] = true
		areas = append(areas, p)
	}
	sort.Slice(areas, func(i, j int) bool {
		return strings.ToLower(areas[i]) < strings.ToLower(areas[j])
	})
	a.PracticeAreas = areas
}

// Validate only checks what the CRM would reject outright.
func (a Attorney) Validate() error {
	if clean(a.Name) == "" {
		return errors.Wrap(ErrInvalidRecord, "name is required")
	}
	if len(a.Name) > 256 {
		return errors.Wrap(ErrInvalidRecord, "name is too long")
	}
	if a.Email != "" && !emailRegex.MatchString(strings.ToLower(a.Email)) {
		return errors.Wrapf(ErrInvalidRecord, "malformed email %q", a.Email)
	}
	return nil
}

// Key identifies the contact for deduplication and the upload ledger.
func (a Attorney) Key() string {
	if email := strings.ToLower(clean(a.Email)); email != "" {
		return email
	}
	return a.nameKey()
}

// Keys lists Key and, once an email has replaced it, the name|firm key the
// contact was known by before. Ledger lookups must try all of them.
func (a Attorney) Keys() []string {
	if key := a.Key(); key != a.nameKey() {
		return []string{key, a.nameKey()}
	}
	return []string{a.nameKey()}
}

func (a Attorney) nameKey() string {
	return strings.ToLower(clean(a.Name)) + "|" + strings.ToLower(clean(a.Firm))
}

// Location renders "City, ST" with whatever parts are present.
func (a Attorney) Location() string {
	switch {
	case a.City != "" && a.State != "":
		return a.City + ", " + a.State
	case a.City != "":
		return a.City
	default:
		return a.State
	}
}

// FormatPhone formats 10 and 11 digit US numbers as (AAA) BBB-CCCC. Anything
// else is returned trimmed but otherwise untouched.
func FormatPhone(raw string) string {
	raw = clean(raw)
	raw = strings.TrimPrefix(raw, "tel:")
	digits := digitRegex.ReplaceAllString(raw, "")
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		return raw
	}
	return "(" + digits[:3] + ") " + digits[3:6] + "-" + digits[6:]
}

// NormalizeWebsite adds a scheme to bare hosts and drops a trailing slash.
func NormalizeWebsite(raw string) string {
	raw = clean(raw)
	if raw == "" {
		return ""
	}
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		raw = "https://" + raw
	}
	return strings.TrimSuffix(raw, "/")
}
