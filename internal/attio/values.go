package attio

import (
	"context"
	"regexp"
	"strings"

	"deedscout/internal/records"
)

var nonDigit = regexp.MustCompile(`\D`)

// PersonValues maps a contact onto standard attributes of the people object.
// Fields without a standard attribute are folded into description.
func PersonValues(a records.Attorney) map[string]any {
	first, last := splitName(a.Name)
	values := map[string]any{
		"name": []map[string]string{{
			"first_name": first,
			"last_name":  last,
			"full_name":  a.Name,
		}},
		"job_title": "Attorney",
	}
	if a.Email != "" {
		values["email_addresses"] = []string{a.Email}
	}
	if phone := e164(a.Phone); phone != "" {
		values["phone_numbers"] = []map[string]string{{
			"original_phone_number": phone,
			"country_code":          "US",
		}}
	}
	if desc := describe(a); desc != "" {
		values["description"] = desc
	}
	return values
}

// CompanyValues maps a firm onto the companies object.
func CompanyValues(firm, website string) map[string]any {
	values := map[string]any{"name": firm}
	if domain := domainOf(website); domain != "" {
		values["domains"] = []string{domain}
	}
	return values
}

// CreatePerson creates a people record for a contact.
func (c *Client) CreatePerson(ctx context.Context, a records.Attorney) (*Record, error) {
	return c.create(ctx, "people", PersonValues(a))
}

// CreateCompany creates a companies record for a firm.
func (c *Client) CreateCompany(ctx context.Context, firm, website string) (*Record, error) {
	return c.create(ctx, "companies", CompanyValues(firm, website))
}

func splitName(name string) (string, string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
}

// e164 only handles NANP numbers; anything else is dropped.
func e164(phone string) string {
	digits := nonDigit.ReplaceAllString(phone, "")
	switch {
	case len(digits) == 10:
		return "+1" + digits
	case len(digits) == 11 && digits[0] == '1':
		return "+" + digits
	}
	return ""
}

func domainOf(website string) string {
	w := strings.ToLower(strings.TrimSpace(website))
	w = strings.TrimPrefix(w, "https://")
	w = strings.TrimPrefix(w, "http://")
	w = strings.TrimPrefix(w, "www.")
	if i := strings.IndexAny(w, "/?#"); i >= 0 {
		w = w[:i]
	}
	return w
}

func describe(a records.Attorney) string {
	var lines []string
	add := func(label, value string) {
		if value != "" {
			lines = append(lines, label+": "+value)
		}
	}
	add("Firm", a.Firm)
	add("Location", a.Location())
	add("Practice areas", strings.Join(a.PracticeAreas, ", "))
	add("Website", a.Website)
	add("Source", a.Source)
	if a.Verified {
		lines = append(lines, "Verified against website")
	}
	return strings.Join(lines, "\n")
}
