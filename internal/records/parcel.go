package records

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// DeedRef locates a recorded instrument, either by book and page or by
// instrument number.
type DeedRef struct {
	Book       string    `json:"book,omitempty"`
	Page       string    `json:"page,omitempty"`
	Instrument string    `json:"instrument,omitempty"`
	Recorded   time.Time `json:"recorded,omitempty"`
}

func (r DeedRef) IsZero() bool {
	return r.Book == "" && r.Page == "" && r.Instrument == ""
}

func (r DeedRef) String() string {
	switch {
	case r.Book != "" && r.Page != "":
		return fmt.Sprintf("Book %s Page %s", r.Book, r.Page)
	case r.Instrument != "":
		return r.Instrument
	default:
		return ""
	}
}

// Parcel is a county tax parcel with the deed that last conveyed it.
type Parcel struct {
	ParcelID      string  `json:"parcel_id"`
	Owner         string  `json:"owner"`
	Address       string  `json:"address"`
	City          string  `json:"city,omitempty"`
	County        string  `json:"county"`
	LegalDesc     string  `json:"legal_description,omitempty"`
	Acreage       string  `json:"acreage,omitempty"`
	AssessedValue string  `json:"assessed_value,omitempty"`
	Deed          DeedRef `json:"deed"`
}

// Deed is one row of a register of deeds index.
type Deed struct {
	Ref      DeedRef  `json:"ref"`
	County   string   `json:"county"`
	DocType  string   `json:"doc_type,omitempty"`
	Grantors []string `json:"grantors,omitempty"`
	Grantees []string `json:"grantees,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
}

var (
	bookPageRegex   = regexp.MustCompile(`(?i)^(?:book|bk)?\s*(\d{1,6})\s*(?:[/\-]|\s+(?:page|pg)\s*|\s+)(\d{1,5})$`)
	instrumentRegex = regexp.MustCompile(`^\d{7,14}$`)
)

// ParseDeedRef accepts "1234/567", "1234-567", "Book 1234 Page 567",
// "BK 1234 PG 567" or a bare instrument number.
func ParseDeedRef(s string) (DeedRef, error) {
	s = clean(s)
	if m := bookPageRegex.FindStringSubmatch(s); m != nil {
		return DeedRef{Book: trimZeros(m[1]), Page: trimZeros(m[2])}, nil
	}
	if instrumentRegex.MatchString(s) {
		return DeedRef{Instrument: s}, nil
	}
	return DeedRef{}, errors.Wrapf(ErrInvalidRecord, "unrecognized deed reference %q", s)
}

func trimZeros(s string) string {
	t := strings.TrimLeft(s, "0")
	if t == "" {
		return "0"
	}
	return t
}

// NormalizeParcelID strips separators from a PIN. It returns "" when the
// input is not a plausible parcel identifier.
func NormalizeParcelID(s string) string {
	digits := digitRegex.ReplaceAllString(s, "")
	if len(digits) < 6 || len(digits) > 14 {
		return ""
	}
	if strings.ContainsAny(strings.ToLower(s), "abcdefghijklmnopqrstuvwxyz") {
		return ""
	}
	return digits
}
