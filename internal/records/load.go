package records

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// LoadAttorneys reads a seed file of contacts. ".csv" files need a header
// row; everything else is parsed as a JSON array.
func LoadAttorneys(path string) ([]Attorney, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open seed file")
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return ReadAttorneysCSV(f)
	}

	var list []Attorney
	if err := json.NewDecoder(f).Decode(&list); err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s", path)
	}
	return list, nil
}

// ReadAttorneysCSV parses contacts from CSV. Column names are matched case
// insensitively; unknown columns are ignored and practice_areas is split on ";".
func ReadAttorneysCSV(r io.Reader) ([]Attorney, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read csv header")
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := cols["name"]; !ok {
		return nil, errors.Wrap(ErrInvalidRecord, "csv has no name column")
	}

	var list []Attorney
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read csv line %d", line)
		}
		get := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(row) {
				return ""
			}
			return row[i]
		}

		a := Attorney{
			Name:    get("name"),
			Firm:    get("firm"),
			City:    get("city"),
			State:   get("state"),
			Phone:   get("phone"),
			Email:   get("email"),
			Website: get("website"),
			Source:  get("source"),
		}
		if areas := get("practice_areas"); areas != "" {
			a.PracticeAreas = strings.Split(areas, ";")
		}
		if v := get("verified"); v != "" {
			a.Verified, _ = strconv.ParseBool(v)
		}
		list = append(list, a)
	}
	return list, nil
}

// WriteAttorneysCSV writes contacts with the same header ReadAttorneysCSV expects.
func WriteAttorneysCSV(w io.Writer, list []Attorney) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"name", "firm", "city", "state", "phone", "email", "website", "practice_areas", "source", "verified"})
	for _, a := range list {
		_ = cw.Write([]string{
			a.Name, a.Firm, a.City, a.State, a.Phone, a.Email, a.Website,
			strings.Join(a.PracticeAreas, ";"), a.Source, strconv.FormatBool(a.Verified),
		})
	}
	cw.Flush()
	return cw.Error()
}
