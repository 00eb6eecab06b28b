package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"deedscout/internal/records"
	"deedscout/internal/store"
)

// Attorneys renders contacts. Its CSV uses the seed file columns, so a
// scraped file can be passed straight to attorneys upload.
func Attorneys(title string, list []records.Attorney) *Table {
	t := &Table{
		Title:  title,
		Header: []string{"Name", "Firm", "Location", "Phone", "Email", "Website", "Practice Areas", "Source", "Verified"},
		Data:   list,
		writeCSV: func(w io.Writer) error {
			return records.WriteAttorneysCSV(w, list)
		},
	}
	for _, a := range list {
		verified := ""
		if a.Verified {
			verified = "yes"
		}
		t.Rows = append(t.Rows, []string{
			a.Name, a.Firm, a.Location(), a.Phone, a.Email, a.Website,
			strings.Join(a.PracticeAreas, "; "), a.Source, verified,
		})
	}
	return t
}

// Parcels renders parcel records.
func Parcels(title string, list []records.Parcel) *Table {
	t := &Table{
		Title:  title,
		Header: []string{"Parcel", "Owner", "Address", "County", "Deed", "Acreage", "Assessed Value"},
		Data:   list,
	}
	for _, p := range list {
		t.Rows = append(t.Rows, []string{
			p.ParcelID, p.Owner, p.Address, p.County, p.Deed.String(), p.Acreage, p.AssessedValue,
		})
	}
	return t
}

// Deeds renders register of deeds index rows.
func Deeds(title string, list []records.Deed) *Table {
	t := &Table{
		Title:  title,
		Header: []string{"Reference", "Recorded", "Type", "Grantors", "Grantees", "Image"},
		Data:   list,
	}
	for _, d := range list {
		recorded := ""
		if !d.Ref.Recorded.IsZero() {
			recorded = d.Ref.Recorded.Format("2006-01-02")
		}
		ref := d.Ref.String()
		if d.Ref.Instrument != "" && d.Ref.Book != "" {
			ref = fmt.Sprintf("%s (%s)", ref, d.Ref.Instrument)
		}
		t.Rows = append(t.Rows, []string{
			ref, recorded, d.DocType, strings.Join(d.Grantors, "; "), strings.Join(d.Grantees, "; "), d.ImageURL,
		})
	}
	return t
}

// Uploads renders upload ledger rows.
func Uploads(title string, list []store.Upload) *Table {
	t := &Table{
		Title:  title,
		Header: []string{"Key", "Status", "Record", "Uploaded", "Run"},
		Data:   list,
	}
	for _, u := range list {
		t.Rows = append(t.Rows, []string{
			u.Key, u.Status, u.RecordID, u.UploadedAt.Format(time.RFC3339), u.RunID,
		})
	}
	return t
}
