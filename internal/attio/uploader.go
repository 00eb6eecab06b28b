package attio

import (
	"context"
	"time"

	"deedscout/internal/log"
	"deedscout/internal/page"
	"deedscout/internal/records"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Upload statuses written to the ledger.
const (
	StatusCreated = "created"
	StatusExists  = "exists"
)

// Ledger remembers which contacts were already sent so re-runs skip them.
type Ledger interface {
	Uploaded(ctx context.Context, key string) (bool, error)
	MarkUploaded(ctx context.Context, key, recordID, status string) error
}

// Creator is the part of Client the uploader needs.
type Creator interface {
	CreatePerson(ctx context.Context, a records.Attorney) (*Record, error)
	CreateCompany(ctx context.Context, firm, website string) (*Record, error)
}

type Summary struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
	Invalid int `json:"invalid"`
}

func (s Summary) Total() int {
	return s.Created + s.Skipped + s.Failed + s.Invalid
}

// Uploader sends contacts one at a time with a fixed pause between requests.
// Failures are not retried.
type Uploader struct {
	Client Creator
	Delay  time.Duration
	// Ledger is optional.
	Ledger Ledger
	// Companies also creates a companies record for every firm seen.
	Companies bool
	DryRun    bool

	log zerolog.Logger
}

func (u *Uploader) Upload(ctx context.Context, list []records.Attorney) (Summary, error) {
	u.log = log.NewLogger("attio")

	var sum Summary
	firms := map[string]bool{}
	sent := 0

	for i, a := range list {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		a.Normalize()
		logger := u.log.With().Int("index", i).Str("name", a.Name).Logger()

		if err := a.Validate(); err != nil {
			logger.Warn().Err(err).Msg("skipping invalid contact")
			sum.Invalid++
			continue
		}

		keys := a.Keys()
		done, err := u.uploaded(ctx, keys)
		if err != nil {
			return sum, err
		}
		if done {
			logger.Debug().Msg("already uploaded")
			sum.Skipped++
			continue
		}

		if u.DryRun {
			logger.Info().Interface("values", PersonValues(a)).Msg("dry run")
			sum.Created++
			continue
		}

		if sent > 0 {
			if err := page.Sleep(ctx, u.Delay); err != nil {
				return sum, err
			}
		}
		sent++

		if u.Companies && a.Firm != "" && !firms[a.Firm] {
			firms[a.Firm] = true
			if err := u.createCompany(ctx, a); err != nil {
				return sum, err
			}
			if err := page.Sleep(ctx, u.Delay); err != nil {
				return sum, err
			}
		}

		rec, err := u.Client.CreatePerson(ctx, a)
		switch {
		case err == nil:
			logger.Info().Str("record_id", rec.ID.RecordID).Msg("created")
			sum.Created++
			if err := u.mark(ctx, keys, rec.ID.RecordID, StatusCreated); err != nil {
				return sum, err
			}
		case errors.Is(err, ErrAlreadyExists):
			logger.Info().Msg("already exists")
			sum.Skipped++
			if err := u.mark(ctx, keys, "", StatusExists); err != nil {
				return sum, err
			}
		case errors.Is(err, ErrUnauthorized):
			return sum, err
		case ctx.Err() != nil:
			return sum, ctx.Err()
		default:
			logger.Error().Err(err).Msg("upload failed")
			sum.Failed++
		}
	}
	return sum, nil
}

// createCompany only fails the run for errors that would fail every request.
func (u *Uploader) createCompany(ctx context.Context, a records.Attorney) error {
	rec, err := u.Client.CreateCompany(ctx, a.Firm, a.Website)
	switch {
	case err == nil:
		u.log.Info().Str("firm", a.Firm).Str("record_id", rec.ID.RecordID).Msg("company created")
	case errors.Is(err, ErrAlreadyExists):
		u.log.Debug().Str("firm", a.Firm).Msg("company already exists")
	case errors.Is(err, ErrUnauthorized):
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		u.log.Warn().Err(err).Str("firm", a.Firm).Msg("company upload failed")
	}
	return nil
}

// uploaded reports whether the ledger has the contact under any of its keys.
func (u *Uploader) uploaded(ctx context.Context, keys []string) (bool, error) {
	if u.Ledger == nil {
		return false, nil
	}
	for _, key := range keys {
		done, err := u.Ledger.Uploaded(ctx, key)
		if err != nil {
			return false, errors.Wrap(err, "failed to read upload ledger")
		}
		if done {
			return true, nil
		}
	}
	return false, nil
}

// mark records the outcome under every key so a later enrichment that adds
// an email still finds it.
func (u *Uploader) mark(ctx context.Context, keys []string, recordID, status string) error {
	if u.Ledger == nil {
		return nil
	}
	for _, key := range keys {
		if err := u.Ledger.MarkUploaded(ctx, key, recordID, status); err != nil {
			return errors.Wrap(err, "failed to write upload ledger")
		}
	}
	return nil
}
