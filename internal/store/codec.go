// Package store implements the versioned queue snapshot: a CSV-encoded
// sequence of records addressed by an opaque version token, with a
// conditional save and a bounded-retry update loop on top of a blob backend.
//
// Snapshots preserve insertion order; the matchers rely on that order as the
// first-come-first-served processing order.
package store

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/tbourn/go-peerfinder-backend/internal/domain"
)

// Decode parses a CSV snapshot into records. The header row drives column
// mapping, so snapshots written by older deployments with missing columns
// still load; absent values are defaulted by normalize. Empty input yields an
// empty snapshot.
func Decode(data []byte) ([]domain.Record, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []domain.Record{}, nil
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1 // tolerate short rows from older snapshots

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if len(rows) == 0 {
		return []domain.Record{}, nil
	}

	col := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		col[strings.TrimSpace(name)] = i
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	recs := make([]domain.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		recs = append(recs, domain.Record{
			ID:                  field(row, "id"),
			Name:                field(row, "name"),
			Phone:               field(row, "phone"),
			Email:               field(row, "email"),
			Country:             field(row, "country"),
			Language:            field(row, "language"),
			Cohort:              field(row, "cohort"),
			TopicModule:         field(row, "topic_module"),
			LearningPreferences: field(row, "learning_preferences"),
			Availability:        field(row, "availability"),
			PreferredStudySetup: field(row, "preferred_study_setup"),
			KindOfSupport:       field(row, "kind_of_support"),
			ConnectionType:      domain.ConnectionType(field(row, "connection_type")),
			Timestamp:           field(row, "timestamp"),
			Matched:             strings.EqualFold(strings.TrimSpace(field(row, "matched")), "TRUE"),
			GroupID:             field(row, "group_id"),
			UnpairReason:        field(row, "unpair_reason"),
			MatchedTimestamp:    field(row, "matched_timestamp"),
		})
	}
	return normalize(recs), nil
}

// Encode writes records as a CSV snapshot with the canonical column order.
func Encode(recs []domain.Record) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(domain.Columns); err != nil {
		return nil, err
	}
	for i := range recs {
		r := &recs[i]
		matched := "FALSE"
		if r.Matched {
			matched = "TRUE"
		}
		row := []string{
			r.ID,
			r.Name,
			strings.TrimSpace(r.Phone),
			r.Email,
			r.Country,
			r.Language,
			r.Cohort,
			r.TopicModule,
			r.LearningPreferences,
			r.Availability,
			r.PreferredStudySetup,
			r.KindOfSupport,
			string(r.ConnectionType),
			r.Timestamp,
			matched,
			r.GroupID,
			r.UnpairReason,
			r.MatchedTimestamp,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// normalize repairs an incomplete snapshot: phone values are trimmed, the
// NaN artifacts older exports left in optional text fields collapse to "",
// and rows claiming matched without a group id are demoted to unmatched so
// the Matched ⇔ GroupID invariant holds for everything the store hands out.
// It is pure and applied exactly once per load.
func normalize(recs []domain.Record) []domain.Record {
	for i := range recs {
		r := &recs[i]
		r.Phone = strings.TrimSpace(r.Phone)
		r.KindOfSupport = cleanNaN(r.KindOfSupport)
		r.LearningPreferences = cleanNaN(r.LearningPreferences)
		r.GroupID = cleanNaN(r.GroupID)
		r.UnpairReason = cleanNaN(r.UnpairReason)
		r.MatchedTimestamp = cleanNaN(r.MatchedTimestamp)
		if r.Matched && r.GroupID == "" {
			r.Matched = false
		}
	}
	return recs
}

func cleanNaN(s string) string {
	if strings.EqualFold(strings.TrimSpace(s), "nan") {
		return ""
	}
	return s
}
