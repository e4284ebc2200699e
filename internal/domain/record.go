// Package domain defines the record model shared by the queue store and the
// matching engine. A Record is one join request: a person looking for a study
// group ("find") or offering/seeking one-to-one support ("offer"/"need").
//
// Records are persisted as rows of a single CSV snapshot, so every field is
// text-typed except Matched. The column order in Columns is the canonical
// persisted order and must not be reordered.
package domain

import (
	"time"
)

// ConnectionType is the role of a join request.
type ConnectionType string

const (
	// ConnectionFind seeks a same-criteria study group of a fixed size.
	ConnectionFind ConnectionType = "find"
	// ConnectionOffer offers support to someone who needs it.
	ConnectionOffer ConnectionType = "offer"
	// ConnectionNeed seeks support from someone offering it.
	ConnectionNeed ConnectionType = "need"
)

// Valid reports whether t is one of the three supported roles.
func (t ConnectionType) Valid() bool {
	switch t {
	case ConnectionFind, ConnectionOffer, ConnectionNeed:
		return true
	}
	return false
}

// Opposite returns the complementary role for pairing. It is only meaningful
// for offer/need; find has no opposite and maps to "".
func (t ConnectionType) Opposite() ConnectionType {
	switch t {
	case ConnectionOffer:
		return ConnectionNeed
	case ConnectionNeed:
		return ConnectionOffer
	}
	return ""
}

const (
	// Flexible is the availability sentinel that is compatible with any
	// other availability value.
	Flexible = "Flexible"

	// Unpaired is the sentinel written over email, cohort and topic_module
	// when a record withdraws. Match state is intentionally preserved.
	Unpaired = "unpaired"

	// TimeLayout is the persisted timestamp format (RFC 3339, UTC).
	TimeLayout = time.RFC3339
)

// GroupSizes is the fixed set of supported study-group sizes.
var GroupSizes = []int{2, 3, 5}

// ParseGroupSize maps a persisted preferred_study_setup value to its numeric
// group size. ok is false for anything outside the supported set.
func ParseGroupSize(s string) (size int, ok bool) {
	switch s {
	case "2":
		return 2, true
	case "3":
		return 3, true
	case "5":
		return 5, true
	}
	return 0, false
}

// Columns is the canonical persisted column order of a snapshot.
var Columns = []string{
	"id",
	"name",
	"phone",
	"email",
	"country",
	"language",
	"cohort",
	"topic_module",
	"learning_preferences",
	"availability",
	"preferred_study_setup",
	"kind_of_support",
	"connection_type",
	"timestamp",
	"matched",
	"group_id",
	"unpair_reason",
	"matched_timestamp",
}

// Record is one queued join request. Field names mirror the persisted column
// names; PreferredStudySetup is only meaningful for find records and
// KindOfSupport only for offer/need records.
type Record struct {
	ID                  string         `json:"id"`
	Name                string         `json:"name"`
	Phone               string         `json:"phone"`
	Email               string         `json:"email"`
	Country             string         `json:"country"`
	Language            string         `json:"language"`
	Cohort              string         `json:"cohort"`
	TopicModule         string         `json:"topic_module"`
	LearningPreferences string         `json:"learning_preferences"`
	Availability        string         `json:"availability"`
	PreferredStudySetup string         `json:"preferred_study_setup"`
	KindOfSupport       string         `json:"kind_of_support"`
	ConnectionType      ConnectionType `json:"connection_type"`
	Timestamp           string         `json:"timestamp"`
	Matched             bool           `json:"matched"`
	GroupID             string         `json:"group_id"`
	UnpairReason        string         `json:"unpair_reason"`
	MatchedTimestamp    string         `json:"matched_timestamp"`
}

// IsMatched reports the match state. The invariant Matched ⇔ GroupID != ""
// holds for every snapshot the store hands out (loads demote rows that
// violate it); IsMatched checks the boolean, which is the authoritative
// flag on read.
func (r *Record) IsMatched() bool { return r.Matched }

// JoinedAt parses the creation timestamp. ok is false when the stored value
// is missing or unparseable; such records are treated as not-yet-stale by
// the fallback matcher.
func (r *Record) JoinedAt() (t time.Time, ok bool) {
	if r.Timestamp == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(TimeLayout, r.Timestamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// MarkMatched assigns the record to a group and stamps the match time.
func (r *Record) MarkMatched(groupID string, now time.Time) {
	r.Matched = true
	r.GroupID = groupID
	r.MatchedTimestamp = now.UTC().Format(TimeLayout)
}

// Anonymize overwrites the contact and classification fields with the
// Unpaired sentinel and records the withdrawal reason. Matched and GroupID
// are left untouched: withdrawal erases identity, not history.
func (r *Record) Anonymize(reason string) {
	r.Email = Unpaired
	r.Cohort = Unpaired
	r.TopicModule = Unpaired
	r.UnpairReason = reason
}
