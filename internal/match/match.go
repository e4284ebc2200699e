// Package match implements the matching engine: duplicate detection on join,
// exact-criteria group formation, opposite-role pairing, and the relaxed
// staleness-based fallback selection.
//
// Every function here is a pure computation over one snapshot. Mutation
// happens through pointers into the caller's record slice; the caller owns
// committing the mutated snapshot. That makes a whole matching pass safe to
// rerun after an optimistic-concurrency conflict.
package match

import (
	"time"

	"github.com/google/uuid"

	"github.com/tbourn/go-peerfinder-backend/internal/domain"
)

// NewGroupID mints the shared identifier for a freshly formed group.
func NewGroupID() string { return "group-" + uuid.NewString() }

// NewFallbackGroupID mints a group identifier for the relaxed fallback pass,
// distinguishable from exact-criteria groups in exports.
func NewFallbackGroupID() string { return "group-fallback-" + uuid.NewString() }

// AvailabilityCompatible reports whether two availability values can share a
// group: either value being the Flexible sentinel matches anything, otherwise
// they must be textually equal. Symmetric and reflexive.
func AvailabilityCompatible(a, b string) bool {
	if a == domain.Flexible || b == domain.Flexible {
		return true
	}
	return a == b
}

// FindByID returns a pointer to the record with the given id, or nil.
func FindByID(recs []domain.Record, id string) *domain.Record {
	for i := range recs {
		if recs[i].ID == id {
			return &recs[i]
		}
	}
	return nil
}

// FindDuplicate locates an existing record for a join candidate: same phone
// or email, same cohort, same preferred_study_setup, same connection type.
// The first hit in store order wins; nil means the candidate is new.
func FindDuplicate(recs []domain.Record, cand domain.Record) *domain.Record {
	for i := range recs {
		r := &recs[i]
		if r.Phone != cand.Phone && r.Email != cand.Email {
			continue
		}
		if r.Cohort != cand.Cohort ||
			r.PreferredStudySetup != cand.PreferredStudySetup ||
			r.ConnectionType != cand.ConnectionType {
			continue
		}
		return r
	}
	return nil
}

// GroupEligible selects, in store order, the unmatched find records that can
// join a group with u: same country, cohort, topic module and requested size,
// with compatible availability. u itself is part of the eligible set.
func GroupEligible(recs []domain.Record, u *domain.Record) []*domain.Record {
	var out []*domain.Record
	for i := range recs {
		r := &recs[i]
		if r.Matched || r.ConnectionType != domain.ConnectionFind {
			continue
		}
		if r.Country != u.Country ||
			r.Cohort != u.Cohort ||
			r.TopicModule != u.TopicModule ||
			r.PreferredStudySetup != u.PreferredStudySetup {
			continue
		}
		if !AvailabilityCompatible(r.Availability, u.Availability) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// FormGroups greedily buckets eligible records into groups of exactly size
// members, walking the set in order and marking each full bucket matched
// under a fresh group id. A bucket whose ids are not pairwise distinct (a
// snapshot inconsistency) is skipped defensively. Leftovers smaller than
// size stay queued. Returns the number of groups formed.
func FormGroups(eligible []*domain.Record, size int, now time.Time, newID func() string) int {
	formed := 0
	for len(eligible) >= size {
		bucket := eligible[:size]
		if !distinctIDs(bucket) {
			eligible = eligible[size:]
			continue
		}
		id := newID()
		for _, r := range bucket {
			r.MarkMatched(id, now)
		}
		formed++
		eligible = eligible[size:]
	}
	return formed
}

// PairCandidate returns the first unmatched record of the opposite role that
// shares u's country and cohort with compatible availability, or nil.
func PairCandidate(recs []domain.Record, u *domain.Record) *domain.Record {
	opposite := u.ConnectionType.Opposite()
	if opposite == "" {
		return nil
	}
	for i := range recs {
		r := &recs[i]
		if r.Matched || r.ConnectionType != opposite {
			continue
		}
		if r.Country != u.Country || r.Cohort != u.Cohort {
			continue
		}
		if !AvailabilityCompatible(r.Availability, u.Availability) {
			continue
		}
		return r
	}
	return nil
}

// StaleFinds selects, in store order, the unmatched find records whose
// creation timestamp is older than maxAge relative to now. Records with a
// missing or unparseable timestamp are treated as not yet stale.
func StaleFinds(recs []domain.Record, now time.Time, maxAge time.Duration) []*domain.Record {
	var out []*domain.Record
	for i := range recs {
		r := &recs[i]
		if r.Matched || r.ConnectionType != domain.ConnectionFind {
			continue
		}
		joined, ok := r.JoinedAt()
		if !ok {
			continue
		}
		if now.Sub(joined) > maxAge {
			out = append(out, r)
		}
	}
	return out
}

// BySize filters a selection down to records requesting the given group size.
func BySize(recs []*domain.Record, size string) []*domain.Record {
	var out []*domain.Record
	for _, r := range recs {
		if r.PreferredStudySetup == size {
			out = append(out, r)
		}
	}
	return out
}

// MembersOf returns copies of every record sharing groupID. The group is a
// derived view; there is no stored group entity.
func MembersOf(recs []domain.Record, groupID string) []domain.Record {
	if groupID == "" {
		return nil
	}
	var out []domain.Record
	for i := range recs {
		if recs[i].GroupID == groupID {
			out = append(out, recs[i])
		}
	}
	return out
}

func distinctIDs(bucket []*domain.Record) bool {
	seen := make(map[string]struct{}, len(bucket))
	for _, r := range bucket {
		if _, dup := seen[r.ID]; dup {
			return false
		}
		seen[r.ID] = struct{}{}
	}
	return true
}
