// Package services – QueueService
//
// This file implements the QueueService, which owns the peer-finder queue
// lifecycle: enrolling participants, running match passes, unpairing, the
// relaxed fallback sweep for long-waiting participants, and admin exports.
// All writes go through the snapshot store's retry loop, so every mutation
// closure derives its decisions from the snapshot it is handed and never
// from state captured before the call.
//
// Service-level errors (ErrNotFound, *ValidationError) are returned for
// predictable cases so handlers can map them to HTTP results consistently.
package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-peerfinder-backend/internal/domain"
	"github.com/tbourn/go-peerfinder-backend/internal/match"
	"github.com/tbourn/go-peerfinder-backend/internal/notify"
	"github.com/tbourn/go-peerfinder-backend/internal/store"
)

// DefaultFallbackMaxAge is how long a group-seeking record may wait before
// the fallback sweep picks it up.
const DefaultFallbackMaxAge = 96 * time.Hour

// QueueService provides queue-level operations: joining, matching,
// unpairing, fallback sweeps, and exports. It is safe for concurrent use;
// conflicting writers are serialized by the store's optimistic retry loop.
type QueueService struct {
	// Store is the versioned snapshot store holding the queue.
	Store *store.Queue
	// Notifier delivers match and waiting notices. Delivery failures are
	// logged and counted but never fail the triggering operation.
	Notifier notify.Notifier

	// StatusCheckURL is included in waiting notices so participants can
	// poll their own record.
	StatusCheckURL string
	// FallbackMaxAge is the waiting period before RunFallbackPass considers
	// a record stale. Zero means DefaultFallbackMaxAge.
	FallbackMaxAge time.Duration

	// Now and NewID are indirection points for tests.
	Now   func() time.Time
	NewID func() string
}

// NewQueueService constructs a QueueService with production defaults.
func NewQueueService(st *store.Queue, n notify.Notifier, statusCheckURL string) *QueueService {
	return &QueueService{
		Store:          st,
		Notifier:       n,
		StatusCheckURL: statusCheckURL,
		FallbackMaxAge: DefaultFallbackMaxAge,
		Now:            time.Now,
		NewID:          uuid.NewString,
	}
}

func (s *QueueService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *QueueService) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func (s *QueueService) maxAge() time.Duration {
	if s.FallbackMaxAge > 0 {
		return s.FallbackMaxAge
	}
	return DefaultFallbackMaxAge
}

// JoinRequest carries a participant's enrollment form.
type JoinRequest struct {
	Name                string
	Phone               string
	Email               string
	Country             string
	Language            string
	Cohort              string
	TopicModule         string
	LearningPreferences string
	Availability        string
	PreferredStudySetup string
	KindOfSupport       string
	ConnectionType      string
}

// JoinResult reports the outcome of an enrollment.
type JoinResult struct {
	// ID identifies the participant's record. For a duplicate submission
	// this is the ID of the record already in the queue.
	ID string
	// Existing is true when the submission matched an earlier record and
	// no new record was added.
	Existing bool
	// Matched and GroupID mirror the record's current match state, so a
	// duplicate resubmission from an already-matched participant learns
	// its group immediately.
	Matched bool
	GroupID string
	Members []domain.Record
}

// MatchResult reports the outcome of a match attempt.
type MatchResult struct {
	Matched bool
	GroupID string
	Members []domain.Record
}

// StatusResult is the read-only view of a single record: the record
// itself plus its current match state and, when matched, its group.
type StatusResult struct {
	Record  domain.Record
	Matched bool
	GroupID string
	Members []domain.Record
}

// Join validates and enrolls a participant. Resubmissions that the
// duplicate rule recognizes return the earlier record instead of adding
// a second one, making enrollment retry-safe for clients.
func (s *QueueService) Join(ctx context.Context, req JoinRequest) (*JoinResult, error) {
	tr := otel.Tracer("services/QueueService")
	ctx, span := tr.Start(ctx, "Join",
		trace.WithAttributes(attribute.String("queue.connection_type", req.ConnectionType)),
	)
	defer span.End()

	cand, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	var res *JoinResult
	_, err = s.Store.Update(ctx, func(recs []domain.Record) ([]domain.Record, bool, error) {
		res = nil
		if dup := match.FindDuplicate(recs, *cand); dup != nil {
			res = &JoinResult{ID: dup.ID, Existing: true, Matched: dup.IsMatched(), GroupID: dup.GroupID}
			if dup.IsMatched() && dup.GroupID != "" {
				res.Members = match.MembersOf(recs, dup.GroupID)
			}
			return recs, false, nil
		}
		rec := *cand
		rec.ID = s.newID()
		rec.Timestamp = s.now().UTC().Format(domain.TimeLayout)
		res = &JoinResult{ID: rec.ID}
		return append(recs, rec), true, nil
	})
	if err != nil {
		return nil, s.wrapStoreErr(err)
	}

	if !res.Existing {
		queueJoins.Inc()
		if err := s.Notifier.SendWaitingNotice(ctx, cand.Email, cand.Name, res.ID, s.StatusCheckURL); err != nil {
			notifyFailures.Inc()
			log.Warn().Err(err).Str("record_id", res.ID).Msg("waiting notice failed")
		}
	}
	return res, nil
}

// validate normalizes and checks an enrollment form, returning the record
// candidate to insert. Emails are lowercased so the duplicate rule is
// case-insensitive on the address.
func (s *QueueService) validate(req JoinRequest) (*domain.Record, error) {
	rec := domain.Record{
		Name:                strings.TrimSpace(req.Name),
		Phone:               strings.TrimSpace(req.Phone),
		Email:               strings.ToLower(strings.TrimSpace(req.Email)),
		Country:             strings.TrimSpace(req.Country),
		Language:            strings.TrimSpace(req.Language),
		Cohort:              strings.TrimSpace(req.Cohort),
		TopicModule:         strings.TrimSpace(req.TopicModule),
		LearningPreferences: strings.TrimSpace(req.LearningPreferences),
		Availability:        strings.TrimSpace(req.Availability),
		PreferredStudySetup: strings.TrimSpace(req.PreferredStudySetup),
		KindOfSupport:       strings.TrimSpace(req.KindOfSupport),
		ConnectionType:      domain.ConnectionType(strings.ToLower(strings.TrimSpace(req.ConnectionType))),
	}

	required := []struct{ field, value string }{
		{"name", rec.Name},
		{"phone", rec.Phone},
		{"email", rec.Email},
		{"country", rec.Country},
		{"language", rec.Language},
		{"cohort", rec.Cohort},
		{"topic_module", rec.TopicModule},
		{"learning_preferences", rec.LearningPreferences},
		{"availability", rec.Availability},
	}
	for _, r := range required {
		if r.value == "" {
			return nil, invalidf(r.field, "is required")
		}
	}
	if !strings.HasPrefix(rec.Phone, "+") || len(rec.Phone) < 7 {
		return nil, invalidf("phone", "must be in international format, e.g. +306912345678")
	}
	if !rec.ConnectionType.Valid() {
		return nil, invalidf("connection_type", "must be one of find, offer, need")
	}

	switch rec.ConnectionType {
	case domain.ConnectionFind:
		if _, ok := domain.ParseGroupSize(rec.PreferredStudySetup); !ok {
			return nil, invalidf("preferred_study_setup", "must be a supported group size (2, 3 or 5)")
		}
		// Offers of help are meaningless on a group request.
		rec.KindOfSupport = ""
	case domain.ConnectionOffer, domain.ConnectionNeed:
		if rec.KindOfSupport == "" {
			return nil, invalidf("kind_of_support", "is required for offer and need requests")
		}
		rec.PreferredStudySetup = ""
	}
	return &rec, nil
}

// AttemptMatch runs a matching pass for the given record. Group seekers
// trigger a full greedy pass over everyone eligible to group with them,
// so a single call may form several groups; offer/need records are paired
// with the oldest waiting counterpart. Already-matched records return
// their group without touching the queue.
func (s *QueueService) AttemptMatch(ctx context.Context, id string) (*MatchResult, error) {
	tr := otel.Tracer("services/QueueService")
	ctx, span := tr.Start(ctx, "AttemptMatch",
		trace.WithAttributes(attribute.String("queue.record_id", id)),
	)
	defer span.End()

	var (
		res       *MatchResult
		newGroups []string
	)
	out, err := s.Store.Update(ctx, func(recs []domain.Record) ([]domain.Record, bool, error) {
		res = nil
		newGroups = newGroups[:0]

		u := match.FindByID(recs, id)
		if u == nil {
			return nil, false, ErrNotFound
		}
		if u.IsMatched() {
			res = &MatchResult{Matched: true, GroupID: u.GroupID, Members: match.MembersOf(recs, u.GroupID)}
			return recs, false, nil
		}

		now := s.now().UTC()
		switch u.ConnectionType {
		case domain.ConnectionFind:
			size, ok := domain.ParseGroupSize(u.PreferredStudySetup)
			if !ok {
				return nil, false, invalidf("preferred_study_setup", "record %s has unsupported group size %q", id, u.PreferredStudySetup)
			}
			eligible := match.GroupEligible(recs, u)
			formed := match.FormGroups(eligible, size, now, func() string {
				gid := match.NewGroupID()
				newGroups = append(newGroups, gid)
				return gid
			})
			if u.IsMatched() {
				res = &MatchResult{Matched: true, GroupID: u.GroupID, Members: match.MembersOf(recs, u.GroupID)}
			} else {
				res = &MatchResult{}
			}
			return recs, formed > 0, nil

		case domain.ConnectionOffer, domain.ConnectionNeed:
			cand := match.PairCandidate(recs, u)
			if cand == nil {
				res = &MatchResult{}
				return recs, false, nil
			}
			gid := match.NewGroupID()
			u.MarkMatched(gid, now)
			cand.MarkMatched(gid, now)
			newGroups = append(newGroups, gid)
			res = &MatchResult{Matched: true, GroupID: gid, Members: match.MembersOf(recs, gid)}
			return recs, true, nil

		default:
			return nil, false, invalidf("connection_type", "record %s has unknown connection type %q", id, u.ConnectionType)
		}
	})
	if err != nil {
		return nil, s.wrapStoreErr(err)
	}

	if len(newGroups) > 0 {
		mode := "exact"
		if u := match.FindByID(out, id); u != nil && u.ConnectionType != domain.ConnectionFind {
			mode = "pair"
		}
		groupsFormed.WithLabelValues(mode).Add(float64(len(newGroups)))
		s.notifyGroups(ctx, out, newGroups)
	}
	return res, nil
}

// Status returns the record together with its current match state,
// without mutating the queue.
func (s *QueueService) Status(ctx context.Context, id string) (*StatusResult, error) {
	ctx, span := otel.Tracer("services/QueueService").Start(ctx, "Status",
		trace.WithAttributes(attribute.String("queue.record_id", id)),
	)
	defer span.End()

	recs, _, err := s.Store.Load(ctx)
	if err != nil {
		return nil, s.wrapStoreErr(err)
	}
	u := match.FindByID(recs, id)
	if u == nil {
		return nil, ErrNotFound
	}
	res := &StatusResult{Record: *u, Matched: u.IsMatched(), GroupID: u.GroupID}
	if u.IsMatched() {
		res.Members = match.MembersOf(recs, u.GroupID)
	}
	return res, nil
}

// Unpair anonymizes a record's personal data, recording the reason. When
// the record belongs to a group every member is anonymized with it, since
// a dissolved group is not re-entered into the queue.
func (s *QueueService) Unpair(ctx context.Context, id, reason string) (int, error) {
	ctx, span := otel.Tracer("services/QueueService").Start(ctx, "Unpair",
		trace.WithAttributes(attribute.String("queue.record_id", id)),
	)
	defer span.End()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return 0, invalidf("reason", "is required")
	}

	affected := 0
	_, err := s.Store.Update(ctx, func(recs []domain.Record) ([]domain.Record, bool, error) {
		affected = 0
		u := match.FindByID(recs, id)
		if u == nil {
			return nil, false, ErrNotFound
		}
		// Sweep the group only when the record actually carries one;
		// matching on an empty group id would select the whole queue.
		if u.IsMatched() && u.GroupID != "" {
			gid := u.GroupID
			for i := range recs {
				if recs[i].GroupID == gid {
					recs[i].Anonymize(reason)
					affected++
				}
			}
		} else {
			u.Anonymize(reason)
			affected = 1
		}
		return recs, true, nil
	})
	if err != nil {
		return 0, s.wrapStoreErr(err)
	}
	return affected, nil
}

// RunFallbackPass groups long-waiting group seekers by requested size
// only, dropping the country, cohort, topic and availability filters. It
// returns the number of groups formed.
func (s *QueueService) RunFallbackPass(ctx context.Context) (int, error) {
	ctx, span := otel.Tracer("services/QueueService").Start(ctx, "RunFallbackPass")
	defer span.End()

	var newGroups []string
	out, err := s.Store.Update(ctx, func(recs []domain.Record) ([]domain.Record, bool, error) {
		newGroups = newGroups[:0]
		now := s.now().UTC()
		stale := match.StaleFinds(recs, now, s.maxAge())
		formed := 0
		for _, size := range domain.GroupSizes {
			sel := match.BySize(stale, strconv.Itoa(size))
			formed += match.FormGroups(sel, size, now, func() string {
				gid := match.NewFallbackGroupID()
				newGroups = append(newGroups, gid)
				return gid
			})
		}
		return recs, formed > 0, nil
	})
	if err != nil {
		return 0, s.wrapStoreErr(err)
	}

	if len(newGroups) > 0 {
		groupsFormed.WithLabelValues("fallback").Add(float64(len(newGroups)))
		s.notifyGroups(ctx, out, newGroups)
	}
	return len(newGroups), nil
}

// ExportAll returns the full queue snapshot for admin export.
func (s *QueueService) ExportAll(ctx context.Context) ([]domain.Record, error) {
	ctx, span := otel.Tracer("services/QueueService").Start(ctx, "ExportAll")
	defer span.End()

	recs, _, err := s.Store.Load(ctx)
	if err != nil {
		return nil, s.wrapStoreErr(err)
	}
	return recs, nil
}

// ListPage returns a page of queue records for the admin overview.
// It applies defaults for invalid page/pageSize and returns total count.
func (s *QueueService) ListPage(ctx context.Context, page, pageSize int) ([]domain.Record, int, error) {
	ctx, span := otel.Tracer("services/QueueService").Start(ctx, "ListPage",
		trace.WithAttributes(attribute.Int("queue.page", page)))
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	recs, _, err := s.Store.Load(ctx)
	if err != nil {
		return nil, 0, s.wrapStoreErr(err)
	}
	total := len(recs)
	offset := (page - 1) * pageSize
	if offset >= total {
		return []domain.Record{}, total, nil
	}
	end := offset + pageSize
	if end > total {
		end = total
	}
	return recs[offset:end], total, nil
}

// notifyGroups sends a match notice to every reachable member of each
// freshly formed group. Runs after the snapshot committed; failures only
// log and count.
func (s *QueueService) notifyGroups(ctx context.Context, recs []domain.Record, groupIDs []string) {
	for _, gid := range groupIDs {
		members := match.MembersOf(recs, gid)
		for _, m := range members {
			if m.Email == "" || m.Email == domain.Unpaired {
				continue
			}
			if err := s.Notifier.SendMatchNotice(ctx, m.Email, m.Name, members); err != nil {
				notifyFailures.Inc()
				log.Warn().Err(err).Str("group_id", gid).Msg("match notice failed")
			}
		}
	}
}

// wrapStoreErr records contention metrics; store errors otherwise pass
// through unchanged so handlers can map them.
func (s *QueueService) wrapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrContention) {
		storeContention.Inc()
	}
	return err
}
