package store

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tbourn/go-peerfinder-backend/internal/blob"
	"github.com/tbourn/go-peerfinder-backend/internal/domain"
)

func newQueue(t *testing.T, opts ...Option) *Queue {
	t.Helper()
	return New(blob.NewMemory(), "queue.csv", opts...)
}

func TestDecode_EmptyAndHeaderOnly(t *testing.T) {
	for _, data := range [][]byte{nil, []byte(""), []byte("  \n")} {
		recs, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode(%q): %v", data, err)
		}
		if len(recs) != 0 {
			t.Fatalf("Decode(%q) = %d records, want 0", data, len(recs))
		}
	}

	header, err := Encode(nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	recs, err := Decode(header)
	if err != nil {
		t.Fatalf("Decode header-only: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("header-only snapshot = %d records, want 0", len(recs))
	}
}

func TestDecode_MissingColumnsDefaulted(t *testing.T) {
	// Old snapshot with only a few columns; everything else must default.
	data := []byte("id,name,phone,connection_type\nu1,Ada,  +23480000001  ,find\n")
	recs, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	r := recs[0]
	if r.Matched {
		t.Fatal("missing matched column must default to false")
	}
	if r.Phone != "+23480000001" {
		t.Fatalf("phone not trimmed: %q", r.Phone)
	}
	if r.Email != "" || r.GroupID != "" || r.MatchedTimestamp != "" {
		t.Fatalf("missing text columns must default to empty: %+v", r)
	}
}

func TestDecode_MatchedCaseInsensitive(t *testing.T) {
	data := []byte("id,matched,group_id\n" +
		"u1,TRUE,g1\nu2,true,g1\nu3,True,g1\nu4,FALSE,\nu5,,\nu6,bogus,\n")
	recs, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := []bool{true, true, true, false, false, false}
	for i, w := range want {
		if recs[i].Matched != w {
			t.Fatalf("record %s matched = %v, want %v", recs[i].ID, recs[i].Matched, w)
		}
	}
}

func TestDecode_MatchedWithoutGroupDemoted(t *testing.T) {
	data := []byte("id,matched,group_id\nu1,TRUE,\nu2,TRUE,nan\nu3,TRUE,g1\n")
	recs, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if recs[0].Matched || recs[1].Matched {
		t.Fatalf("rows without a group id kept matched: %+v %+v", recs[0], recs[1])
	}
	if !recs[2].Matched {
		t.Fatalf("row with a group id lost matched: %+v", recs[2])
	}
}

func TestDecode_NaNArtifactsCleared(t *testing.T) {
	data := []byte("id,kind_of_support,group_id\nu1,nan,NaN\n")
	recs, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if recs[0].KindOfSupport != "" || recs[0].GroupID != "" {
		t.Fatalf("nan artifacts not cleared: %+v", recs[0])
	}
}

func TestEncode_CanonicalHeaderAndRoundTrip(t *testing.T) {
	in := []domain.Record{
		{
			ID:                  "u1",
			Name:                "Ada",
			Phone:               " +2348000001 ",
			Email:               "ada@example.com",
			Country:             "NG",
			Cohort:              "C1",
			TopicModule:         "T1",
			Availability:        "Morning",
			PreferredStudySetup: "2",
			ConnectionType:      domain.ConnectionFind,
			Timestamp:           "2025-06-01T10:00:00Z",
			Matched:             true,
			GroupID:             "group-1",
		},
	}
	data, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	firstLine := strings.SplitN(string(data), "\n", 2)[0]
	if firstLine != strings.Join(domain.Columns, ",") {
		t.Fatalf("header = %q", firstLine)
	}

	out, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d records", len(out))
	}
	r := out[0]
	if r.Phone != "+2348000001" {
		t.Fatalf("phone not normalized on write: %q", r.Phone)
	}
	if !r.Matched || r.GroupID != "group-1" || r.ConnectionType != domain.ConnectionFind {
		t.Fatalf("round-trip mismatch: %+v", r)
	}
}

func TestQueue_LoadMissingSnapshot(t *testing.T) {
	q := newQueue(t)
	recs, version, err := q.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(recs) != 0 || version != "" {
		t.Fatalf("missing snapshot = (%d records, %q), want (0, \"\")", len(recs), version)
	}
}

func TestQueue_SaveConflict(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()

	v1, err := q.Save(ctx, []domain.Record{{ID: "u1"}}, "")
	if err != nil {
		t.Fatalf("initial save: %v", err)
	}
	if _, err := q.Save(ctx, []domain.Record{{ID: "u1"}, {ID: "u2"}}, v1); err != nil {
		t.Fatalf("second save: %v", err)
	}

	// v1 is stale now.
	if _, err := q.Save(ctx, []domain.Record{{ID: "u3"}}, v1); !errors.Is(err, ErrConflict) {
		t.Fatalf("stale save = %v, want ErrConflict", err)
	}
	recs, _, err := q.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("losing save mutated the snapshot: %d records", len(recs))
	}
}

func TestQueue_UpdateAppends(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()

	out, err := q.Update(ctx, func(recs []domain.Record) ([]domain.Record, bool, error) {
		return append(recs, domain.Record{ID: "u1"}), true, nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(out) != 1 || out[0].ID != "u1" {
		t.Fatalf("unexpected result: %+v", out)
	}

	recs, _, err := q.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != "u1" {
		t.Fatalf("commit not visible: %+v", recs)
	}
}

func TestQueue_UpdateNoMutationSkipsWrite(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()

	if _, err := q.Update(ctx, func(recs []domain.Record) ([]domain.Record, bool, error) {
		return recs, false, nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	// Nothing was written, so the snapshot is still absent.
	_, version, err := q.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if version != "" {
		t.Fatalf("read-only update produced a write: version %q", version)
	}
}

func TestQueue_UpdateMutateError(t *testing.T) {
	q := newQueue(t)
	boom := errors.New("boom")

	if _, err := q.Update(context.Background(), func(recs []domain.Record) ([]domain.Record, bool, error) {
		return nil, false, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("Update = %v, want mutate error", err)
	}
}

// conflictingBackend makes every Put fail with an ETag mismatch, simulating a
// writer that always loses the race.
type conflictingBackend struct{ blob.Backend }

func (c conflictingBackend) Put(ctx context.Context, key string, data []byte, expectedETag string) (string, error) {
	return "", blob.ErrETagMismatch
}

func TestQueue_UpdateContentionExhaustsRetries(t *testing.T) {
	q := New(conflictingBackend{blob.NewMemory()}, "queue.csv", WithMaxRetries(2))

	calls := 0
	_, err := q.Update(context.Background(), func(recs []domain.Record) ([]domain.Record, bool, error) {
		calls++
		return append(recs, domain.Record{ID: "u1"}), true, nil
	})
	if !errors.Is(err, ErrContention) {
		t.Fatalf("Update = %v, want ErrContention", err)
	}
	if calls != 2 {
		t.Fatalf("mutate ran %d times, want 2", calls)
	}
}

func TestQueue_UpdateRetriesAgainstFreshSnapshot(t *testing.T) {
	backend := blob.NewMemory()
	q := New(backend, "queue.csv")
	ctx := context.Background()

	// Interleave a competing writer on the first attempt only.
	raced := false
	_, err := q.Update(ctx, func(recs []domain.Record) ([]domain.Record, bool, error) {
		if !raced {
			raced = true
			other := New(backend, "queue.csv")
			if _, err := other.Update(ctx, func(r []domain.Record) ([]domain.Record, bool, error) {
				return append(r, domain.Record{ID: "rival"}), true, nil
			}); err != nil {
				t.Fatalf("rival update: %v", err)
			}
		}
		return append(recs, domain.Record{ID: "mine"}), true, nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	recs, _, err := q.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("lost update: %d records, want 2 (rival + mine)", len(recs))
	}
	if recs[0].ID != "rival" || recs[1].ID != "mine" {
		t.Fatalf("unexpected order: %+v", recs)
	}
}
