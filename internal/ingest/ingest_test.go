package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/justestif/muziqua/internal/db"
	"github.com/justestif/muziqua/internal/spotify"
)

// memHistory is an in-memory HistoryStore enforcing the played_at uniqueness
// the real schema guarantees.
type memHistory struct {
	events      []db.PlayEvent
	failDeletes map[uuid.UUID]bool
}

func (m *memHistory) sorted() []db.PlayEvent {
	out := make([]db.PlayEvent, len(m.events))
	copy(out, m.events)
	sort.Slice(out, func(i, j int) bool {
		return out[i].PlayedAt.After(out[j].PlayedAt)
	})
	return out
}

func (m *memHistory) List(_ context.Context, limit, offset int) ([]db.PlayEvent, error) {
	all := m.sorted()
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *memHistory) Create(_ context.Context, event *db.PlayEvent) (bool, error) {
	for _, e := range m.events {
		if e.PlayedAt.Equal(event.PlayedAt) {
			return false, nil
		}
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	m.events = append(m.events, *event)
	return true, nil
}

func (m *memHistory) UpdatePreviewURL(_ context.Context, id uuid.UUID, previewURL string) error {
	for i, e := range m.events {
		if e.ID == id {
			m.events[i].PreviewURL = previewURL
			return nil
		}
	}
	return db.ErrNotFound
}

func (m *memHistory) Delete(_ context.Context, id uuid.UUID) error {
	if m.failDeletes[id] {
		return errors.New("delete failed")
	}
	for i, e := range m.events {
		if e.ID == id {
			m.events = append(m.events[:i], m.events[i+1:]...)
			return nil
		}
	}
	return nil // already gone is success
}

// memCursor is an in-memory CursorStore with the same claim semantics as the
// conditional upsert in Postgres.
type memCursor struct {
	lastSyncedAt *time.Time
	claims       int
	touches      int
}

func (m *memCursor) Claim(_ context.Context, now time.Time, window time.Duration) (bool, error) {
	m.claims++
	if m.lastSyncedAt != nil && now.Sub(*m.lastSyncedAt) < window {
		return false, nil
	}
	t := now
	m.lastSyncedAt = &t
	return true, nil
}

func (m *memCursor) Touch(_ context.Context, now time.Time) error {
	m.touches++
	t := now
	m.lastSyncedAt = &t
	return nil
}

// fakePlayer records calls and serves canned pages.
type fakePlayer struct {
	recent    []spotify.PlayedTrack
	recentErr error
	tracks    map[string]spotify.Track
	tracksErr error

	recentCalls int
	tracksCalls int
	gotAfter    time.Time
	gotLimit    int
}

func (f *fakePlayer) RecentlyPlayed(_ context.Context, after time.Time, limit int) ([]spotify.PlayedTrack, error) {
	f.recentCalls++
	f.gotAfter = after
	f.gotLimit = limit
	if f.recentErr != nil {
		return nil, f.recentErr
	}
	return f.recent, nil
}

func (f *fakePlayer) TracksByIDs(_ context.Context, ids []string) (map[string]spotify.Track, error) {
	f.tracksCalls++
	if f.tracksErr != nil {
		return nil, f.tracksErr
	}
	out := make(map[string]spotify.Track, len(ids))
	for _, id := range ids {
		if t, ok := f.tracks[id]; ok {
			out[id] = t
		}
	}
	return out, nil
}

func connectorFor(p *fakePlayer) Connector {
	return ConnectorFunc(func(context.Context) (Player, error) {
		return p, nil
	})
}

func playedTrack(id string, playedAt time.Time) spotify.PlayedTrack {
	return spotify.PlayedTrack{
		Track: spotify.Track{
			ID:          id,
			Name:        "Track " + id,
			ArtistNames: "Artist A, Artist B",
			AlbumName:   "Album",
			URL:         "https://open.spotify.com/track/" + id,
			DurationMs:  180000,
		},
		PlayedAt: playedAt,
	}
}

func storedEvent(id string, playedAt time.Time, previewURL string) db.PlayEvent {
	return db.PlayEvent{
		ID:             uuid.New(),
		TrackName:      "Track " + id,
		ArtistName:     "Artist",
		SpotifyTrackID: id,
		PlayedAt:       playedAt,
		PreviewURL:     previewURL,
	}
}

func TestRunFirstSync(t *testing.T) {
	base := time.Now().Add(-time.Hour)
	player := &fakePlayer{
		recent: []spotify.PlayedTrack{
			playedTrack("a", base.Add(3*time.Minute)),
			playedTrack("b", base.Add(2*time.Minute)),
			playedTrack("c", base.Add(1*time.Minute)),
		},
	}
	history := &memHistory{}
	cursor := &memCursor{}

	p := New(history, cursor, connectorFor(player))
	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Synced != 3 {
		t.Errorf("Synced = %d, want 3", result.Synced)
	}
	if result.Deleted != 0 {
		t.Errorf("Deleted = %d, want 0", result.Deleted)
	}
	if result.TotalFetched != 3 {
		t.Errorf("TotalFetched = %d, want 3", result.TotalFetched)
	}
	if !player.gotAfter.IsZero() {
		t.Errorf("fetch lower bound = %v, want zero (unbounded)", player.gotAfter)
	}
	if player.gotLimit != PageLimit {
		t.Errorf("fetch limit = %d, want %d", player.gotLimit, PageLimit)
	}
	if cursor.lastSyncedAt == nil {
		t.Error("cursor was not written")
	}
	if cursor.touches != 1 {
		t.Errorf("cursor touches = %d, want 1", cursor.touches)
	}
}

func TestRunThrottled(t *testing.T) {
	recent := time.Now().Add(-time.Minute)
	cursor := &memCursor{lastSyncedAt: &recent}
	player := &fakePlayer{}

	p := New(&memHistory{}, cursor, connectorFor(player))
	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !result.Throttled {
		t.Error("Throttled = false, want true")
	}
	if result.Synced != 0 || result.Deleted != 0 || result.Backfilled != 0 {
		t.Errorf("throttled run reported work: %+v", result)
	}
	if player.recentCalls != 0 || player.tracksCalls != 0 {
		t.Error("throttled run made network calls")
	}
	if cursor.touches != 0 {
		t.Error("throttled run touched the cursor")
	}
}

func TestRunAfterCooldown(t *testing.T) {
	old := time.Now().Add(-10 * time.Minute)
	cursor := &memCursor{lastSyncedAt: &old}
	player := &fakePlayer{}

	p := New(&memHistory{}, cursor, connectorFor(player))
	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Throttled {
		t.Error("Throttled = true, want false after cooldown expiry")
	}
	if player.recentCalls != 1 {
		t.Errorf("recentCalls = %d, want 1", player.recentCalls)
	}
}

func TestMergeDedupIdempotent(t *testing.T) {
	base := time.Now().Add(-time.Hour)
	page := []spotify.PlayedTrack{
		playedTrack("a", base.Add(2*time.Minute)),
		playedTrack("b", base.Add(1*time.Minute)),
	}
	player := &fakePlayer{recent: page}
	history := &memHistory{}
	cursor := &memCursor{}

	p := New(history, cursor, connectorFor(player), WithCooldown(0))

	first, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if first.Synced != 2 {
		t.Fatalf("first Synced = %d, want 2", first.Synced)
	}

	// Identical page on the second run: every event is already stored.
	second, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if second.Synced != 0 {
		t.Errorf("second Synced = %d, want 0", second.Synced)
	}
	if second.TotalFetched != 2 {
		t.Errorf("second TotalFetched = %d, want 2", second.TotalFetched)
	}
	if len(history.events) != 2 {
		t.Errorf("stored events = %d, want 2", len(history.events))
	}
}

func TestMergeSkipsExactPlayedAtMatch(t *testing.T) {
	base := time.Now().Add(-time.Hour)
	known := base.Add(1 * time.Minute)

	history := &memHistory{events: []db.PlayEvent{storedEvent("a", known, "p")}}
	player := &fakePlayer{
		recent: []spotify.PlayedTrack{
			playedTrack("a", known), // exact duplicate
			playedTrack("b", base.Add(2*time.Minute)),
		},
	}
	cursor := &memCursor{}

	p := New(history, cursor, connectorFor(player))
	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Synced != 1 {
		t.Errorf("Synced = %d, want 1 (duplicate excluded)", result.Synced)
	}
	if result.TotalFetched != 2 {
		t.Errorf("TotalFetched = %d, want 2 (duplicate still counted)", result.TotalFetched)
	}
}

func TestCursorBound(t *testing.T) {
	base := time.Now().Add(-time.Hour)
	t1 := base.Add(5 * time.Minute)
	t2 := base.Add(1 * time.Minute)

	history := &memHistory{events: []db.PlayEvent{
		storedEvent("old", t2, "p"),
		storedEvent("new", t1, "p"),
	}}
	player := &fakePlayer{}

	p := New(history, &memCursor{}, connectorFor(player))
	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !player.gotAfter.Equal(t1) {
		t.Errorf("fetch lower bound = %v, want newest stored playedAt %v", player.gotAfter, t1)
	}
}

func TestRetentionTrim(t *testing.T) {
	base := time.Now().Add(-24 * time.Hour)
	history := &memHistory{}
	for i := 0; i < 60; i++ {
		history.events = append(history.events,
			storedEvent(fmt.Sprintf("t%d", i), base.Add(time.Duration(i)*time.Minute), "p"))
	}
	player := &fakePlayer{}

	p := New(history, &memCursor{}, connectorFor(player))
	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Deleted != 10 {
		t.Errorf("Deleted = %d, want 10", result.Deleted)
	}
	if len(history.events) != MaxTracks {
		t.Errorf("stored events = %d, want %d", len(history.events), MaxTracks)
	}

	// The survivors are the 50 newest.
	oldest := history.sorted()[len(history.events)-1]
	if want := base.Add(10 * time.Minute); !oldest.PlayedAt.Equal(want) {
		t.Errorf("oldest survivor playedAt = %v, want %v", oldest.PlayedAt, want)
	}
}

func TestTrimDeleteFailureIsolated(t *testing.T) {
	base := time.Now().Add(-24 * time.Hour)
	history := &memHistory{failDeletes: make(map[uuid.UUID]bool)}
	for i := 0; i < 55; i++ {
		history.events = append(history.events,
			storedEvent(fmt.Sprintf("t%d", i), base.Add(time.Duration(i)*time.Minute), "p"))
	}
	// Fail the delete of one doomed record.
	history.failDeletes[history.sorted()[52].ID] = true

	p := New(history, &memCursor{}, connectorFor(&fakePlayer{}))
	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Deleted != 4 {
		t.Errorf("Deleted = %d, want 4 (one failure skipped)", result.Deleted)
	}
}

func TestBackfillPatchesMissingPreviews(t *testing.T) {
	base := time.Now().Add(-time.Hour)
	history := &memHistory{events: []db.PlayEvent{
		storedEvent("has", base.Add(3*time.Minute), "https://p.scdn.co/existing"),
		storedEvent("miss1", base.Add(2*time.Minute), ""),
		storedEvent("miss2", base.Add(1*time.Minute), ""),
	}}
	player := &fakePlayer{
		tracks: map[string]spotify.Track{
			"miss1": {ID: "miss1", PreviewURL: "https://p.scdn.co/new1"},
			"miss2": {ID: "miss2"}, // upstream still has no preview
			"has":   {ID: "has", PreviewURL: "https://p.scdn.co/other"},
		},
	}

	p := New(history, &memCursor{}, connectorFor(player))
	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Backfilled != 1 {
		t.Errorf("Backfilled = %d, want 1", result.Backfilled)
	}
	for _, e := range history.events {
		switch e.SpotifyTrackID {
		case "has":
			// Backfill never rewrites a non-empty preview URL.
			if e.PreviewURL != "https://p.scdn.co/existing" {
				t.Errorf("existing preview overwritten: %q", e.PreviewURL)
			}
		case "miss1":
			if e.PreviewURL != "https://p.scdn.co/new1" {
				t.Errorf("miss1 preview = %q, want patched", e.PreviewURL)
			}
		case "miss2":
			if e.PreviewURL != "" {
				t.Errorf("miss2 preview = %q, want still empty", e.PreviewURL)
			}
		}
	}
}

func TestBackfillLookupFailureDoesNotAbort(t *testing.T) {
	base := time.Now().Add(-time.Hour)
	history := &memHistory{events: []db.PlayEvent{storedEvent("miss", base, "")}}
	player := &fakePlayer{
		tracksErr: errors.New("upstream down"),
		recent:    []spotify.PlayedTrack{playedTrack("b", base.Add(time.Minute))},
	}
	cursor := &memCursor{}

	p := New(history, cursor, connectorFor(player))
	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Backfilled != 0 {
		t.Errorf("Backfilled = %d, want 0", result.Backfilled)
	}
	if result.Synced != 1 {
		t.Errorf("Synced = %d, want 1 (merge unaffected by backfill failure)", result.Synced)
	}
	if cursor.touches != 1 {
		t.Error("cursor not touched after backfill failure")
	}
}

func TestBackfillSkippedWhenNothingMissing(t *testing.T) {
	base := time.Now().Add(-time.Hour)
	history := &memHistory{events: []db.PlayEvent{storedEvent("has", base, "p")}}
	player := &fakePlayer{}

	p := New(history, &memCursor{}, connectorFor(player))
	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if player.tracksCalls != 0 {
		t.Errorf("tracksCalls = %d, want 0 when no previews are missing", player.tracksCalls)
	}
}

func TestEmptyFetchStillUpdatesCursor(t *testing.T) {
	cursor := &memCursor{}
	p := New(&memHistory{}, cursor, connectorFor(&fakePlayer{}))

	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Message != "no new tracks" {
		t.Errorf("Message = %q, want %q", result.Message, "no new tracks")
	}
	if cursor.touches != 1 {
		t.Errorf("cursor touches = %d, want 1", cursor.touches)
	}
}

func TestConnectFailureAborts(t *testing.T) {
	wantErr := errors.New("token refresh failed")
	connector := ConnectorFunc(func(context.Context) (Player, error) {
		return nil, wantErr
	})
	history := &memHistory{}
	cursor := &memCursor{}

	p := New(history, cursor, connector)
	_, err := p.Run(context.Background())
	if !errors.Is(err, wantErr) {
		t.Fatalf("Run() error = %v, want %v", err, wantErr)
	}
	if len(history.events) != 0 {
		t.Error("aborted run wrote events")
	}
	if cursor.touches != 0 {
		t.Error("aborted run completed the cursor update")
	}
}

func TestFetchFailureAborts(t *testing.T) {
	player := &fakePlayer{recentErr: errors.New("upstream 502")}
	history := &memHistory{}

	p := New(history, &memCursor{}, connectorFor(player))
	_, err := p.Run(context.Background())
	if err == nil {
		t.Fatal("Run() error = nil, want fetch failure")
	}
	if len(history.events) != 0 {
		t.Error("aborted run wrote events")
	}
}
