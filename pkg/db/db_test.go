package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"SonicMirror/pkg/cache"
	"SonicMirror/pkg/llm"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

// TestSaveAndGetToken ensures that OAuth tokens are stored and retrieved
// without modification and stamped with the issue time.
func TestSaveAndGetToken(t *testing.T) {
	d := openTestDB(t)
	issued := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return issued }
	ctx := context.Background()

	tok := &oauth2.Token{AccessToken: "abc", RefreshToken: "refresh"}
	if err := d.SaveToken(ctx, "u", tok); err != nil {
		t.Fatal(err)
	}
	got, err := d.GetToken(ctx, "u")
	if err != nil {
		t.Fatal(err)
	}
	if got.Token.AccessToken != tok.AccessToken || got.Token.RefreshToken != tok.RefreshToken {
		t.Fatalf("unexpected token %+v", got.Token)
	}
	if !got.IssuedAt.Equal(issued) {
		t.Fatalf("issued at %v, want %v", got.IssuedAt, issued)
	}

	if err := d.DeleteToken(ctx, "u"); err != nil {
		t.Fatal(err)
	}
	if _, err := d.GetToken(ctx, "u"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
}

func TestTokenFreshness(t *testing.T) {
	issued := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	rec := TokenRecord{IssuedAt: issued}
	if !rec.Fresh(issued.Add(54 * time.Minute)) {
		t.Error("54 minute old token should be fresh")
	}
	if rec.Fresh(issued.Add(55 * time.Minute)) {
		t.Error("55 minute old token should not be fresh")
	}
}

func TestSaveTokenReplaces(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	d.SaveToken(ctx, "u", &oauth2.Token{AccessToken: "old"})
	d.SaveToken(ctx, "u", &oauth2.Token{AccessToken: "new"})
	got, err := d.GetToken(ctx, "u")
	if err != nil {
		t.Fatal(err)
	}
	if got.Token.AccessToken != "new" {
		t.Fatalf("token not replaced: %s", got.Token.AccessToken)
	}
}

// TestGenerations verifies the generation log can be written and summarised.
func TestGenerations(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	entries := []Generation{
		{Provider: "gemini", Feature: "roast", Success: true, LatencyMs: 100, CreatedAt: base},
		{Provider: "gemini", Feature: "roast", Success: false, LatencyMs: 300, Error: "quota exceeded", CreatedAt: base.Add(time.Minute)},
		{Provider: "gemini", Feature: "personality", Success: true, LatencyMs: 50, CreatedAt: base.Add(2 * time.Minute)},
		{Provider: "gemini", Feature: "personality", Success: true, LatencyMs: 50, CreatedAt: base.Add(-48 * time.Hour)},
	}
	for _, g := range entries {
		if err := d.RecordGeneration(ctx, g); err != nil {
			t.Fatal(err)
		}
	}

	usage, err := d.FeatureUsageSince(ctx, base.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(usage) != 2 {
		t.Fatalf("unexpected usage %+v", usage)
	}
	if usage[0].Feature != "roast" || usage[0].Calls != 2 || usage[0].Failures != 1 || usage[0].AvgLatencyMs != 200 {
		t.Errorf("unexpected roast usage %+v", usage[0])
	}
	if usage[1].Feature != "personality" || usage[1].Calls != 1 {
		t.Errorf("unexpected personality usage %+v", usage[1])
	}

	recent, err := d.RecentGenerations(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].ID <= recent[1].ID || recent[0].Feature != "personality" {
		t.Errorf("unexpected recent %+v", recent)
	}
}

// TestSubSecondBoundaries checks that range queries order times within the
// same second correctly.
func TestSubSecondBoundaries(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	for _, at := range []time.Time{base, base.Add(100 * time.Millisecond), base.Add(900 * time.Millisecond)} {
		if err := d.RecordGeneration(ctx, Generation{Provider: "gemini", Feature: "roast", Success: true, CreatedAt: at}); err != nil {
			t.Fatal(err)
		}
	}
	usage, err := d.FeatureUsageSince(ctx, base.Add(500*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if len(usage) != 1 || usage[0].Calls != 1 {
		t.Fatalf("unexpected usage %+v", usage)
	}
	recent, err := d.RecentGenerations(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !recent[0].CreatedAt.Equal(base.Add(900 * time.Millisecond)) {
		t.Errorf("created at %v", recent[0].CreatedAt)
	}

	d.now = func() time.Time { return base.Add(400 * time.Millisecond) }
	d.Put(ctx, "soon", cache.Entry{Data: []byte(`1`), CreatedAt: base, ExpiresAt: base.Add(300 * time.Millisecond)})
	d.Put(ctx, "later", cache.Entry{Data: []byte(`2`), CreatedAt: base, ExpiresAt: base.Add(700 * time.Millisecond)})
	entries, err := d.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := entries["soon"]; ok || len(entries) != 1 {
		t.Fatalf("unexpected entries %v", entries)
	}
	if !entries["later"].ExpiresAt.Equal(base.Add(700 * time.Millisecond)) {
		t.Errorf("expires at %v", entries["later"].ExpiresAt)
	}
}

func TestRecordCall(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	err := d.RecordCall(ctx, llm.Call{Provider: "gemini", Feature: "roast", Latency: 1500 * time.Millisecond, Err: errors.New("quota exceeded")})
	if err != nil {
		t.Fatal(err)
	}
	recent, err := d.RecentGenerations(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 {
		t.Fatalf("expected one generation, got %d", len(recent))
	}
	g := recent[0]
	if g.Success || g.LatencyMs != 1500 || g.Error != "quota exceeded" || g.Feature != "roast" {
		t.Errorf("unexpected generation %+v", g)
	}
}

// TestCacheMirror exercises the cache.Mirror implementation through a
// cache restored from the database.
func TestCacheMirror(t *testing.T) {
	d := openTestDB(t)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }
	clock := func() time.Time { return now }

	c := cache.New(cache.WithMirror(d), cache.WithClock(clock))
	c.Set("llm:roast:1", []byte(`{"roast":"hi"}`), time.Hour)
	c.Set("llm:roast:2", []byte(`{}`), time.Minute)
	c.Set("spotify:x:/me", []byte(`{}`), time.Hour)
	c.ClearPattern("spotify:")

	now = now.Add(2 * time.Minute)
	restored := cache.New(cache.WithMirror(d), cache.WithClock(clock))
	n, err := restored.Restore(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("restored %d entries, want 1", n)
	}
	v, ok := restored.Get("llm:roast:1")
	if !ok || string(v) != `{"roast":"hi"}` {
		t.Fatalf("unexpected restored value %q", v)
	}

	purged, err := d.PurgeExpiredCache(context.Background(), now)
	if err != nil {
		t.Fatal(err)
	}
	if purged != 1 {
		t.Errorf("purged %d rows, want 1", purged)
	}
}

func TestShares(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	id, err := d.CreateShare(ctx, "personality", json.RawMessage(`{"type":"The Explorer"}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(id) != 16 {
		t.Errorf("unexpected id %q", id)
	}
	s, err := d.GetShare(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if s.Feature != "personality" || string(s.Content) != `{"type":"The Explorer"}` {
		t.Errorf("unexpected share %+v", s)
	}
	if _, err := d.GetShare(ctx, "missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected ErrNoRows, got %v", err)
	}
}

func TestOpenFileAndUnknownDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	d, err := Open(DriverSQLite, path)
	if err != nil {
		t.Fatal(err)
	}
	d.Close()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file not created: %v", err)
	}
	if _, err := Open("oracle", "x"); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestRebind(t *testing.T) {
	d := &DB{driver: DriverPostgres}
	if got := d.rebind(`SELECT a FROM t WHERE b=? AND c>?`); got != `SELECT a FROM t WHERE b=$1 AND c>$2` {
		t.Errorf("rebind = %s", got)
	}
	d.driver = DriverSQLite
	if got := d.rebind(`x=?`); got != `x=?` {
		t.Errorf("sqlite rebind changed query: %s", got)
	}
}

// TestPostgres runs the token round trip against a real server when
// TEST_POSTGRES_URL is set.
func TestPostgres(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_URL")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_URL not set")
	}
	d, err := Open(DriverPostgres, dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	ctx := context.Background()
	if err := d.SaveToken(ctx, "pg-user", &oauth2.Token{AccessToken: "a"}); err != nil {
		t.Fatal(err)
	}
	got, err := d.GetToken(ctx, "pg-user")
	if err != nil || got.Token.AccessToken != "a" {
		t.Fatalf("round trip failed: %v %+v", err, got)
	}
	d.DeleteToken(ctx, "pg-user")
}
