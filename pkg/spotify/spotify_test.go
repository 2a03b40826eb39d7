package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	libspotify "github.com/zmb3/spotify"
	"pgregory.net/rapid"
)

// newTestRelay starts a server backed by mux and returns a client pointed at
// it using token "tok".
func newTestRelay(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewRelay(srv.URL, srv.Client()).Client(context.Background(), "tok")
}

func TestTopArtistsDefaultsAndAuth(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/me/top/artists", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization = %q", got)
		}
		if r.URL.Query().Get("limit") != "10" || r.URL.Query().Get("time_range") != "medium_term" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		io.WriteString(w, `{"items":[{"name":"Radiohead","id":"a1","genres":["art rock"]}],"total":1}`)
	})
	c := newTestRelay(t, mux)
	page, err := c.TopArtists(context.Background(), TopOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Artists) != 1 || page.Artists[0].Name != "Radiohead" || page.Artists[0].Genres[0] != "art rock" {
		t.Errorf("unexpected page %+v", page)
	}
}

func TestTopOptionsNormalize(t *testing.T) {
	cases := []struct {
		in        TopOptions
		wantLimit int
		wantRange string
		wantErr   bool
	}{
		{TopOptions{}, 10, "medium_term", false},
		{TopOptions{Limit: 100, TimeRange: "long_term"}, 50, "long_term", false},
		{TopOptions{Limit: 5, TimeRange: "short_term"}, 5, "short_term", false},
		{TopOptions{TimeRange: "forever"}, 10, "forever", true},
	}
	for _, tc := range cases {
		got, err := tc.in.normalize()
		if (err != nil) != tc.wantErr {
			t.Errorf("%+v: err = %v", tc.in, err)
		}
		if got.Limit != tc.wantLimit || got.TimeRange != tc.wantRange {
			t.Errorf("%+v normalized to %+v", tc.in, got)
		}
	}
}

func TestStatusErrorCarriesUpstreamStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":{"status":429,"message":"API rate limit exceeded"}}`)
	})
	mux.HandleFunc("/me/top/tracks", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "<html>bad gateway</html>")
	})
	c := newTestRelay(t, mux)

	_, err := c.CurrentUser(context.Background())
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Status != 429 || se.Message != "API rate limit exceeded" || se.RetryAfter != 7*time.Second {
		t.Errorf("unexpected error %+v", se)
	}

	_, err = c.TopTracks(context.Background(), TopOptions{})
	if !errors.As(err, &se) || se.Status != 502 || se.Message != "Bad Gateway" {
		t.Errorf("unexpected error %v", err)
	}
}

func TestAudioFeaturesAndRecentlyPlayed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/audio-features", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ids") != "t1,t2" {
			t.Errorf("ids = %q", r.URL.Query().Get("ids"))
		}
		io.WriteString(w, `{"audio_features":[{"id":"t1","danceability":0.8,"energy":0.5},null]}`)
	})
	mux.HandleFunc("/me/player/recently-played", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "20" {
			t.Errorf("limit = %q", r.URL.Query().Get("limit"))
		}
		io.WriteString(w, `{"items":[{"track":{"name":"Joga","artists":[{"name":"Björk"}]},"played_at":"2024-05-01T10:00:00Z"}]}`)
	})
	c := newTestRelay(t, mux)

	feats, err := c.AudioFeatures(context.Background(), "t1", "t2")
	if err != nil {
		t.Fatal(err)
	}
	if len(feats) != 2 || feats[0] == nil || feats[1] != nil {
		t.Fatalf("unexpected features %+v", feats)
	}
	items, err := c.RecentlyPlayed(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Track.Name != "Joga" || items[0].PlayedAt.Year() != 2024 {
		t.Errorf("unexpected items %+v", items)
	}
}

func TestWriteEndpoints(t *testing.T) {
	var bodies = map[string]map[string]any{}
	record := func(name string, status int, reply string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			var m map[string]any
			if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
				t.Errorf("%s: %v", name, err)
			}
			bodies[name] = m
			w.WriteHeader(status)
			io.WriteString(w, reply)
		}
	}
	var followQuery string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /users/u1/playlists", record("create", 201, `{"id":"p1","name":"Mix"}`))
	mux.HandleFunc("POST /playlists/p1/tracks", record("add", 201, `{"snapshot_id":"s1"}`))
	mux.HandleFunc("PUT /me/following", func(w http.ResponseWriter, r *http.Request) {
		followQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusNoContent)
	})
	c := newTestRelay(t, mux)
	ctx := context.Background()

	pl, err := c.CreatePlaylist(ctx, "u1", "Mix", "desc", false)
	if err != nil || pl.ID != "p1" {
		t.Fatalf("create: %v %+v", err, pl)
	}
	if bodies["create"]["name"] != "Mix" || bodies["create"]["public"] != false {
		t.Errorf("create body %v", bodies["create"])
	}
	snap, err := c.AddTracks(ctx, "p1", []string{"spotify:track:1", "2"})
	if err != nil || snap != "s1" {
		t.Fatalf("add: %v %q", err, snap)
	}
	if uris, _ := bodies["add"]["uris"].([]any); len(uris) != 2 || uris[0] != "spotify:track:1" || uris[1] != "spotify:track:2" {
		t.Errorf("add body %v", bodies["add"])
	}
	if err := c.FollowArtists(ctx, "a1", "a2"); err != nil {
		t.Fatal(err)
	}
	if followQuery != "ids=a1%2Ca2&type=artist" {
		t.Errorf("follow query %q", followQuery)
	}
}

func TestSearchDefaults(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("q") != "teardrop" || q.Get("type") != "track" || q.Get("limit") != "10" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		io.WriteString(w, `{"tracks":{"items":[{"name":"Teardrop","id":"t9"}]}}`)
	})
	c := newTestRelay(t, mux)
	res, err := c.Search(context.Background(), "teardrop", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Tracks == nil || len(res.Tracks.Tracks) != 1 || res.Tracks.Tracks[0].Name != "Teardrop" {
		t.Errorf("unexpected result %+v", res)
	}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestCalculateAverageFeatures(t *testing.T) {
	got := CalculateAverageFeatures([]*libspotify.AudioFeatures{
		{Danceability: 0.8, Tempo: 100},
		nil,
		{Danceability: 0.4, Tempo: 120},
	})
	if got == nil || !near(got.Danceability, 0.6) || !near(got.Tempo, 110) || got.Tracks != 2 {
		t.Errorf("unexpected averages %+v", got)
	}
	if CalculateAverageFeatures(nil) != nil {
		t.Error("expected nil for empty input")
	}
	if CalculateAverageFeatures([]*libspotify.AudioFeatures{nil}) != nil {
		t.Error("expected nil when every entry is nil")
	}
}

func artistsWithGenres(genres ...[]string) []libspotify.FullArtist {
	out := make([]libspotify.FullArtist, len(genres))
	for i, g := range genres {
		out[i].Genres = g
	}
	return out
}

func TestExtractTopGenres(t *testing.T) {
	got := ExtractTopGenres(artistsWithGenres([]string{"pop", "rock"}, []string{"pop"}))
	want := []GenreCount{{"pop", 2}, {"rock", 1}}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("got %v want %v", got, want)
	}

	got = ExtractTopGenres(artistsWithGenres([]string{"jazz", "soul"}, []string{"funk", "soul", "jazz"}, []string{"funk"}))
	if names := strings.Join(GenreNames(got, 0), ","); names != "jazz,soul,funk" {
		t.Errorf("tie order = %s", names)
	}
	if len(ExtractTopGenres(nil)) != 0 {
		t.Error("expected no genres")
	}
}

// TestExtractTopGenresProperties checks ordering, stability and totals on
// random inputs.
func TestExtractTopGenresProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		genre := rapid.SampledFrom([]string{"pop", "rock", "jazz", "house", "folk", "metal"})
		lists := rapid.SliceOf(rapid.SliceOfN(genre, 0, 4)).Draw(t, "artists")
		got := ExtractTopGenres(artistsWithGenres(lists...))

		total := 0
		firstSeen := map[string]int{}
		pos := 0
		for _, l := range lists {
			total += len(l)
			for _, g := range l {
				if _, ok := firstSeen[g]; !ok {
					firstSeen[g] = pos
					pos++
				}
			}
		}
		sum := 0
		for i, gc := range got {
			sum += gc.Count
			if i == 0 {
				continue
			}
			prev := got[i-1]
			if prev.Count < gc.Count {
				t.Fatalf("not sorted by count: %v", got)
			}
			if prev.Count == gc.Count && firstSeen[prev.Genre] > firstSeen[gc.Genre] {
				t.Fatalf("tie not in encounter order: %v", got)
			}
		}
		if sum != total || len(got) != len(firstSeen) {
			t.Fatalf("counts do not add up: %v", got)
		}
	})
}
