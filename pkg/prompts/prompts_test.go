package prompts

import (
	"encoding/json"
	"strings"
	"testing"

	"SonicMirror/pkg/music"
)

func sampleProfile() music.ListeningProfile {
	tempo := 118.4
	return music.ListeningProfile{
		TopArtists: []string{"Radiohead", "Björk", "Massive Attack"},
		TopTracks:  []string{"Reckoner", "Joga"},
		TopGenres:  []string{"art rock", "trip hop"},
		AudioProfile: music.AudioProfile{
			Danceability: 0.45, Energy: 0.61, Valence: 0.32, Tempo: &tempo,
		},
		RecentlyPlayed: []music.PlayedTrack{{Name: "Teardrop", Artist: "Massive Attack"}},
		ListeningStats: map[string]float64{"hoursPerDay": 2.5, "artistsPerWeek": 14},
	}
}

// TestEveryFeatureEmbedsProfile checks each registered builder renders the
// shared profile block.
func TestEveryFeatureEmbedsProfile(t *testing.T) {
	p := sampleProfile()
	for _, name := range Features() {
		f, _ := Lookup(name)
		out := f.Build(p, Options{})
		for _, want := range []string{"Radiohead", "Reckoner", "trip hop", "danceability 0.45", "tempo 118 BPM", "Teardrop by Massive Attack", "hoursPerDay=2.50"} {
			if !strings.Contains(out, want) {
				t.Errorf("%s prompt missing %q", name, want)
			}
		}
		if f.Structured && !strings.Contains(out, "Respond ONLY with valid JSON") {
			t.Errorf("%s prompt missing JSON instructions", name)
		}
		if !f.Structured && f.TextKey == "" {
			t.Errorf("%s is a text feature without a response key", name)
		}
	}
}

func TestBuildersAreDeterministic(t *testing.T) {
	p := sampleProfile()
	for _, name := range Features() {
		f, _ := Lookup(name)
		if f.Build(p, Options{Mood: "calm"}) != f.Build(p, Options{Mood: "calm"}) {
			t.Errorf("%s produced different prompts for the same input", name)
		}
	}
}

func TestRegistryNames(t *testing.T) {
	want := []string{
		"genre-analysis", "listening-habits", "lyrical-analysis", "mood-analysis",
		"music-therapy", "musical-compatibility", "personality", "playlist-generator",
		"recommendations", "roast", "spotify-wrapped", "wrapped-story",
	}
	got := Features()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("features = %v", got)
	}
	if _, ok := Lookup("horoscope"); ok {
		t.Error("unexpected feature")
	}
	for _, text := range []string{FeatureRoast, FeatureWrappedStory} {
		if f, _ := Lookup(text); f.Structured {
			t.Errorf("%s should be a text feature", text)
		}
	}
}

func TestOptionsAreRendered(t *testing.T) {
	p := sampleProfile()
	out := PlaylistGenerator(p, Options{Occasion: "road trip", Mood: "upbeat", TrackCount: 12})
	for _, want := range []string{"Occasion: road trip", "Mood: upbeat", "Number of tracks: 12", "exactly 12 tracks"} {
		if !strings.Contains(out, want) {
			t.Errorf("playlist prompt missing %q", want)
		}
	}
	if !strings.Contains(PlaylistGenerator(p, Options{}), "Number of tracks: 20") {
		t.Error("default track count not applied")
	}
	if !strings.Contains(MusicTherapy(p, Options{}), "wants to feel relaxed") {
		t.Error("default therapy mood not applied")
	}
	if !strings.Contains(MoodAnalysis(p, Options{Mood: "nostalgic"}), "nostalgic") {
		t.Error("mood not rendered")
	}
}

func TestCompatibilityIncludesPartner(t *testing.T) {
	partner := music.ListeningProfile{TopArtists: []string{"Taylor Swift"}}
	out := MusicalCompatibility(sampleProfile(), Options{Partner: &partner})
	if !strings.Contains(out, "Listener B\nTop Artists: Taylor Swift") {
		t.Errorf("partner not rendered:\n%s", out)
	}
	if !strings.Contains(MusicalCompatibility(sampleProfile(), Options{}), "No data provided.") {
		t.Error("missing partner placeholder")
	}
}

func TestEmptyListsRenderNone(t *testing.T) {
	out := Roast(music.ListeningProfile{TopGenres: []string{"jazz"}}, Options{})
	if !strings.Contains(out, "Top Artists: none") || strings.Contains(out, "tempo") {
		t.Errorf("unexpected rendering:\n%s", out)
	}
}

// TestFallbackIsFreshCopy verifies callers cannot corrupt a feature's
// fallback by mutating a returned value.
func TestFallbackIsFreshCopy(t *testing.T) {
	for _, name := range Features() {
		f, _ := Lookup(name)
		a := f.Fallback()
		if _, err := json.Marshal(a); err != nil {
			t.Fatalf("%s fallback not serializable: %v", name, err)
		}
		for k := range a {
			a[k] = "mutated"
		}
		b := f.Fallback()
		for k, v := range b {
			if v == "mutated" {
				t.Errorf("%s fallback key %s shared between calls", name, k)
			}
		}
		if !f.Structured {
			if _, ok := b[f.TextKey]; !ok {
				t.Errorf("%s fallback lacks %s", name, f.TextKey)
			}
		}
	}
}
