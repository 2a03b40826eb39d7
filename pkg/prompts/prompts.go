// Package prompts renders listening profiles into feature prompts for the
// language model. Every builder is a pure function of its inputs.
package prompts

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"SonicMirror/pkg/music"
)

// DefaultTrackCount is used by the playlist generator when no count is given.
const DefaultTrackCount = 20

// Options carries the feature specific request fields.
type Options struct {
	Mood       string
	Occasion   string
	TrackCount int
	Partner    *music.ListeningProfile
}

// BuildFunc renders a prompt for one feature.
type BuildFunc func(p music.ListeningProfile, opts Options) string

// Feature describes one generation endpoint.
type Feature struct {
	Name string
	// Build renders the prompt.
	Build BuildFunc
	// Structured features expect a JSON document back. Text features are
	// returned under TextKey.
	Structured bool
	TextKey    string
	// RequiresPartner marks features that need Options.Partner.
	RequiresPartner bool
	fallback        func() map[string]any
}

// Fallback returns a fresh copy of the feature's placeholder result.
func (f Feature) Fallback() map[string]any {
	return f.fallback()
}

var registry = map[string]Feature{}

func register(f Feature) {
	registry[f.Name] = f
}

// Lookup returns the feature registered under name.
func Lookup(name string) (Feature, bool) {
	f, ok := registry[name]
	return f, ok
}

// Features lists every registered feature name in sorted order.
func Features() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func joinOrNone(items []string, max int) string {
	if len(items) == 0 {
		return "none"
	}
	if max > 0 && len(items) > max {
		items = items[:max]
	}
	return strings.Join(items, ", ")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// describeProfile renders the shared "listening data" block embedded in
// every prompt.
func describeProfile(p music.ListeningProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Top Artists: %s\n", joinOrNone(p.TopArtists, 10))
	fmt.Fprintf(&b, "Top Tracks: %s\n", joinOrNone(p.TopTracks, 10))
	fmt.Fprintf(&b, "Top Genres: %s\n", joinOrNone(p.TopGenres, 10))
	a := p.AudioProfile
	fmt.Fprintf(&b, "Audio Profile: danceability %s, energy %s, valence %s",
		formatFloat(a.Danceability), formatFloat(a.Energy), formatFloat(a.Valence))
	if a.Tempo != nil {
		fmt.Fprintf(&b, ", tempo %s BPM", strconv.FormatFloat(*a.Tempo, 'f', 0, 64))
	}
	b.WriteString("\n")
	if len(p.RecentlyPlayed) > 0 {
		recent := p.RecentlyPlayed
		if len(recent) > 10 {
			recent = recent[:10]
		}
		parts := make([]string, 0, len(recent))
		for _, t := range recent {
			parts = append(parts, fmt.Sprintf("%s by %s", t.Name, t.Artist))
		}
		fmt.Fprintf(&b, "Recently Played: %s\n", strings.Join(parts, "; "))
	}
	if len(p.ListeningStats) > 0 {
		keys := make([]string, 0, len(p.ListeningStats))
		for k := range p.ListeningStats {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", k, formatFloat(p.ListeningStats[k])))
		}
		fmt.Fprintf(&b, "Listening Stats: %s\n", strings.Join(parts, ", "))
	}
	return b.String()
}

// jsonInstructions appends the response schema block used by structured
// features.
func jsonInstructions(schema string) string {
	return "\nRespond ONLY with valid JSON in exactly this format, with no markdown and no commentary:\n" + schema + "\n"
}
