package prompts

import (
	"fmt"
	"strings"

	"SonicMirror/pkg/music"
)

// Feature names as exposed under /llm/.
const (
	FeatureRoast                = "roast"
	FeaturePersonality          = "personality"
	FeatureMoodAnalysis         = "mood-analysis"
	FeatureRecommendations      = "recommendations"
	FeatureGenreAnalysis        = "genre-analysis"
	FeatureListeningHabits      = "listening-habits"
	FeatureMusicTherapy         = "music-therapy"
	FeatureWrappedStory         = "wrapped-story"
	FeatureSpotifyWrapped       = "spotify-wrapped"
	FeaturePlaylistGenerator    = "playlist-generator"
	FeatureMusicalCompatibility = "musical-compatibility"
	FeatureLyricalAnalysis      = "lyrical-analysis"
)

// Roast asks for a short, playful roast of the user's taste. Plain text.
func Roast(p music.ListeningProfile, _ Options) string {
	var b strings.Builder
	b.WriteString("You are a witty music critic. Roast this person's music taste in a playful, funny way. ")
	b.WriteString("Keep it light-hearted, reference specific artists and songs, and stay under 200 words.\n\n")
	b.WriteString(describeProfile(p))
	b.WriteString("\nWrite the roast as plain text without headings.")
	return b.String()
}

// Personality asks for a personality reading derived from the profile.
func Personality(p music.ListeningProfile, _ Options) string {
	return "Analyze this person's personality based on their music listening data.\n\n" +
		describeProfile(p) +
		jsonInstructions(`{
  "type": "a creative personality type name",
  "description": "two or three sentences describing the personality",
  "traits": ["trait 1", "trait 2", "trait 3", "trait 4", "trait 5"],
  "musicalDNA": "one sentence about what drives their taste"
}`)
}

// MoodAnalysis asks for the emotional landscape of the profile. Options.Mood,
// when set, is the user's self-reported mood.
func MoodAnalysis(p music.ListeningProfile, opts Options) string {
	var b strings.Builder
	b.WriteString("Analyze the emotional landscape of this person's music.\n\n")
	b.WriteString(describeProfile(p))
	if opts.Mood != "" {
		fmt.Fprintf(&b, "They describe their current mood as: %s\n", opts.Mood)
	}
	b.WriteString(jsonInstructions(`{
  "overallMood": "one or two words",
  "moodScore": 0-100,
  "emotionalRange": "narrow | moderate | wide",
  "analysis": "two or three sentences",
  "moodBreakdown": {"happy": 0-100, "energetic": 0-100, "calm": 0-100, "melancholic": 0-100}
}`))
	return b.String()
}

// Recommendations asks for new artists the user has not listed.
func Recommendations(p music.ListeningProfile, _ Options) string {
	return "Recommend music this person would enjoy but is not already listening to. " +
		"Do not recommend any artist listed below.\n\n" +
		describeProfile(p) +
		jsonInstructions(`{
  "recommendations": [
    {"artist": "artist name", "track": "a track by them", "reason": "why it fits"}
  ],
  "summary": "one sentence on the direction of the recommendations"
}`) + "Include exactly 5 recommendations.\n"
}

// GenreAnalysis asks for an interpretation of the genre mix.
func GenreAnalysis(p music.ListeningProfile, _ Options) string {
	return "Analyze this person's genre preferences and what they reveal.\n\n" +
		describeProfile(p) +
		jsonInstructions(`{
  "primaryGenre": "the dominant genre",
  "genreDiversity": 0-100,
  "analysis": "two or three sentences",
  "genreEvolution": "how their genres connect",
  "hiddenGems": ["an adjacent genre to explore", "another adjacent genre"]
}`)
}

// ListeningHabits interprets recent plays and listening statistics.
func ListeningHabits(p music.ListeningProfile, _ Options) string {
	return "Describe this person's listening habits: when and how they listen, how loyal they are to artists, " +
		"and how adventurous they are.\n\n" +
		describeProfile(p) +
		jsonInstructions(`{
  "listenerType": "a short label",
  "loyaltyScore": 0-100,
  "adventurousness": 0-100,
  "patterns": ["pattern 1", "pattern 2", "pattern 3"],
  "insight": "one or two sentences"
}`)
}

// MusicTherapy suggests music for a target mood. Options.Mood is the desired
// state; it defaults to "relaxed".
func MusicTherapy(p music.ListeningProfile, opts Options) string {
	mood := opts.Mood
	if mood == "" {
		mood = "relaxed"
	}
	return fmt.Sprintf("Act as a music therapist. The listener wants to feel %s. "+
		"Using their taste as a starting point, prescribe a short listening session.\n\n", mood) +
		describeProfile(p) +
		jsonInstructions(`{
  "targetMood": "the requested mood",
  "prescription": [
    {"track": "track name", "artist": "artist name", "purpose": "what this track does"}
  ],
  "advice": "one or two sentences of listening advice"
}`) + "Include between 4 and 6 tracks.\n"
}

// WrappedStory asks for a short narrative of the user's year in music. Plain
// text.
func WrappedStory(p music.ListeningProfile, _ Options) string {
	var b strings.Builder
	b.WriteString("Write a short, cinematic story (about 150 words) about this person's year in music. ")
	b.WriteString("Make the top artists characters in the story and end on an uplifting note.\n\n")
	b.WriteString(describeProfile(p))
	b.WriteString("\nWrite the story as plain text.")
	return b.String()
}

// SpotifyWrapped asks for a year-in-review summary card.
func SpotifyWrapped(p music.ListeningProfile, _ Options) string {
	return "Create a personalized year-in-review summary for this listener in the style of an annual music recap.\n\n" +
		describeProfile(p) +
		jsonInstructions(`{
  "headline": "a catchy title for their year",
  "topArtist": "their number one artist",
  "topTrack": "their number one track",
  "topGenre": "their number one genre",
  "listeningPersonality": "a short label",
  "funFacts": ["fact 1", "fact 2", "fact 3"],
  "yearSummary": "two sentences"
}`)
}

// PlaylistGenerator asks for a themed playlist. Options.Occasion and
// Options.Mood shape the theme and Options.TrackCount the length.
func PlaylistGenerator(p music.ListeningProfile, opts Options) string {
	n := opts.TrackCount
	if n <= 0 {
		n = DefaultTrackCount
	}
	var b strings.Builder
	b.WriteString("Generate a playlist tailored to this listener.\n")
	if opts.Occasion != "" {
		fmt.Fprintf(&b, "Occasion: %s\n", opts.Occasion)
	}
	if opts.Mood != "" {
		fmt.Fprintf(&b, "Mood: %s\n", opts.Mood)
	}
	fmt.Fprintf(&b, "Number of tracks: %d\n\n", n)
	b.WriteString(describeProfile(p))
	b.WriteString(jsonInstructions(`{
  "name": "playlist name",
  "description": "one sentence description",
  "tracks": [
    {"title": "track title", "artist": "artist name"}
  ]
}`))
	fmt.Fprintf(&b, "Include exactly %d tracks that exist on Spotify.\n", n)
	return b.String()
}

// MusicalCompatibility compares the profile against Options.Partner.
func MusicalCompatibility(p music.ListeningProfile, opts Options) string {
	var b strings.Builder
	b.WriteString("Compare the music taste of two listeners and rate their compatibility.\n\n")
	b.WriteString("Listener A\n")
	b.WriteString(describeProfile(p))
	b.WriteString("\nListener B\n")
	if opts.Partner != nil {
		b.WriteString(describeProfile(*opts.Partner))
	} else {
		b.WriteString("No data provided.\n")
	}
	b.WriteString(jsonInstructions(`{
  "score": 0-100,
  "verdict": "a short label for the pairing",
  "sharedArtists": ["artist"],
  "sharedGenres": ["genre"],
  "analysis": "two or three sentences",
  "duetSuggestion": {"track": "a track both would enjoy", "artist": "artist name"}
}`))
	return b.String()
}

// LyricalAnalysis asks for the lyrical themes implied by the top tracks.
func LyricalAnalysis(p music.ListeningProfile, _ Options) string {
	return "Analyze the lyrical themes this listener gravitates towards, based on their top tracks and artists. " +
		"Do not quote lyrics.\n\n" +
		describeProfile(p) +
		jsonInstructions(`{
  "dominantThemes": ["theme 1", "theme 2", "theme 3"],
  "emotionalTone": "a short description",
  "storytellingStyle": "a short description",
  "analysis": "two or three sentences"
}`)
}

func init() {
	register(Feature{Name: FeatureRoast, Build: Roast, TextKey: "roast", fallback: func() map[string]any {
		return map[string]any{"roast": "Your playlist is so eclectic even the algorithm needed a coffee break. Try again in a moment for a proper roast."}
	}})
	register(Feature{Name: FeaturePersonality, Build: Personality, Structured: true, fallback: func() map[string]any {
		return map[string]any{
			"type":        "The Eclectic Explorer",
			"description": "You move between genres with curiosity and keep an open ear for anything new.",
			"traits":      []any{"curious", "open-minded", "adventurous", "creative", "independent"},
			"musicalDNA":  "Variety is the constant in your listening.",
		}
	}})
	register(Feature{Name: FeatureMoodAnalysis, Build: MoodAnalysis, Structured: true, fallback: func() map[string]any {
		return map[string]any{
			"overallMood":    "Balanced",
			"moodScore":      50,
			"emotionalRange": "moderate",
			"analysis":       "Your music balances upbeat moments with reflective ones.",
			"moodBreakdown":  map[string]any{"happy": 50, "energetic": 50, "calm": 50, "melancholic": 25},
		}
	}})
	register(Feature{Name: FeatureRecommendations, Build: Recommendations, Structured: true, fallback: func() map[string]any {
		return map[string]any{
			"recommendations": []any{},
			"summary":         "Recommendations are unavailable right now. Please try again shortly.",
		}
	}})
	register(Feature{Name: FeatureGenreAnalysis, Build: GenreAnalysis, Structured: true, fallback: func() map[string]any {
		return map[string]any{
			"primaryGenre":   "Eclectic",
			"genreDiversity": 50,
			"analysis":       "Your taste spans several genres without settling on one.",
			"genreEvolution": "Your genres share a common thread of melody and rhythm.",
			"hiddenGems":     []any{},
		}
	}})
	register(Feature{Name: FeatureListeningHabits, Build: ListeningHabits, Structured: true, fallback: func() map[string]any {
		return map[string]any{
			"listenerType":    "Steady Listener",
			"loyaltyScore":    50,
			"adventurousness": 50,
			"patterns":        []any{},
			"insight":         "Listening habits could not be analyzed right now.",
		}
	}})
	register(Feature{Name: FeatureMusicTherapy, Build: MusicTherapy, Structured: true, fallback: func() map[string]any {
		return map[string]any{
			"targetMood":   "relaxed",
			"prescription": []any{},
			"advice":       "Put on an album you love, close your eyes and listen from start to finish.",
		}
	}})
	register(Feature{Name: FeatureWrappedStory, Build: WrappedStory, TextKey: "story", fallback: func() map[string]any {
		return map[string]any{"story": "This year your soundtrack carried you through every season. The full story is on its way, check back in a moment."}
	}})
	register(Feature{Name: FeatureSpotifyWrapped, Build: SpotifyWrapped, Structured: true, fallback: func() map[string]any {
		return map[string]any{
			"headline":             "Your Year in Music",
			"topArtist":            "",
			"topTrack":             "",
			"topGenre":             "",
			"listeningPersonality": "Music Lover",
			"funFacts":             []any{},
			"yearSummary":          "Your year in music is still being written.",
		}
	}})
	register(Feature{Name: FeaturePlaylistGenerator, Build: PlaylistGenerator, Structured: true, fallback: func() map[string]any {
		return map[string]any{
			"name":        "Your Mix",
			"description": "A playlist could not be generated right now.",
			"tracks":      []any{},
		}
	}})
	register(Feature{Name: FeatureMusicalCompatibility, Build: MusicalCompatibility, Structured: true, RequiresPartner: true, fallback: func() map[string]any {
		return map[string]any{
			"score":          50,
			"verdict":        "Worth a listen together",
			"sharedArtists":  []any{},
			"sharedGenres":   []any{},
			"analysis":       "Compatibility could not be analyzed right now.",
			"duetSuggestion": map[string]any{"track": "", "artist": ""},
		}
	}})
	register(Feature{Name: FeatureLyricalAnalysis, Build: LyricalAnalysis, Structured: true, fallback: func() map[string]any {
		return map[string]any{
			"dominantThemes":    []any{},
			"emotionalTone":     "Varied",
			"storytellingStyle": "Varied",
			"analysis":          "Lyrical themes could not be analyzed right now.",
		}
	}})
}
