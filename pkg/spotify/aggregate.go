package spotify

import (
	"sort"

	libspotify "github.com/zmb3/spotify"
)

// AverageFeatures holds the arithmetic mean of each audio feature across a
// set of tracks.
type AverageFeatures struct {
	Danceability     float64 `json:"avg_danceability"`
	Energy           float64 `json:"avg_energy"`
	Valence          float64 `json:"avg_valence"`
	Tempo            float64 `json:"avg_tempo"`
	Acousticness     float64 `json:"avg_acousticness"`
	Instrumentalness float64 `json:"avg_instrumentalness"`
	Liveness         float64 `json:"avg_liveness"`
	Speechiness      float64 `json:"avg_speechiness"`
	Loudness         float64 `json:"avg_loudness"`
	// Tracks is the number of feature sets the averages were computed over.
	Tracks int `json:"track_count"`
}

// CalculateAverageFeatures averages every attribute over the non nil entries
// of feats. It returns nil when no entry remains.
func CalculateAverageFeatures(feats []*libspotify.AudioFeatures) *AverageFeatures {
	var sum AverageFeatures
	for _, f := range feats {
		if f == nil {
			continue
		}
		sum.Tracks++
		sum.Danceability += float64(f.Danceability)
		sum.Energy += float64(f.Energy)
		sum.Valence += float64(f.Valence)
		sum.Tempo += float64(f.Tempo)
		sum.Acousticness += float64(f.Acousticness)
		sum.Instrumentalness += float64(f.Instrumentalness)
		sum.Liveness += float64(f.Liveness)
		sum.Speechiness += float64(f.Speechiness)
		sum.Loudness += float64(f.Loudness)
	}
	if sum.Tracks == 0 {
		return nil
	}
	n := float64(sum.Tracks)
	return &AverageFeatures{
		Danceability:     sum.Danceability / n,
		Energy:           sum.Energy / n,
		Valence:          sum.Valence / n,
		Tempo:            sum.Tempo / n,
		Acousticness:     sum.Acousticness / n,
		Instrumentalness: sum.Instrumentalness / n,
		Liveness:         sum.Liveness / n,
		Speechiness:      sum.Speechiness / n,
		Loudness:         sum.Loudness / n,
		Tracks:           sum.Tracks,
	}
}

// GenreCount is one entry of ExtractTopGenres.
type GenreCount struct {
	Genre string `json:"genre"`
	Count int    `json:"count"`
}

// ExtractTopGenres counts genre occurrences across artists and returns them
// by descending count. Genres with equal counts keep the order in which they
// were first encountered.
func ExtractTopGenres(artists []libspotify.FullArtist) []GenreCount {
	index := make(map[string]int)
	var out []GenreCount
	for _, a := range artists {
		for _, g := range a.Genres {
			if i, ok := index[g]; ok {
				out[i].Count++
				continue
			}
			index[g] = len(out)
			out = append(out, GenreCount{Genre: g, Count: 1})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// GenreNames returns the genre labels of counts, at most limit of them when
// limit is positive.
func GenreNames(counts []GenreCount, limit int) []string {
	if limit > 0 && len(counts) > limit {
		counts = counts[:limit]
	}
	names := make([]string, len(counts))
	for i, c := range counts {
		names[i] = c.Genre
	}
	return names
}
