package spotify

import (
	"context"

	libspotify "github.com/zmb3/spotify"

	"SonicMirror/pkg/music"
)

// topGenreLimit bounds the genres copied into a profile.
const topGenreLimit = 10

// BuildProfile assembles a ListeningProfile from the user's top artists, top
// tracks and recent plays, then averages the audio features of the top
// tracks. The first three calls run concurrently. An audio features failure
// is not fatal: Spotify restricts that endpoint for some applications, and a
// profile without averages is still useful.
func BuildProfile(ctx context.Context, c *Client, opts TopOptions) (music.ListeningProfile, error) {
	var (
		artists *libspotify.FullArtistPage
		tracks  *libspotify.FullTrackPage
		recent  []libspotify.RecentlyPlayedItem
	)
	err := music.Gather(ctx,
		music.Task{Name: "top artists", Run: func(ctx context.Context) (err error) {
			artists, err = c.TopArtists(ctx, opts)
			return err
		}},
		music.Task{Name: "top tracks", Run: func(ctx context.Context) (err error) {
			tracks, err = c.TopTracks(ctx, opts)
			return err
		}},
		music.Task{Name: "recently played", Run: func(ctx context.Context) (err error) {
			recent, err = c.RecentlyPlayed(ctx, DefaultRecentLimit)
			return err
		}},
	)
	if err != nil {
		return music.ListeningProfile{}, err
	}

	p := music.ListeningProfile{
		TopArtists: []string{},
		TopTracks:  []string{},
		TopGenres:  GenreNames(ExtractTopGenres(artists.Artists), topGenreLimit),
	}
	for _, a := range artists.Artists {
		p.TopArtists = append(p.TopArtists, a.Name)
	}
	ids := make([]string, 0, len(tracks.Tracks))
	for _, t := range tracks.Tracks {
		p.TopTracks = append(p.TopTracks, t.Name)
		ids = append(ids, string(t.ID))
	}
	for _, item := range recent {
		pt := music.PlayedTrack{Name: item.Track.Name, PlayedAt: item.PlayedAt}
		if len(item.Track.Artists) > 0 {
			pt.Artist = item.Track.Artists[0].Name
		}
		p.RecentlyPlayed = append(p.RecentlyPlayed, pt)
	}

	if feats, err := c.AudioFeatures(ctx, ids...); err == nil {
		if avg := CalculateAverageFeatures(feats); avg != nil {
			tempo := avg.Tempo
			p.AudioProfile = music.AudioProfile{
				Danceability: avg.Danceability,
				Energy:       avg.Energy,
				Valence:      avg.Valence,
				Tempo:        &tempo,
			}
			p.ListeningStats = map[string]float64{
				"acousticness":     avg.Acousticness,
				"instrumentalness": avg.Instrumentalness,
				"liveness":         avg.Liveness,
				"speechiness":      avg.Speechiness,
			}
		}
	}
	return p, nil
}
