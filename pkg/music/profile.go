// Package music defines the listening profile that every generation feature
// consumes. A profile is a normalized summary of a user's top artists,
// tracks and genres together with averaged audio characteristics. It is built
// fresh for each request, either by the browser from individual Spotify relay
// calls or server side by spotify.BuildProfile, and is treated as immutable
// once constructed.
package music

import (
	"errors"
	"fmt"
	"time"
)

// AudioProfile holds averaged audio features. Danceability, Energy and
// Valence are in [0,1]. Tempo is optional and expressed in BPM.
type AudioProfile struct {
	Danceability float64  `json:"danceability"`
	Energy       float64  `json:"energy"`
	Valence      float64  `json:"valence"`
	Tempo        *float64 `json:"tempo,omitempty"`
}

// PlayedTrack describes one entry of the recently played list.
type PlayedTrack struct {
	Name     string    `json:"name"`
	Artist   string    `json:"artist,omitempty"`
	PlayedAt time.Time `json:"playedAt,omitempty"`
}

// ListeningProfile is the request payload for every LLM feature.
type ListeningProfile struct {
	TopArtists     []string           `json:"topArtists"`
	TopTracks      []string           `json:"topTracks"`
	TopGenres      []string           `json:"topGenres"`
	AudioProfile   AudioProfile       `json:"audioProfile"`
	RecentlyPlayed []PlayedTrack      `json:"recentlyPlayed,omitempty"`
	ListeningStats map[string]float64 `json:"listeningStats,omitempty"`
}

// ErrEmptyProfile is returned by Validate when a profile carries no artists,
// tracks or genres.
var ErrEmptyProfile = errors.New("listening profile has no artists, tracks or genres")

// Validate checks that the profile contains something to describe and that
// audio values fall in their documented ranges.
func (p ListeningProfile) Validate() error {
	if len(p.TopArtists) == 0 && len(p.TopTracks) == 0 && len(p.TopGenres) == 0 {
		return ErrEmptyProfile
	}
	check := func(name string, v float64) error {
		if v < 0 || v > 1 {
			return fmt.Errorf("audioProfile.%s must be between 0 and 1, got %v", name, v)
		}
		return nil
	}
	a := p.AudioProfile
	if err := check("danceability", a.Danceability); err != nil {
		return err
	}
	if err := check("energy", a.Energy); err != nil {
		return err
	}
	if err := check("valence", a.Valence); err != nil {
		return err
	}
	if a.Tempo != nil && *a.Tempo < 0 {
		return fmt.Errorf("audioProfile.tempo must not be negative, got %v", *a.Tempo)
	}
	return nil
}
