package spotify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	libspotify "github.com/zmb3/spotify"
)

// Defaults applied to top item and list queries.
const (
	DefaultLimit       = 10
	MaxLimit           = 50
	DefaultRecentLimit = 20
	DefaultTimeRange   = "medium_term"
	DefaultSearchType  = "track"

	// maxFollowIDs is the most artists one follow request accepts.
	maxFollowIDs = 50
)

var validTimeRanges = map[string]bool{
	"short_term":  true,
	"medium_term": true,
	"long_term":   true,
}

var searchTypes = map[string]libspotify.SearchType{
	"album":    libspotify.SearchTypeAlbum,
	"artist":   libspotify.SearchTypeArtist,
	"playlist": libspotify.SearchTypePlaylist,
	"track":    libspotify.SearchTypeTrack,
}

// Argument errors. They are returned before any request is sent.
var (
	ErrInvalidTimeRange  = errors.New("time_range must be short_term, medium_term or long_term")
	ErrInvalidSearchType = errors.New("type must be a comma separated list of album, artist, playlist or track")
	ErrInvalidTrackURI   = errors.New("invalid track uri")
	ErrFollowIDs         = fmt.Errorf("follow accepts 1 to %d artist ids", maxFollowIDs)
)

// IsBadRequest reports whether err is one of the argument errors.
func IsBadRequest(err error) bool {
	return errors.Is(err, ErrInvalidTimeRange) ||
		errors.Is(err, ErrInvalidSearchType) ||
		errors.Is(err, ErrInvalidTrackURI) ||
		errors.Is(err, ErrFollowIDs)
}

// TopOptions controls the top artists and tracks queries.
type TopOptions struct {
	Limit     int
	TimeRange string
}

// normalize applies defaults and clamps the limit to 1..50.
func (o TopOptions) normalize() (TopOptions, error) {
	o.Limit = clampLimit(o.Limit, DefaultLimit)
	if o.TimeRange == "" {
		o.TimeRange = DefaultTimeRange
	}
	if !validTimeRanges[o.TimeRange] {
		return o, ErrInvalidTimeRange
	}
	return o, nil
}

// options converts normalized options. The library appends "_term" to the
// range itself.
func (o TopOptions) options() *libspotify.Options {
	limit := o.Limit
	tr := strings.TrimSuffix(o.TimeRange, "_term")
	return &libspotify.Options{Limit: &limit, Timerange: &tr}
}

func clampLimit(n, def int) int {
	if n <= 0 {
		return def
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}

func toIDs(ids []string) []libspotify.ID {
	out := make([]libspotify.ID, len(ids))
	for i, id := range ids {
		out[i] = libspotify.ID(id)
	}
	return out
}

// trackID accepts a "spotify:track:<id>" URI or a bare track id.
func trackID(uri string) (libspotify.ID, error) {
	if id, ok := strings.CutPrefix(uri, "spotify:track:"); ok && id != "" {
		return libspotify.ID(id), nil
	}
	if uri != "" && !strings.Contains(uri, ":") {
		return libspotify.ID(uri), nil
	}
	return "", fmt.Errorf("%w %q", ErrInvalidTrackURI, uri)
}

func parseSearchType(s string) (libspotify.SearchType, error) {
	if s == "" {
		s = DefaultSearchType
	}
	var t libspotify.SearchType
	for _, name := range strings.Split(s, ",") {
		st, ok := searchTypes[strings.TrimSpace(name)]
		if !ok {
			return 0, ErrInvalidSearchType
		}
		t |= st
	}
	return t, nil
}

// CurrentUser returns the profile of the token owner.
func (c *Client) CurrentUser(ctx context.Context) (u *libspotify.PrivateUser, err error) {
	err = c.call(ctx, func(api webAPI) (err error) {
		u, err = api.CurrentUser()
		return err
	})
	return u, err
}

// TopArtists returns the user's top artists.
func (c *Client) TopArtists(ctx context.Context, opts TopOptions) (page *libspotify.FullArtistPage, err error) {
	if opts, err = opts.normalize(); err != nil {
		return nil, err
	}
	err = c.call(ctx, func(api webAPI) (err error) {
		page, err = api.CurrentUsersTopArtistsOpt(opts.options())
		return err
	})
	return page, err
}

// TopTracks returns the user's top tracks.
func (c *Client) TopTracks(ctx context.Context, opts TopOptions) (page *libspotify.FullTrackPage, err error) {
	if opts, err = opts.normalize(); err != nil {
		return nil, err
	}
	err = c.call(ctx, func(api webAPI) (err error) {
		page, err = api.CurrentUsersTopTracksOpt(opts.options())
		return err
	})
	return page, err
}

// RecentlyPlayed returns up to limit recently played items (default 20).
func (c *Client) RecentlyPlayed(ctx context.Context, limit int) (items []libspotify.RecentlyPlayedItem, err error) {
	opt := &libspotify.RecentlyPlayedOptions{Limit: clampLimit(limit, DefaultRecentLimit)}
	err = c.call(ctx, func(api webAPI) (err error) {
		items, err = api.PlayerRecentlyPlayedOpt(opt)
		return err
	})
	return items, err
}

// AudioFeatures returns features for ids in request order. Entries Spotify
// has no data for are nil.
func (c *Client) AudioFeatures(ctx context.Context, ids ...string) (feats []*libspotify.AudioFeatures, err error) {
	if len(ids) == 0 {
		return nil, nil
	}
	err = c.call(ctx, func(api webAPI) (err error) {
		feats, err = api.GetAudioFeatures(toIDs(ids)...)
		return err
	})
	return feats, err
}

// CreatePlaylist creates a playlist owned by userID.
func (c *Client) CreatePlaylist(ctx context.Context, userID, name, description string, public bool) (pl *libspotify.FullPlaylist, err error) {
	err = c.call(ctx, func(api webAPI) (err error) {
		pl, err = api.CreatePlaylistForUser(userID, name, description, public)
		return err
	})
	return pl, err
}

// AddTracks appends tracks to a playlist and returns the new snapshot id.
// uris are track URIs or bare track ids.
func (c *Client) AddTracks(ctx context.Context, playlistID string, uris []string) (snapshot string, err error) {
	ids := make([]libspotify.ID, len(uris))
	for i, uri := range uris {
		if ids[i], err = trackID(uri); err != nil {
			return "", err
		}
	}
	err = c.call(ctx, func(api webAPI) (err error) {
		snapshot, err = api.AddTracksToPlaylist(libspotify.ID(playlistID), ids...)
		return err
	})
	return snapshot, err
}

// FollowArtists follows the given artists for the current user.
func (c *Client) FollowArtists(ctx context.Context, ids ...string) error {
	if len(ids) == 0 || len(ids) > maxFollowIDs {
		return ErrFollowIDs
	}
	return c.call(ctx, func(api webAPI) error {
		return api.FollowArtist(toIDs(ids)...)
	})
}

// Search queries the catalog. searchType is a comma separated list that
// defaults to "track"; limit defaults to 10.
func (c *Client) Search(ctx context.Context, query, searchType string, limit int) (res *libspotify.SearchResult, err error) {
	t, err := parseSearchType(searchType)
	if err != nil {
		return nil, err
	}
	n := clampLimit(limit, DefaultLimit)
	err = c.call(ctx, func(api webAPI) (err error) {
		res, err = api.SearchOpt(query, t, &libspotify.Options{Limit: &n})
		return err
	})
	return res, err
}
