// Package spotify relays Spotify Web API calls on behalf of a signed in user.
// Calls go through the github.com/zmb3/spotify client, hidden behind the
// small webAPI interface so tests can replace it. Each request gets its own
// bearer token client built from the caller's access token; nothing is
// shared between users.
//
// The wrapped library does not accept a context, so every call runs on a
// fresh library client whose transport attaches the caller's context to each
// request. The same transport records error answers so failures are returned
// as *StatusError carrying the status code Spotify answered with.
package spotify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	libspotify "github.com/zmb3/spotify"
	"golang.org/x/oauth2"
)

// DefaultAPIURL is the production Web API base URL.
const DefaultAPIURL = "https://api.spotify.com/v1"

// libraryPrefix is the path prefix of every URL the library builds.
const libraryPrefix = "/v1"

// maxErrorBody bounds how much of an error answer is read.
const maxErrorBody = 64 << 10

// StatusError reports a non 2xx answer from Spotify.
type StatusError struct {
	Status  int
	Message string
	// RetryAfter is set from the Retry-After header of a 429 answer.
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("spotify: %d %s", e.Status, e.Message)
}

// webAPI defines the subset of the library client used by the relay.
type webAPI interface {
	CurrentUser() (*libspotify.PrivateUser, error)
	CurrentUsersTopArtistsOpt(opt *libspotify.Options) (*libspotify.FullArtistPage, error)
	CurrentUsersTopTracksOpt(opt *libspotify.Options) (*libspotify.FullTrackPage, error)
	PlayerRecentlyPlayedOpt(opt *libspotify.RecentlyPlayedOptions) ([]libspotify.RecentlyPlayedItem, error)
	GetAudioFeatures(ids ...libspotify.ID) ([]*libspotify.AudioFeatures, error)
	CreatePlaylistForUser(userID, playlistName, description string, public bool) (*libspotify.FullPlaylist, error)
	AddTracksToPlaylist(playlistID libspotify.ID, trackIDs ...libspotify.ID) (string, error)
	FollowArtist(ids ...libspotify.ID) error
	SearchOpt(query string, t libspotify.SearchType, opt *libspotify.Options) (*libspotify.SearchResult, error)
}

func newLibraryClient(hc *http.Client) webAPI {
	c := libspotify.NewClient(hc)
	return &c
}

// Relay creates per-request API clients.
type Relay struct {
	BaseURL string
	// HTTP is the transport used beneath the bearer token. When nil
	// http.DefaultClient is used.
	HTTP *http.Client
}

// NewRelay returns a Relay for baseURL, or the production API when empty.
func NewRelay(baseURL string, hc *http.Client) *Relay {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	return &Relay{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: hc}
}

// Client returns an API client authorised with accessToken. ctx selects the
// underlying HTTP client only; each call takes its own context.
func (r *Relay) Client(ctx context.Context, accessToken string) *Client {
	if r.HTTP != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.HTTP)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	c := &Client{rt: oauth2.NewClient(ctx, ts).Transport, api: newLibraryClient}

	base := r.BaseURL
	if base == "" {
		base = DefaultAPIURL
	}
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		c.err = fmt.Errorf("spotify: base url: %w", err)
	}
	c.base = u
	return c
}

// Client issues Web API calls for a single user. Every method performs
// exactly one HTTP request.
type Client struct {
	rt   http.RoundTripper
	base *url.URL
	err  error
	api  func(*http.Client) webAPI
}

// call runs fn against a library client whose requests carry ctx.
func (c *Client) call(ctx context.Context, fn func(webAPI) error) error {
	if c.err != nil {
		return c.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t := &callTransport{ctx: ctx, base: c.base, next: c.rt}
	return t.convert(fn(c.api(&http.Client{Transport: t})))
}

// callTransport binds one library call to a context and an API base URL and
// keeps the last error answer it saw.
type callTransport struct {
	ctx     context.Context
	base    *url.URL
	next    http.RoundTripper
	failure *StatusError
}

func (t *callTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(t.ctx)
	if t.base != nil {
		req.URL.Scheme = t.base.Scheme
		req.URL.Host = t.base.Host
		req.URL.Path = t.base.Path + strings.TrimPrefix(req.URL.Path, libraryPrefix)
		req.URL.RawPath = ""
		req.Host = t.base.Host
	}
	next := t.next
	if next == nil {
		next = http.DefaultTransport
	}
	resp, err := next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	t.failure = nil
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(body))
		t.failure = newStatusError(resp.StatusCode, body)
		t.failure.RetryAfter = retryAfter(resp.Header)
	}
	return resp, nil
}

// convert maps the error of a library call. An error answer seen on the wire
// wins over however the library described it.
func (t *callTransport) convert(err error) error {
	if err == nil {
		return nil
	}
	if t.failure != nil {
		return t.failure
	}
	var le libspotify.Error
	if errors.As(err, &le) && le.Status != 0 {
		return &StatusError{Status: le.Status, Message: le.Message}
	}
	return fmt.Errorf("spotify: %w", err)
}

// newStatusError extracts the human readable message from one of Spotify's
// error shapes: {"error":{"status":..,"message":..}} for the Web API and
// {"error":"..","error_description":".."} for the accounts service.
func newStatusError(status int, body []byte) *StatusError {
	msg := ""
	if gjson.ValidBytes(body) {
		res := gjson.ParseBytes(body)
		for _, path := range []string{"error.message", "error_description", "error"} {
			if v := res.Get(path); v.Exists() && v.Type == gjson.String && v.String() != "" {
				msg = v.String()
				break
			}
		}
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &StatusError{Status: status, Message: msg}
}

// retryAfter parses a Retry-After header in seconds. Missing or malformed
// headers yield 0.
func retryAfter(h http.Header) time.Duration {
	var secs int
	if _, err := fmt.Sscanf(h.Get("Retry-After"), "%d", &secs); err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
