package spotify

import (
	"context"
	"errors"
	"net/http"
	"strings"

	libspotify "github.com/zmb3/spotify"
	"golang.org/x/oauth2"
)

// Scopes requested at login. They cover every relay endpoint.
var Scopes = []string{
	libspotify.ScopeUserReadPrivate,
	libspotify.ScopeUserReadEmail,
	libspotify.ScopeUserTopRead,
	libspotify.ScopeUserReadRecentlyPlayed,
	libspotify.ScopePlaylistModifyPublic,
	libspotify.ScopePlaylistModifyPrivate,
	libspotify.ScopeUserFollowModify,
}

// OAuth performs the authorization code flow against the Spotify accounts
// service.
type OAuth struct {
	cfg  *oauth2.Config
	http *http.Client
}

// NewOAuth builds an exchanger. accountsURL overrides the accounts service
// base (for example "http://127.0.0.1:9999"); empty uses the production
// endpoints. hc may be nil.
func NewOAuth(clientID, clientSecret, redirectURL, accountsURL string, hc *http.Client) *OAuth {
	endpoint := oauth2.Endpoint{
		AuthURL:   libspotify.AuthURL,
		TokenURL:  libspotify.TokenURL,
		AuthStyle: oauth2.AuthStyleInHeader,
	}
	if accountsURL != "" {
		base := strings.TrimRight(accountsURL, "/")
		endpoint.AuthURL = base + "/authorize"
		endpoint.TokenURL = base + "/api/token"
	}
	return &OAuth{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       Scopes,
			Endpoint:     endpoint,
		},
		http: hc,
	}
}

// AuthURL returns the consent page URL carrying state.
func (o *OAuth) AuthURL(state string) string {
	return o.cfg.AuthCodeURL(state)
}

// Exchange trades an authorization code for a token.
func (o *OAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, errors.New("missing authorization code")
	}
	tok, err := o.cfg.Exchange(o.ctx(ctx), code)
	return tok, convertTokenError(err)
}

// Refresh obtains a new access token. Spotify may omit the refresh token in
// the answer, in which case the supplied one is kept.
func (o *OAuth) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, errors.New("missing refresh token")
	}
	ts := o.cfg.TokenSource(o.ctx(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := ts.Token()
	if err != nil {
		return nil, convertTokenError(err)
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}
	return tok, nil
}

func (o *OAuth) ctx(ctx context.Context) context.Context {
	if o.http != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, o.http)
	}
	return ctx
}

// convertTokenError maps an accounts service failure onto *StatusError so
// callers see the upstream status.
func convertTokenError(err error) error {
	if err == nil {
		return nil
	}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return newStatusError(re.Response.StatusCode, re.Body)
	}
	return err
}
