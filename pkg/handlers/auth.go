// This file groups authentication related helpers and endpoints such as the
// OAuth login and callback handlers. Browser sessions carry the Spotify user
// ID in a signed cookie and the token itself stays in the database. Single
// page clients may instead exchange the code themselves through /auth/token
// and send the access token as a bearer header. CSRF protection is
// implemented using a random token stored in a cookie which clients must echo
// back in the `X-CSRF-Token` header for all cookie authenticated state
// changing requests.

package handlers

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// signValue computes an HMAC signature for value and appends it using the
// format value|signature. The signature is base64 URL encoded so it can be
// safely stored in cookies.
func signValue(value string, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(value))
	sig := mac.Sum(nil)
	return value + "|" + base64.RawURLEncoding.EncodeToString(sig)
}

// verifyValue checks the HMAC signature appended to signed. It returns the
// original value and true when the signature matches the provided key.
func verifyValue(signed string, key []byte) (string, bool) {
	parts := strings.Split(signed, "|")
	if len(parts) != 2 {
		return "", false
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(parts[0]))
	expected := mac.Sum(nil)
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil || !hmac.Equal(expected, sig) {
		return "", false
	}
	return parts[0], true
}

// setCSRFToken generates a new random token and sets it in a cookie. The
// cookie is not HttpOnly so client-side scripts can read the value and
// attach it to subsequent requests.
func setCSRFToken(w http.ResponseWriter, secure bool) (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(b)
	http.SetCookie(w, &http.Cookie{
		Name:     "csrf_token",
		Value:    token,
		Path:     "/",
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

// verifyCSRF compares the X-CSRF-Token header with the csrf_token cookie. The
// comparison is constant time to avoid timing attacks.
func verifyCSRF(r *http.Request) bool {
	c, err := r.Cookie("csrf_token")
	if err != nil {
		return false
	}
	header := r.Header.Get("X-CSRF-Token")
	if header == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(c.Value), []byte(header)) == 1
}

// userFromCookie returns the verified Spotify user ID from the request cookie.
// An error is returned when the cookie is missing or has been tampered with.
func (app *Application) userFromCookie(r *http.Request) (string, error) {
	c, err := r.Cookie("spotify_user_id")
	if err != nil {
		return "", err
	}
	if v, ok := verifyValue(c.Value, app.SignKey); ok {
		return v, nil
	}
	return "", fmt.Errorf("invalid signature")
}

// bearerToken extracts the token from an Authorization: Bearer header.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// accessToken resolves the Spotify access token for a request. A bearer
// header wins. Otherwise the session cookie is looked up in the database and
// the stored token is refreshed when it is no longer fresh. A 401 or 403 is
// written on failure.
func (app *Application) accessToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	if tok := bearerToken(r); tok != "" {
		return tok, true
	}
	userID, err := app.userFromCookie(r)
	if err != nil || app.DB == nil {
		respondJSONError(w, http.StatusUnauthorized, "authentication required")
		return "", false
	}
	// Enforce CSRF protection on state-changing requests.
	if r.Method != http.MethodGet && r.Method != http.MethodHead && !verifyCSRF(r) {
		respondJSONError(w, http.StatusForbidden, "invalid csrf token")
		return "", false
	}
	rec, err := app.DB.GetToken(r.Context(), userID)
	if errors.Is(err, sql.ErrNoRows) {
		respondJSONError(w, http.StatusUnauthorized, "authentication required")
		return "", false
	}
	if err != nil {
		logFor(r).WithError(err).Error("load token")
		respondJSONError(w, http.StatusInternalServerError, "load token")
		return "", false
	}
	if rec.Fresh(app.now()) || rec.Token.RefreshToken == "" {
		return rec.Token.AccessToken, true
	}
	tok, err := app.OAuth.Refresh(r.Context(), rec.Token.RefreshToken)
	if err != nil {
		logFor(r).WithError(err).WithField("user", userID).Warn("refresh token")
		respondJSONError(w, http.StatusUnauthorized, "session expired")
		return "", false
	}
	if err := app.DB.SaveToken(r.Context(), userID, tok); err != nil {
		logFor(r).WithError(err).Error("save refreshed token")
	}
	return tok.AccessToken, true
}

// tokenResponse is the JSON shape returned by the token endpoints.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (app *Application) newTokenResponse(t *oauth2.Token) tokenResponse {
	res := tokenResponse{AccessToken: t.AccessToken, RefreshToken: t.RefreshToken, TokenType: t.TokenType}
	if res.TokenType == "" {
		res.TokenType = "Bearer"
	}
	if !t.Expiry.IsZero() {
		res.ExpiresIn = int64(t.Expiry.Sub(app.now()) / time.Second)
	}
	return res
}

// Login begins the Spotify OAuth flow and redirects the user to the
// authorization URL with a signed state value stored in a cookie.
func (app *Application) Login(w http.ResponseWriter, r *http.Request) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		http.Error(w, "failed to generate state", http.StatusInternalServerError)
		return
	}
	state := base64.RawURLEncoding.EncodeToString(b)
	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    signValue(state, app.SignKey),
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, app.OAuth.AuthURL(state), http.StatusFound)
}

// OAuthCallback completes the OAuth flow by exchanging the authorization code
// for a token. The token is stored against the Spotify user ID, which is set
// in a signed cookie before redirecting back to the frontend.
func (app *Application) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie("oauth_state")
	if err != nil {
		http.Error(w, "state mismatch", http.StatusBadRequest)
		return
	}
	state, ok := verifyValue(c.Value, app.SignKey)
	if !ok || r.URL.Query().Get("state") != state {
		http.Error(w, "state mismatch", http.StatusBadRequest)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: "oauth_state", Path: "/", MaxAge: -1})
	if e := r.URL.Query().Get("error"); e != "" {
		http.Error(w, "authorization denied: "+e, http.StatusUnauthorized)
		return
	}

	token, err := app.OAuth.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		logFor(r).WithError(err).Warn("exchange code")
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}
	user, err := app.Relay.Client(r.Context(), token.AccessToken).CurrentUser(r.Context())
	if err != nil {
		logFor(r).WithError(err).Warn("fetch current user")
		http.Error(w, "authentication failed", http.StatusBadGateway)
		return
	}
	if app.DB != nil {
		if err := app.DB.SaveToken(r.Context(), user.ID, token); err != nil {
			log.WithError(err).Error("save token")
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "spotify_user_id",
		Value:    signValue(user.ID, app.SignKey),
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	// Issue a CSRF token for the session so clients can include it with
	// state-changing requests.
	if _, err := setCSRFToken(w, r.TLS != nil); err != nil {
		http.Error(w, "csrf token", http.StatusInternalServerError)
		return
	}
	dest := app.FrontendURL
	if dest == "" {
		dest = "/"
	}
	http.Redirect(w, r, dest, http.StatusFound)
}

// ExchangeToken trades an authorization code for tokens and returns them to
// the caller without creating a session.
func (app *Application) ExchangeToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Code == "" {
		respondJSONError(w, http.StatusBadRequest, "code is required")
		return
	}
	tok, err := app.OAuth.Exchange(r.Context(), req.Code)
	if err != nil {
		app.spotifyError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, app.newTokenResponse(tok))
}

// RefreshToken obtains a new access token from a refresh token.
func (app *Application) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.RefreshToken == "" {
		respondJSONError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}
	tok, err := app.OAuth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		app.spotifyError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, app.newTokenResponse(tok))
}

// Logout forgets the stored token for the session user and expires the
// authentication cookies.
func (app *Application) Logout(w http.ResponseWriter, r *http.Request) {
	if id, err := app.userFromCookie(r); err == nil && app.DB != nil {
		if !verifyCSRF(r) {
			respondJSONError(w, http.StatusForbidden, "invalid csrf token")
			return
		}
		if err := app.DB.DeleteToken(r.Context(), id); err != nil {
			logFor(r).WithError(err).Error("delete token")
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "spotify_user_id",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{Name: "csrf_token", Path: "/", MaxAge: -1})
	w.WriteHeader(http.StatusNoContent)
}
