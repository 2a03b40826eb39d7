package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
)

// LLMKey identifies a generated result by feature and request content.
// Identical requests for the same feature share a key.
func LLMKey(feature string, request []byte) string {
	sum := sha256.Sum256(request)
	return "llm:" + feature + ":" + hex.EncodeToString(sum[:])
}

// LLMPattern matches every LLMKey of feature.
func LLMPattern(feature string) string {
	return "llm:" + feature + ":"
}

// SpotifyKey identifies a relayed read for one user. The access token is
// hashed so it never appears in keys or mirrors.
func SpotifyKey(accessToken, endpoint string, query url.Values) string {
	sum := sha256.Sum256([]byte(accessToken))
	key := "spotify:" + hex.EncodeToString(sum[:8]) + ":" + endpoint
	if len(query) > 0 {
		key += "?" + query.Encode()
	}
	return key
}

// SpotifyPattern matches every SpotifyKey of accessToken.
func SpotifyPattern(accessToken string) string {
	return SpotifyKey(accessToken, "", nil)
}
