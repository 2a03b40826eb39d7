package handlers

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"SonicMirror/pkg/cache"
	"SonicMirror/pkg/llm"
	"SonicMirror/pkg/metrics"
	"SonicMirror/pkg/music"
	"SonicMirror/pkg/prompts"
	"SonicMirror/pkg/retry"
)

// featureRequest is the body accepted by every generation endpoint.
type featureRequest struct {
	music.ListeningProfile
	Mood           string                  `json:"mood,omitempty"`
	Occasion       string                  `json:"occasion,omitempty"`
	TrackCount     int                     `json:"trackCount,omitempty"`
	PartnerProfile *music.ListeningProfile `json:"partnerProfile,omitempty"`
}

func (req featureRequest) validate(f prompts.Feature) error {
	if err := req.ListeningProfile.Validate(); err != nil {
		return err
	}
	if req.TrackCount < 0 || req.TrackCount > 100 {
		return errors.New("trackCount must be between 0 and 100")
	}
	if f.RequiresPartner && req.PartnerProfile == nil {
		return errors.New("partnerProfile is required")
	}
	if req.PartnerProfile != nil {
		if err := req.PartnerProfile.Validate(); err != nil {
			return errors.New("partnerProfile: " + err.Error())
		}
	}
	return nil
}

// LLMGenerate runs one generation feature for the posted profile. Results
// are cached by feature and request body. When the provider fails in a way
// the user cannot fix by waiting (quota, permanent errors) the feature's
// placeholder content is returned with fallback set.
func (app *Application) LLMGenerate(w http.ResponseWriter, r *http.Request) {
	f, ok := prompts.Lookup(r.PathValue("feature"))
	if !ok {
		respondJSONError(w, http.StatusNotFound, "unknown feature")
		return
	}
	var req featureRequest
	if err := decodeJSONLenient(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.validate(f); err != nil {
		respondJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	canonical, _ := json.Marshal(req)
	key := cache.LLMKey(f.Name, canonical)
	if app.Cache != nil {
		if b, ok := app.Cache.Get(key); ok {
			w.Header().Set("X-Cache", "HIT")
			respondRaw(w, http.StatusOK, b)
			return
		}
	}

	prompt := f.Build(req.ListeningProfile, prompts.Options{
		Mood:       req.Mood,
		Occasion:   req.Occasion,
		TrackCount: req.TrackCount,
		Partner:    req.PartnerProfile,
	})

	var (
		result   map[string]any
		fellBack bool
		err      error
	)
	if f.Structured {
		var res llm.JSONResult[map[string]any]
		res, err = llm.GenerateJSON(r.Context(), app.Gateway, prompt, f.Name, f.Fallback())
		result, fellBack = res.Value, res.FellBack
	} else {
		var text string
		text, err = app.Gateway.GenerateContent(r.Context(), prompt, f.Name)
		if err != nil {
			result, fellBack = f.Fallback(), true
		} else {
			result = map[string]any{f.TextKey: strings.TrimSpace(text)}
		}
	}

	var rl *llm.RateLimitError
	switch {
	case errors.Is(err, llm.ErrUnavailable):
		respondJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	case errors.As(err, &rl):
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(rl.RetryAfter.Seconds()))))
		respondJSONError(w, http.StatusTooManyRequests, rl.Message)
		return
	case err != nil:
		entry := logFor(r).WithError(err).WithField("feature", f.Name)
		if errors.Is(err, retry.ErrQuotaExceeded) {
			entry.Warn("llm quota exceeded, serving fallback")
		} else {
			entry.Error("llm generation failed, serving fallback")
		}
	}

	if fellBack || result == nil {
		if result == nil {
			result = f.Fallback()
		}
		metrics.LLMFallbacks.WithLabelValues(f.Name).Inc()
		result["fallback"] = true
		respondJSON(w, http.StatusOK, result)
		return
	}
	b, err := json.Marshal(result)
	if err != nil {
		logFor(r).WithError(err).Error("encode llm result")
		respondJSONError(w, http.StatusInternalServerError, "encode response")
		return
	}
	if app.Cache != nil && app.LLMCacheTTL > 0 {
		app.Cache.Set(key, b, app.LLMCacheTTL)
	}
	w.Header().Set("X-Cache", "MISS")
	respondRaw(w, http.StatusOK, b)
}

type featureInfo struct {
	Name            string `json:"name"`
	Structured      bool   `json:"structured"`
	RequiresPartner bool   `json:"requiresPartner"`
}

// LLMFeatures lists the generation features and whether a provider is
// configured.
func (app *Application) LLMFeatures(w http.ResponseWriter, r *http.Request) {
	var list []featureInfo
	for _, name := range prompts.Features() {
		f, _ := prompts.Lookup(name)
		list = append(list, featureInfo{Name: f.Name, Structured: f.Structured, RequiresPartner: f.RequiresPartner})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"available": app.Gateway.Available(),
		"provider":  app.Gateway.ProviderName(),
		"features":  list,
	})
}

// LLMClearCache evicts cached generations, optionally for one feature only.
func (app *Application) LLMClearCache(w http.ResponseWriter, r *http.Request) {
	if app.Cache == nil {
		respondJSON(w, http.StatusOK, map[string]int{"cleared": 0})
		return
	}
	pattern := "llm:"
	if name := r.URL.Query().Get("feature"); name != "" {
		if _, ok := prompts.Lookup(name); !ok {
			respondJSONError(w, http.StatusNotFound, "unknown feature")
			return
		}
		pattern = cache.LLMPattern(name)
	}
	n := app.Cache.ClearPattern(pattern)
	log.WithFields(log.Fields{"pattern": pattern, "cleared": n}).Info("llm cache cleared")
	respondJSON(w, http.StatusOK, map[string]int{"cleared": n})
}
