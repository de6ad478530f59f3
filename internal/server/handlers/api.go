package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/riftproxy/riftproxy/internal/core"
	"github.com/riftproxy/riftproxy/internal/core/engine"
	apperrors "github.com/riftproxy/riftproxy/internal/errors"
)

// Proxy is the lookup surface served under /api.
type Proxy interface {
	ResolveSummonerByName(ctx context.Context, name string, apiKey string) (core.Summoner, error)
	ResolveSummonerByID(ctx context.Context, id string, apiKey string) (core.Summoner, error)
	RefreshSummonerByName(ctx context.Context, name string, apiKey string) (core.Summoner, error)
	MasteriesBySummonerID(ctx context.Context, id string, apiKey string) (engine.MasteryReport, error)
	ChampionInfo(name string) (string, core.ChampionEntry, error)
	RandomChampion() (string, core.ChampionEntry, error)
	RefreshStaticData(ctx context.Context, apiKey string) (engine.StaticRefresh, error)
}

// RateInspector exposes the last observed upstream rate state.
type RateInspector interface {
	State() (core.RateState, bool)
}

// API serves the proxy endpoints. The upstream API key is held server side
// and never taken from callers.
type API struct {
	Proxy  Proxy
	Gate   RateInspector
	APIKey string
}

// SummonerIDResponse is returned by the id-only lookup.
type SummonerIDResponse struct {
	SummonerID string `json:"summonerId"`
}

// SummonerNameResponse is returned by the name-only lookup.
type SummonerNameResponse struct {
	SummonerName string `json:"summonerName"`
}

// ResultResponse acknowledges an action.
type ResultResponse struct {
	Result string `json:"result"`
}

// ChampionResponse wraps one catalog entry with its key.
type ChampionResponse struct {
	Key      string             `json:"key"`
	Name     string             `json:"name"`
	ID       int                `json:"id"`
	Champion core.ChampionEntry `json:"champion"`
}

// StaticRefreshResponse reports the outcome of a static data refresh.
type StaticRefreshResponse struct {
	Version   string `json:"version"`
	Champions int    `json:"champions"`
	Updated   bool   `json:"updated"`
	Fallback  bool   `json:"fallback"`
	Reason    string `json:"reason,omitempty"`
}

// RateStateResponse reports the last observed upstream rate state.
type RateStateResponse struct {
	Observed    bool              `json:"observed"`
	Application []core.RateWindow `json:"application"`
	Method      []core.RateWindow `json:"method"`
	ObservedAt  *time.Time        `json:"observed_at,omitempty"`
}

// SummonerByName handles GET /api/summoners/by-name/{name}.
func (a *API) SummonerByName(w http.ResponseWriter, r *http.Request) {
	name, ok := a.pathParam(w, r, "name")
	if !ok {
		return
	}
	summoner, err := a.Proxy.ResolveSummonerByName(r.Context(), name, a.APIKey)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summoner)
}

// SummonerIDByName handles GET /api/summoners/by-name/{name}/id.
func (a *API) SummonerIDByName(w http.ResponseWriter, r *http.Request) {
	name, ok := a.pathParam(w, r, "name")
	if !ok {
		return
	}
	summoner, err := a.Proxy.ResolveSummonerByName(r.Context(), name, a.APIKey)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SummonerIDResponse{SummonerID: summoner.ID})
}

// RefreshSummoner handles POST /api/summoners/by-name/{name}/refresh.
func (a *API) RefreshSummoner(w http.ResponseWriter, r *http.Request) {
	name, ok := a.pathParam(w, r, "name")
	if !ok {
		return
	}
	if _, err := a.Proxy.RefreshSummonerByName(r.Context(), name, a.APIKey); err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ResultResponse{Result: "success"})
}

// SummonerByID handles GET /api/summoners/{id}.
func (a *API) SummonerByID(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathParam(w, r, "id")
	if !ok {
		return
	}
	summoner, err := a.Proxy.ResolveSummonerByID(r.Context(), id, a.APIKey)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summoner)
}

// SummonerNameByID handles GET /api/summoners/{id}/name.
func (a *API) SummonerNameByID(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathParam(w, r, "id")
	if !ok {
		return
	}
	summoner, err := a.Proxy.ResolveSummonerByID(r.Context(), id, a.APIKey)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SummonerNameResponse{SummonerName: summoner.Name})
}

// Masteries handles GET /api/summoners/{id}/masteries.
func (a *API) Masteries(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathParam(w, r, "id")
	if !ok {
		return
	}
	report, err := a.Proxy.MasteriesBySummonerID(r.Context(), id, a.APIKey)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	if report.Masteries == nil {
		report.Masteries = []core.ChampionMastery{}
	}
	writeJSON(w, http.StatusOK, report)
}

// Champion handles GET /api/champions/{name}.
func (a *API) Champion(w http.ResponseWriter, r *http.Request) {
	name, ok := a.pathParam(w, r, "name")
	if !ok {
		return
	}
	key, entry, err := a.Proxy.ChampionInfo(name)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, championResponse(key, entry))
}

// RandomChampion handles GET /api/champions/random.
func (a *API) RandomChampion(w http.ResponseWriter, r *http.Request) {
	key, entry, err := a.Proxy.RandomChampion()
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, championResponse(key, entry))
}

// RefreshStatic handles POST /api/static/refresh. An upstream failure that
// fell back to stored data is reported with fallback set, not as an error.
func (a *API) RefreshStatic(w http.ResponseWriter, r *http.Request) {
	refresh, err := a.Proxy.RefreshStaticData(r.Context(), a.APIKey)
	if err != nil && !refresh.Fallback {
		respondWithError(w, r, err)
		return
	}

	response := StaticRefreshResponse{
		Version:   refresh.Version.Value,
		Champions: refresh.Catalog.Len(),
		Updated:   refresh.Updated,
		Fallback:  refresh.Fallback,
	}
	if err != nil {
		response.Reason = apperrors.FromUpstream(r.Context(), err).Message
	}
	writeJSON(w, http.StatusOK, response)
}

// RateState handles GET /api/ratelimit.
func (a *API) RateState(w http.ResponseWriter, r *http.Request) {
	response := RateStateResponse{
		Application: []core.RateWindow{},
		Method:      []core.RateWindow{},
	}
	if a.Gate != nil {
		if state, ok := a.Gate.State(); ok {
			response.Observed = true
			if state.Application != nil {
				response.Application = state.Application
			}
			if state.Method != nil {
				response.Method = state.Method
			}
			observedAt := state.ObservedAt
			response.ObservedAt = &observedAt
		}
	}
	writeJSON(w, http.StatusOK, response)
}

func (a *API) pathParam(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	// chi matches on RawPath when it is set, leaving params still escaped.
	value := chi.URLParam(r, key)
	if r.URL.RawPath != "" {
		if decoded, err := url.PathUnescape(value); err == nil {
			value = decoded
		}
	}
	if strings.TrimSpace(value) == "" {
		respondWithError(w, r, apperrors.NewInvalidInputError(key+" is required"))
		return "", false
	}
	return value, true
}

func championResponse(key string, entry core.ChampionEntry) ChampionResponse {
	return ChampionResponse{
		Key:      key,
		Name:     entry.Name,
		ID:       entry.ExternalID,
		Champion: entry,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
