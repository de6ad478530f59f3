package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Summoner is a locally tracked player record keyed by ID.
type Summoner struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ProfileIconID int    `json:"profileIconId"`
	RevisionDate  int64  `json:"revisionDate"`
	SummonerLevel int    `json:"summonerLevel"`
}

// StaticVersion is the version token of the static reference dataset.
type StaticVersion struct {
	Value string `json:"LoL"`
}

// ChampionEntry is a single champion in the static catalog.
type ChampionEntry struct {
	Name       string
	ExternalID int
	// Attributes holds the upstream entry verbatim.
	Attributes json.RawMessage
}

type championWire struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

// UnmarshalJSON decodes an upstream champion entry, keeping the raw document.
func (e *ChampionEntry) UnmarshalJSON(data []byte) error {
	var wire championWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("decode champion entry: %w", err)
	}

	e.Name = wire.Name
	e.ExternalID = 0
	if key := strings.TrimSpace(wire.Key); key != "" {
		id, err := strconv.Atoi(key)
		if err != nil {
			return fmt.Errorf("decode champion key %q: %w", key, err)
		}
		e.ExternalID = id
	}
	e.Attributes = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON writes the upstream entry back out unchanged.
func (e ChampionEntry) MarshalJSON() ([]byte, error) {
	if len(e.Attributes) > 0 {
		return e.Attributes, nil
	}
	return json.Marshal(championWire{Name: e.Name, Key: strconv.Itoa(e.ExternalID)})
}

// ChampionCatalog is the versioned static champion dataset.
//
// A catalog is replaced wholesale and never mutated in place, so values may
// share the Data map safely.
type ChampionCatalog struct {
	Version string                   `json:"version"`
	Data    map[string]ChampionEntry `json:"data"`
}

// Keys returns the catalog keys in sorted order.
func (c ChampionCatalog) Keys() []string {
	keys := make([]string, 0, len(c.Data))
	for key := range c.Data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of champions in the catalog.
func (c ChampionCatalog) Len() int {
	return len(c.Data)
}

// NameByExternalID returns the display name for a numeric champion id.
func (c ChampionCatalog) NameByExternalID(id int) (string, bool) {
	for _, entry := range c.Data {
		if entry.ExternalID == id {
			return entry.Name, true
		}
	}
	return "", false
}

// ChampionMastery is a per-champion mastery record enriched with local names.
type ChampionMastery struct {
	ChampionID     int    `json:"championId"`
	ChampionLevel  int    `json:"championLevel"`
	ChampionPoints int    `json:"championPoints"`
	LastPlayTime   int64  `json:"lastPlayTime"`
	ChampionName   string `json:"championName"`
}

// RateWindow is one limit:window pair with its current count.
type RateWindow struct {
	Limit         int `json:"limit"`
	WindowSeconds int `json:"window_seconds"`
	Count         int `json:"count"`
}

// Exhausted reports whether the window has no remaining calls.
func (w RateWindow) Exhausted() bool {
	return w.Count >= w.Limit
}

// RateState is the most recently observed pair of tier window lists.
type RateState struct {
	Application []RateWindow `json:"application"`
	Method      []RateWindow `json:"method"`
	ObservedAt  time.Time    `json:"observed_at"`
}

// NormalizeName lower-cases a summoner name and strips spaces.
func NormalizeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "")
}
