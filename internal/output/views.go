package output

import (
	"strconv"
	"time"

	"github.com/riftproxy/riftproxy/internal/core"
	"github.com/riftproxy/riftproxy/internal/core/engine"
)

// SummonerView lists summoner records.
type SummonerView struct {
	Summoners []core.Summoner
}

func (v SummonerView) Title() string    { return "" }
func (v SummonerView) Header() []string { return []string{"ID", "Name", "Level", "Icon", "Revised"} }
func (v SummonerView) Value() any {
	if v.Summoners == nil {
		return []core.Summoner{}
	}
	return v.Summoners
}

func (v SummonerView) Rows() [][]string {
	rows := make([][]string, 0, len(v.Summoners))
	for _, s := range v.Summoners {
		rows = append(rows, []string{
			s.ID,
			s.Name,
			strconv.Itoa(s.SummonerLevel),
			strconv.Itoa(s.ProfileIconID),
			formatMillis(s.RevisionDate),
		})
	}
	return rows
}

// MasteryView renders a mastery report.
type MasteryView struct {
	Report engine.MasteryReport
}

func (v MasteryView) Title() string {
	name := v.Report.SummonerName
	if name == "" {
		name = v.Report.SummonerID
	}
	return "Champion mastery: " + name
}

func (v MasteryView) Header() []string {
	return []string{"Champion", "ID", "Level", "Points", "Last played"}
}

func (v MasteryView) Value() any { return v.Report }

func (v MasteryView) Rows() [][]string {
	rows := make([][]string, 0, len(v.Report.Masteries))
	for _, m := range v.Report.Masteries {
		rows = append(rows, []string{
			m.ChampionName,
			strconv.Itoa(m.ChampionID),
			strconv.Itoa(m.ChampionLevel),
			strconv.Itoa(m.ChampionPoints),
			formatMillis(m.LastPlayTime),
		})
	}
	return rows
}

// ChampionView renders a single catalog entry.
type ChampionView struct {
	Key   string
	Entry core.ChampionEntry
}

func (v ChampionView) Title() string    { return "" }
func (v ChampionView) Header() []string { return []string{"Key", "Name", "ID"} }

func (v ChampionView) Rows() [][]string {
	return [][]string{{v.Key, v.Entry.Name, strconv.Itoa(v.Entry.ExternalID)}}
}

func (v ChampionView) Value() any {
	return map[string]any{
		"key":      v.Key,
		"name":     v.Entry.Name,
		"id":       v.Entry.ExternalID,
		"champion": v.Entry,
	}
}

// RateView renders the last observed upstream rate state.
type RateView struct {
	State    core.RateState
	Observed bool
}

func (v RateView) Title() string {
	if !v.Observed {
		return "Upstream rate state: not observed"
	}
	return "Upstream rate state at " + v.State.ObservedAt.UTC().Format(time.RFC3339)
}

func (v RateView) Header() []string {
	return []string{"Tier", "Limit", "Window", "Count", "Remaining", "Status"}
}

func (v RateView) Rows() [][]string {
	var rows [][]string
	appendTier := func(tier string, windows []core.RateWindow) {
		for _, w := range windows {
			status := "ok"
			if w.Exhausted() {
				status = "exhausted"
			}
			remaining := w.Limit - w.Count
			if remaining < 0 {
				remaining = 0
			}
			rows = append(rows, []string{
				tier,
				strconv.Itoa(w.Limit),
				strconv.Itoa(w.WindowSeconds) + "s",
				strconv.Itoa(w.Count),
				strconv.Itoa(remaining),
				status,
			})
		}
	}
	appendTier("application", v.State.Application)
	appendTier("method", v.State.Method)
	return rows
}

func (v RateView) Value() any {
	return map[string]any{
		"observed": v.Observed,
		"state":    v.State,
	}
}

// StaticView renders the outcome of a static data refresh.
type StaticView struct {
	Refresh engine.StaticRefresh
	Err     error
}

// Result is updated, current or fallback.
func (v StaticView) Result() string {
	switch {
	case v.Refresh.Fallback:
		return "fallback"
	case v.Refresh.Updated:
		return "updated"
	default:
		return "current"
	}
}

func (v StaticView) Title() string    { return "Static data" }
func (v StaticView) Header() []string { return []string{"Version", "Champions", "Result", "Reason"} }

func (v StaticView) Rows() [][]string {
	return [][]string{{
		v.Refresh.Version.Value,
		strconv.Itoa(v.Refresh.Catalog.Len()),
		v.Result(),
		v.reason(),
	}}
}

func (v StaticView) Value() any {
	out := map[string]any{
		"version":   v.Refresh.Version.Value,
		"champions": v.Refresh.Catalog.Len(),
		"result":    v.Result(),
	}
	if reason := v.reason(); reason != "" {
		out["reason"] = reason
	}
	return out
}

func (v StaticView) reason() string {
	if v.Err == nil {
		return ""
	}
	return v.Err.Error()
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
