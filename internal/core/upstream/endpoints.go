package upstream

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/riftproxy/riftproxy/internal/core"
)

// Base selects which upstream host an endpoint lives on.
type Base int

const (
	// BasePlatform is the rate-limited platform API.
	BasePlatform Base = iota
	// BaseStatic is the static-data mirror. It is not rate limited.
	BaseStatic
)

func (b Base) String() string {
	switch b {
	case BasePlatform:
		return "platform"
	case BaseStatic:
		return "static"
	default:
		return "unknown"
	}
}

// Endpoint is a named upstream path template.
type Endpoint struct {
	Name        string
	Base        Base
	Template    string
	RequiresKey bool
}

// Placeholder names used by the endpoint templates.
const (
	ParamSummonerName = "summonerName"
	ParamSummonerID   = "summonerID"
	ParamVersion      = "version"
	ParamLocale       = "locale"
)

var (
	SummonerByName = Endpoint{
		Name:        "summoner-by-name",
		Base:        BasePlatform,
		Template:    "/lol/summoner/v4/summoners/by-name/{summonerName}",
		RequiresKey: true,
	}
	SummonerByID = Endpoint{
		Name:        "summoner-by-id",
		Base:        BasePlatform,
		Template:    "/lol/summoner/v4/summoners/{summonerID}",
		RequiresKey: true,
	}
	MasteriesBySummoner = Endpoint{
		Name:        "masteries-by-summoner",
		Base:        BasePlatform,
		Template:    "/lol/champion-mastery/v4/champion-masteries/by-summoner/{summonerID}",
		RequiresKey: true,
	}
	StaticVersions = Endpoint{
		Name:     "static-versions",
		Base:     BaseStatic,
		Template: "/api/versions.json",
	}
	StaticChampions = Endpoint{
		Name:     "static-champions",
		Base:     BaseStatic,
		Template: "/cdn/{version}/data/{locale}/champion.json",
	}
)

// Endpoints lists every known endpoint.
func Endpoints() []Endpoint {
	return []Endpoint{SummonerByName, SummonerByID, MasteriesBySummoner, StaticVersions, StaticChampions}
}

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z]+)\}`)

// Expand substitutes path-escaped parameter values into the template.
// A placeholder without a non-empty value is a BadRequest error.
func (e Endpoint) Expand(params map[string]string) (string, error) {
	var missing []string
	path := placeholderPattern.ReplaceAllStringFunc(e.Template, func(match string) string {
		name := match[1 : len(match)-1]
		value := strings.TrimSpace(params[name])
		if value == "" {
			missing = append(missing, name)
			return match
		}
		return url.PathEscape(value)
	})

	if len(missing) > 0 {
		return "", &core.UpstreamError{
			Kind:     core.KindBadRequest,
			Endpoint: e.Name,
			Err:      fmt.Errorf("missing path parameter(s): %s", strings.Join(missing, ", ")),
		}
	}
	return path, nil
}
