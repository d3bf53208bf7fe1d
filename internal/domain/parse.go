package domain

import (
	"encoding/json"
	"regexp"
	"strings"
)

// fencedBlockRe matches the first markdown code fence, optionally tagged json.
var fencedBlockRe = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")

// Parsed is the structured payload extracted from model output.
type Parsed struct {
	Weather *Weather
	Teaser  string
	Trivia  string
}

// ParseResponse extracts the meteo/cultura object from free-form model output.
// Missing or wrong-typed weather degrades to nil; missing cultural data fails.
func ParseResponse(text string) (Parsed, error) {
	content := text
	if m := fencedBlockRe.FindStringSubmatch(text); m != nil {
		content = m[1]
	}

	first := strings.Index(content, "{")
	last := strings.LastIndex(content, "}")
	if first == -1 || last == -1 || last < first {
		return Parsed{}, ErrNoJSONObject
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(content[first:last+1]), &doc); err != nil {
		return Parsed{}, &MalformedJSONError{Err: err}
	}

	cultura, ok := doc["cultura"].(map[string]any)
	if !ok {
		return Parsed{}, ErrIncompleteCulture
	}
	teaser, okTeaser := cultura["descrizione"].(string)
	trivia, okTrivia := cultura["aneddotoApprofondito"].(string)
	if !okTeaser || !okTrivia {
		return Parsed{}, ErrIncompleteCulture
	}

	return Parsed{
		Weather: parseWeather(doc["meteo"]),
		Teaser:  teaser,
		Trivia:  trivia,
	}, nil
}

func parseWeather(v any) *Weather {
	meteo, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	temp, okTemp := meteo["temperatura"].(float64)
	sky, okSky := meteo["statoCielo"].(string)
	if !okTemp || !okSky {
		return nil
	}
	return &Weather{Temperature: temp, Sky: sky}
}
