// Package browser attaches to an already running Chrome over the DevTools
// protocol and hands out a single shared page to the rest of the program.
package browser

import "strings"

// DefaultEndpoint is tried when no other candidate is configured or
// reachable.
const DefaultEndpoint = "http://localhost:9222"

// EnvCDPURL names the environment variable holding an endpoint candidate.
const EnvCDPURL = "DEEPDIVER_CDP_URL"

// Source records where an endpoint candidate came from.
type Source string

const (
	SourceOverride Source = "override"
	SourceEnv      Source = "env"
	SourceProject  Source = "project"
	SourceUser     Source = "user"
	SourceDefault  Source = "default"
)

// Endpoint is one CDP endpoint candidate.
type Endpoint struct {
	Source Source
	URL    string
}

func (e Endpoint) String() string {
	return string(e.Source) + ":" + e.URL
}

// Candidates builds the ordered endpoint chain: explicit override, then the
// environment, then project and user configuration, then the default. Blank
// entries are skipped and duplicates keep their first position.
func Candidates(override, env, project, user string) []Endpoint {
	raw := []Endpoint{
		{Source: SourceOverride, URL: override},
		{Source: SourceEnv, URL: env},
		{Source: SourceProject, URL: project},
		{Source: SourceUser, URL: user},
		{Source: SourceDefault, URL: DefaultEndpoint},
	}

	seen := make(map[string]bool, len(raw))
	out := make([]Endpoint, 0, len(raw))
	for _, e := range raw {
		e.URL = strings.TrimSpace(e.URL)
		if e.URL == "" {
			continue
		}
		key := normalize(e.URL)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}

func normalize(url string) string {
	return strings.ToLower(strings.TrimRight(url, "/"))
}
