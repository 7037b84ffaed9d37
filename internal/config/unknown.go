package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys are the valid top-level keys in the config file.
var knownKeys = map[string]bool{
	// OAuth
	"client_id": true, "client_secret": true, "redirect_uri": true, "scope": true,
	"token_path": true, "refresh_margin": true,
	// API client
	"base_url": true, "user_agent": true, "max_attempts": true, "base_delay": true,
	"max_delay": true, "jitter_fraction": true, "requests_per_second": true, "burst": true,
	"request_timeout": true, "attempt_timeout": true,
	// Polling
	"poll_interval": true, "max_poll_interval": true, "failure_threshold": true,
	// Logging and metrics
	"log_level": true, "log_format": true, "metrics_addr": true,
}

// knownKeysList is knownKeys sorted, so ties in edit distance resolve
// deterministically.
var knownKeysList = func() []string {
	keys := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	reported := make(map[string]bool)

	for _, key := range md.Undecoded() {
		// Tables are not supported, so report only the top-level name.
		name := strings.SplitN(key.String(), ".", 2)[0]
		if reported[name] {
			continue
		}

		reported[name] = true

		if suggestion := closestMatch(name, knownKeysList); suggestion != "" {
			errs = append(errs, fmt.Errorf("unknown config key %q, did you mean %q?", name, suggestion))
			continue
		}

		errs = append(errs, fmt.Errorf("unknown config key %q", name))
	}

	return errors.Join(errs...)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		if d := levenshtein(unknown, k); d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
