// Package deploy negotiates a deployment key with the hosting control plane,
// uploads the exported app and waits for it to come up.
package deploy

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"
)

var (
	// ErrKeyRequired is returned in non-interactive mode when no key was given.
	ErrKeyRequired = errors.New("please provide a deployment key when not in interactive mode")
	// ErrKeyUnavailable is returned when the control plane will not confirm a key.
	ErrKeyUnavailable = errors.New("unable to find a suitable deployment key")
	// ErrInvalidEnv is returned for env entries that are not NAME=value.
	ErrInvalidEnv = errors.New("invalid env")
	// ErrMissingParams is returned when a required deployment parameter is empty.
	ErrMissingParams = errors.New("please provide all the required parameters")
	// ErrAborted is returned when the operator declines to pick a key.
	ErrAborted = errors.New("deployment aborted")
)

// DefaultRegion is offered when no region was supplied.
const DefaultRegion = "sjc"

// KnownRegions are the region codes the hosting service advertises. Unknown
// codes are passed through; the list only drives "did you mean" hints.
var KnownRegions = []string{
	"ams", "arn", "atl", "bog", "bos", "cdg", "den", "dfw", "ewr", "eze",
	"fra", "gdl", "gig", "gru", "hkg", "iad", "jnb", "lax", "lhr", "mad",
	"mia", "nrt", "ord", "otp", "phx", "qro", "scl", "sea", "sin", "sjc",
	"syd", "waw", "yul", "yyz",
}

// Intent is what the operator asked for on the command line.
type Intent struct {
	AppName          string
	Key              string
	Regions          []string
	Envs             []string
	CPUs             int
	MemoryMB         int
	AutoStart        bool
	AutoStop         bool
	FrontendHostname string
	Interactive      bool
}

// Resolved is a fully negotiated deployment, ready for upload.
type Resolved struct {
	AppName   string
	Key       string
	APIURL    string
	DeployURL string
	AppPrefix string
	Overwrite bool
	Regions   []string
	Envs      map[string]string
}

var envNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ParseEnvs turns NAME=value entries into a map. Values may be empty or contain '='.
func ParseEnvs(entries []string) (map[string]string, error) {
	envs := make(map[string]string, len(entries))
	for _, entry := range entries {
		name, value, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("%w %q: should be <key>=<value>", ErrInvalidEnv, entry)
		}
		if !envNamePattern.MatchString(name) {
			return nil, fmt.Errorf("%w name %q: should start with a letter or underscore, followed by letters, digits, or underscores", ErrInvalidEnv, name)
		}
		envs[name] = value
	}
	return envs, nil
}

// SuggestRegion returns the closest known region to code, or "" when code is
// known or nothing is close.
func SuggestRegion(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	best, bestDist := "", 2
	for _, r := range KnownRegions {
		if r == code {
			return ""
		}
		if d := levenshtein.ComputeDistance(code, r); d < bestDist {
			best, bestDist = r, d
		}
	}
	return best
}
