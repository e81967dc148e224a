package scheduler

import "fmt"

// MisfirePolicy defines how to handle missed schedule occurrences on boot
type MisfirePolicy string

const (
	MisfirePolicySkip      MisfirePolicy = "skip"       // Skip missed occurrences on boot
	MisfirePolicyRunLatest MisfirePolicy = "run_latest" // Run the most recent missed occurrence on boot
)

// ParseMisfirePolicy maps a config or Lua value to a policy. Empty means skip.
func ParseMisfirePolicy(s string) (MisfirePolicy, error) {
	switch MisfirePolicy(s) {
	case "", MisfirePolicySkip:
		return MisfirePolicySkip, nil
	case MisfirePolicyRunLatest:
		return MisfirePolicyRunLatest, nil
	default:
		return "", fmt.Errorf("unknown misfire policy %q", s)
	}
}
