package app

import "math/rand"

// AssignGroups partitions a roster into groupCount groups as evenly as
// possible. The roster order is shuffled first so group membership carries
// no bias from join order; sizes differ by at most one. When groupCount
// exceeds the roster size the surplus groups simply stay empty.
func AssignGroups(identityIDs []string, groupCount int, rng *rand.Rand) map[string]int {
	if groupCount < 1 {
		groupCount = 1
	}

	shuffled := make([]string, len(identityIDs))
	copy(shuffled, identityIDs)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	groups := make(map[string]int, len(shuffled))
	for i, id := range shuffled {
		groups[id] = i%groupCount + 1
	}
	return groups
}
