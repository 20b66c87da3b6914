package asylum

import "math/rand/v2"

// promptPools holds the writing prompts, grouped by genre. An
// unrecognized (or empty) genre draws from the union of all pools.
var promptPools = map[string][]string{
	"dark": {
		"A voice narrates your thoughts.",
		"The asylum was never abandoned.",
		"Every mirror in the house shows a different room.",
		"The obituary in today's paper is yours, dated next week.",
	},
	"fantasy": {
		"Magic disappears overnight.",
		"A god wakes up powerless.",
		"The kingdom's maps stop matching the land.",
		"Your familiar starts keeping secrets.",
	},
	"romance": {
		"Love letters arrive too late.",
		"Two people meet only in dreams.",
		"The bookstore holds one copy of a book written about you.",
		"An old flame returns with no memory of the ending.",
	},
	"scifi": {
		"Memories are illegal.",
		"Earth receives a final warning.",
		"The colony ship's destination no longer exists.",
		"Your backup woke up before you did.",
	},
}

// promptGenres returns the known genre names, for the slash-command
// option choices.
func promptGenres() []string {
	return []string{"dark", "fantasy", "romance", "scifi"}
}

// randomPrompt returns a pseudo-randomly chosen prompt from the named
// pool, or from the union of all pools when the genre is empty or
// unrecognized.
func randomPrompt(genre string) string {
	pool, ok := promptPools[genre]
	if !ok {
		for _, g := range promptGenres() {
			pool = append(pool, promptPools[g]...)
		}
	}
	return pool[rand.IntN(len(pool))]
}
