package bus

// matchGlob reports whether topic matches pattern, where '*' matches any
// run of characters (including none, and including dots — topics are
// matched as a single string, not segment-by-segment) and '?' matches
// exactly one character. This mirrors Python's fnmatch semantics used by
// the system this bus was modeled on, restricted to the two wildcards the
// topic grammar actually uses.
func matchGlob(pattern, topic string) bool {
	return matchGlobBytes([]byte(pattern), []byte(topic))
}

func matchGlobBytes(pattern, topic []byte) bool {
	// Standard greedy backtracking glob match, iterative with a
	// remembered "last star" position so it runs in linear-ish time for
	// the short, simple patterns topics use (no pathological blowup risk
	// since '*' here is never adjacent to itself in practice).
	var pi, ti int
	var starIdx = -1
	var starMatch int

	for ti < len(topic) {
		if pi < len(pattern) && (pattern[pi] == '?' || pattern[pi] == topic[ti]) {
			pi++
			ti++
			continue
		}
		if pi < len(pattern) && pattern[pi] == '*' {
			starIdx = pi
			starMatch = ti
			pi++
			continue
		}
		if starIdx != -1 {
			pi = starIdx + 1
			starMatch++
			ti = starMatch
			continue
		}
		return false
	}

	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}
