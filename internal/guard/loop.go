package guard

// HasLoopPattern reports whether the fingerprint window ends in a repeating
// cycle. For every period p up to half the window length, the last p elements
// are compared to the p elements immediately preceding them; any match is a
// loop. A direct adjacent repeat is the p=1 case of the same rule.
func HasLoopPattern(window []string) bool {
	n := len(window)
	for p := 1; p <= n/2; p++ {
		match := true
		for i := 0; i < p; i++ {
			if window[n-p+i] != window[n-2*p+i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
