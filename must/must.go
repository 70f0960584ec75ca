package must

// Be panics when an internal invariant does not hold. Reserved for states
// that indicate a programming error, never for input validation.
func Be(expr bool, msg string) {
	if !expr {
		panic("invariant violated: " + msg)
	}
}
