package turn

// EaseInOutCubic maps a linear time fraction into an ease-in-ease-out curve:
// angular velocity is slow at the start and end of the turn and fastest in
// the middle. Monotone on [0, 1] with fixed endpoints; inputs outside the
// interval are clamped.
func EaseInOutCubic(t float64) float64 {
	switch {
	case t <= 0:
		return 0
	case t >= 1:
		return 1
	case t < 0.5:
		return 4 * t * t * t
	default:
		u := -2*t + 2
		return 1 - u*u*u/2
	}
}
