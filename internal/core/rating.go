package core

// Rating defaults.
const (
	DefaultRating    = 0.5
	DefaultRatingMix = 0.75
)

// Rating computes a new rating from play/skip history. stable is the
// add-one smoothed play ratio; rolling halves the distance to 0 on a skip
// and to 1 on a play. mix weights stable against rolling.
func Rating(playCount, skipCount int64, previous float64, skipped bool, mix float64) float64 {
	var rolling float64
	if skipped {
		rolling = previous - previous/2.0
	} else {
		rolling = previous + (1.0-previous)/2.0
	}
	stable := (float64(playCount) + 1.0) / (float64(playCount) + float64(skipCount) + 2.0)
	return mix*stable + (1.0-mix)*rolling
}

// ClampRating bounds r to [0,1].
func ClampRating(r float64) float64 {
	switch {
	case r < 0:
		return 0
	case r > 1:
		return 1
	default:
		return r
	}
}
