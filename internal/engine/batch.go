package engine

// NextBatchSize decides how many more candidates the producer should
// queue before re-checking progress, based on how the run is converging.
// A low acceptance rate means most candidates are being rejected, so the
// producer over-provisions; a high rate means the remaining need plus a
// small buffer is enough.
func NextBatchSize(attempted, accepted, needed, target int) int {
	if needed <= 0 {
		return 0
	}
	if attempted == 0 {
		return target
	}
	rate := float64(accepted) / float64(attempted)
	switch {
	case rate < 0.3:
		return target * 2
	case rate > 0.6:
		size := int(float64(needed)/rate) + 5
		if size < 10 {
			size = 10
		}
		return size
	default:
		return target
	}
}
