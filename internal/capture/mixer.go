package capture

// mixPCM sums two PCM buffers into one, each through its own gain stage,
// clamping at the 16-bit range. Either input may be shorter; missing
// samples contribute nothing, so a single source passes through clean.
func mixPCM(a, b []int16, gainA, gainB float64) []int16 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		var sum float64
		if i < len(a) {
			sum += float64(a[i]) * gainA
		}
		if i < len(b) {
			sum += float64(b[i]) * gainB
		}
		out[i] = clamp16(sum)
	}
	return out
}

func clamp16(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
