package dynamics

const (
	// log2Of10Div20 converts decibels to the log2 domain: log2(10) / 20.
	log2Of10Div20 = 0.166096404744

	minSampleRate = 8000.0
	maxSampleRate = 384000.0
	maxChannels   = 2
)

// dbToLog2 converts a level in dB to log2 of the linear amplitude.
func dbToLog2(db float64) float64 {
	return db * log2Of10Div20
}

// log2ToDB converts log2 of a linear amplitude back to dB.
func log2ToDB(l float64) float64 {
	return l / log2Of10Div20
}

// linearToDB returns 20*log10(x) for x > 0.
func linearToDB(x float64) float64 {
	return log2ToDB(mathLog2(x))
}

// dbToLinear returns 10^(db/20).
func dbToLinear(db float64) float64 {
	return mathPower2(dbToLog2(db))
}

// timeCoefficient returns the one-pole smoothing coefficient exp(-1/(T*sr))
// for a time constant given in milliseconds.
func timeCoefficient(ms, sampleRate float64) float64 {
	return mathExp(-1 / (ms * 0.001 * sampleRate))
}
