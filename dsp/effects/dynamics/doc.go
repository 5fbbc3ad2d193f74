// Package dynamics provides the level-dependent stages of the real-time
// chain.
//
// Included processors:
//   - NoiseGate: per-channel downward expander with an optional first-order
//     high-pass pre-filter and asymmetric envelope and gain smoothing.
//   - SafetyLimiter: block-based output guard with NaN/Inf sanitization, DC
//     removal, a hard or soft-knee peak limiter, a clip counter and an
//     autocorrelation-based feedback detector.
//
// Build with -tags fastmath to replace the log2/exp helpers with the
// approximations from algo-approx.
package dynamics
