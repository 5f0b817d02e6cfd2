// Package advisor derives an AIAdviceResult from one AnalyticsResult.
//
// Everything here is a pure function of the input result and the engine
// configuration: health score, quick stats, ranked top actions, trailing
// k-sigma anomalies, budget rebalancing, least-squares predictions and
// Pearson correlations. Sparse input degrades each section to an empty
// list; a nil input yields Fallback.
package advisor
