// Package analytics turns a window of raw storefront events into an
// AnalyticsResult.
//
// A run is strictly sequential: the Aggregator builds the summary and the
// channel/campaign attribution, the Analyzer buckets the window into daily
// trends and flags delivery issues, and the Recommender applies a fixed,
// ordered rule set. The Orchestrator sequences the three stages and hands
// the finished result to a RunStore exactly once.
//
// Event sources and run stores are injected; see internal/repository/postgres,
// internal/snowflake and internal/storage for the production backends.
package analytics
