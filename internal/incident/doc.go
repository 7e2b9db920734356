// Package incident implements Gatekeeper's deduplication and regression
// engine: message normalization, signature hashing, lifecycle
// classification, single and batch ingestion, and async enrichment
// dispatch. Persistence lives behind the Store interface.
package incident
