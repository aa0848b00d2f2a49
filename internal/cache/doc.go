// Package cache implements the two read-through tiers that guard the remote
// archive: Pagination maps a coordinate to its page index, and Bodies maps a
// coordinate and message id to the raw body.
//
// Both tiers are write-through. Pagination persists every Put before it
// becomes visible, and Bodies never replaces a stored body, so a crash loses at
// most the fetch that was in flight.
package cache
