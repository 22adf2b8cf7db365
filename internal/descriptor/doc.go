// Package descriptor fetches and parses UPnP device description documents.
//
// A Fetcher makes up to three attempts per location with a fixed delay
// between them. HTTP 404 is terminal and is returned after the first
// attempt. Malformed documents are retried like transport failures.
// Fetches for the same location that overlap in time share one request.
package descriptor
