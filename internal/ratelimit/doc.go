// ABOUTME: Package documentation for the rate limiter.
// ABOUTME: Sliding windows keyed by string, shared by tools and the API client.

// Package ratelimit provides a keyed sliding-window rate limiter.
package ratelimit
