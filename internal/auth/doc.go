// ABOUTME: Package auth resolves credentials for the upstream knowledge-graph API.
// ABOUTME: Static API key, email+password login with token caching, or anonymous.

// Package auth implements the upstream credential chain.
//
// Resolution order: a static API key wins when configured; otherwise
// email+password login obtains a bearer token that is cached and refreshed
// near expiry; with neither configured the source is anonymous and tools
// that require auth fail with an authentication error.
package auth
