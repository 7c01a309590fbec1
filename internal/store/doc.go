// Package store persists provider tokens behind an opaque secure key/value contract.
//
// # Secure store contract
//
// [SecureStore] exposes get/set/delete semantics over named secrets. Two
// implementations ship with tempo:
//   - [SQLiteStore] : file-backed store with embedded schema migrations
//   - [MemoryStore] : ephemeral store for tests and throwaway sessions
//
// # Token lifecycle
//
// [Tokens] layers lifecycle rules over a SecureStore:
//   - a [TokenRecord] is either fully absent or has both an access token and an
//     absolute expiry (partial records read back as absent)
//   - [Tokens.IsValid] treats a token inside the expiry buffer as stale and
//     attempts a refresh through the injected [Refresher], reporting the
//     refresh outcome instead
//   - refresh responses that omit a new refresh token retain the previous one
//
// Token values are secrets. They never appear in log output or error strings
// produced by this package.
package store
