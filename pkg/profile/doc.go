// Package profile holds the assistant persona and knowledge base that are sent
// to the upstream as system context.
//
// The current profile is an immutable Snapshot behind an atomic pointer. A
// dispatch reads the snapshot once and uses it for all of its attempts, so an
// update never changes a request that is already in flight:
//
//	snap := store.Load()
//	req := upstream.ChatRequest{Text: msg, SystemContext: snap.SystemContext()}
//
// Profile text comes from configuration and may be backed by files. A Loader
// re-reads the files on demand and a Watcher calls it when they change on disk.
package profile
