// Package session holds per-call monitoring state and the process-wide
// registry that owns it.
//
// # Registry
//
// The Registry maps call ids to CallSessions and is the single source of
// truth for call state:
//
//	reg := session.NewRegistry(logger)
//	callID, _ := reg.Create("")            // generated id
//	reg.Record(callID, result)             // append analysis result
//	reg.RecordAlert(callID, alert)         // append alert
//	summary, _ := reg.Finalize(callID)     // active -> completed
//
// Sessions are exclusively owned by the registry. Get and ListActive return
// deep copies, never live references.
//
// # Locking
//
// Each session entry carries its own mutex, so concurrent chunk uploads for
// the same call serialize their appends while unrelated calls never contend.
// The registry map is guarded by a separate RWMutex used only for
// lookup/create.
//
// # Lifecycle
//
// Status moves active -> completed exactly once. Recording against a
// completed session fails with ErrSessionCompleted (in-flight chunks racing
// a finalize are rejected, not queued), and finalizing twice fails with
// ErrAlreadyFinalized.
package session
