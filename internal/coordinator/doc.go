// Package coordinator ties the call-monitoring pipeline together.
//
// # Pipeline
//
// Each audio chunk flows through five stages: validate and persist the raw
// artifact, run transcription and classification, record the result on the
// session, evaluate alert thresholds, and publish to subscribers. The first
// two stages run concurrently across chunks; the last three are serialized
// per call by a pipeline mutex, so subscribers observe one chunk's events
// completely before the next chunk's begin.
//
// # Lifecycle
//
// StartCall registers the session and announces it, IngestChunk drives the
// pipeline, and FinalizeCall completes the session and broadcasts its
// summary. An optional TTL reaper (Run) force-finalizes sessions abandoned
// mid-call, so a crashed caller cannot leak an active session forever.
package coordinator
