// Package manager owns the process-wide generation pipeline and coordinates
// requests against it. It is structured into small files by concern:
//
//   - manager.go: core Manager type, constructor, Load/Ready.
//   - config.go: Config and package defaults; New applies defaults.
//   - types.go: lifecycle State and the Output of a generation.
//   - errors.go: error types and helpers (IsTooBusy).
//   - queue_admission.go: optional bounded queue with a single in-flight slot.
//   - generate.go: Generate, the request entry point.
//   - status_report.go: Status reporting.
//   - events.go, eventpub_*.go: lifecycle event publishing.
//
// The pipeline is loaded once at startup and shared by every request. Unless
// admission is configured, requests reach the pipeline concurrently and any
// serialisation is left to the backend.
//
// External packages should use public methods only (New, Load, Ready,
// Status, Generate).
package manager
