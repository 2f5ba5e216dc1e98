// Package interpose replaces the process-creation entry points of an
// intercepted process.
//
// Each hook has the shape of the entry point it replaces: it builds a call
// record, hands it to the reporter, then forwards the call to the real
// implementation resolved once at construction time. Entry points that
// carry an explicit environment vector forward a patched copy so children
// inherit interception; entry points that search PATH run under a
// capture/restore/call/restore sequence so the search observes the real
// interception environment while the caller's own environment is left
// untouched afterwards.
//
// Results of the forwarded call are returned unchanged. A hook never alters
// the observable behavior of the host process: when the captured
// environment state is invalid, every hook is a pure pass-through. Failures
// in the reporting path itself are fatal to the process, never silently
// degraded.
package interpose
