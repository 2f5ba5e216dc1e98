// Package strarray provides owned, growable string sequences backing both
// argument vectors and environment vectors.
//
// Every operation returns a fully-built array or nothing: construction never
// leaves a partially-populated vector observable, because a half-built
// vector handed to a process-creation call would corrupt the host process's
// argument or environment list.
//
// Arrays are moved, not shared: Copy produces an independent backing slice,
// and mutating operations never alias another live array's storage.
package strarray
