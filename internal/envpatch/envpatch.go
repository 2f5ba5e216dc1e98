// Package envpatch rewrites environment vectors so that every child process
// spawned through an explicit-environment call variant inherits the
// interception configuration, whether or not the host process intended to
// propagate it.
package envpatch

import (
	"strings"

	"earshot/internal/envstate"
	"earshot/internal/strarray"
)

// Patch deep-copies source and ensures a key=value entry exists for each
// configured interception variable. An entry with a different value is
// replaced in place, preserving its position; a missing entry is appended.
// Entries for unrelated keys are untouched. Patching an already-patched
// vector with the same state yields identical content.
func Patch(source []string, state *envstate.State) strarray.Array {
	out := strarray.FromSlice(source).Copy()
	if state == nil {
		return out
	}
	for _, pair := range state.Pairs() {
		out = setOrAppend(out, pair[0], pair[1])
	}
	return out
}

func setOrAppend(env strarray.Array, key, value string) strarray.Array {
	prefix := key + "="
	for i := 0; i < env.Len(); i++ {
		if strings.HasPrefix(env.At(i), prefix) {
			if env.At(i)[len(prefix):] != value {
				env.Set(i, prefix+value)
			}
			return env
		}
	}
	return env.Append(prefix + value)
}
