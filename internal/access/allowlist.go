// Package access implements the per-channel sender allowlist backing
// each transport's IsAllowed check.
package access

import "strings"

// IsSenderAllowed reports whether sender may use a channel given its
// allowlist. sender is formatted "id|name" (name may be empty, in which
// case the trailing "|" is optional). An empty allowlist allows everyone.
// Otherwise sender is allowed iff the allowlist contains the full
// "id|name" string, the bare id, or the bare name (ignoring empty parts).
func IsSenderAllowed(sender string, allowlist []string) bool {
	if len(allowlist) == 0 {
		return true
	}
	for _, entry := range allowlist {
		if entry == sender {
			return true
		}
	}
	for _, part := range strings.SplitN(sender, "|", 2) {
		if part == "" {
			continue
		}
		for _, entry := range allowlist {
			if entry == part {
				return true
			}
		}
	}
	return false
}
