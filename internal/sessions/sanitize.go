package sessions

import "strings"

// sanitizeKey replaces characters unsafe for filenames with underscores,
// replaces / \ : and space with _.
func sanitizeKey(key string) string {
	r := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		" ", "_",
	)
	return r.Replace(key)
}
