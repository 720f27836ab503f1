package utils

// OptionalString returns nil for an empty (or blank) string so optional JSON fields are omitted.
func OptionalString(s string) *string {
	if len(s) == 0 {
		return nil
	}
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' {
			return &s
		}
	}
	return nil
}
