package main

import "strings"

// parseAllowList splits the comma-separated AUTHORIZED_USERS value,
// trimming entries and dropping empties.
func parseAllowList(raw string) []string {
	parts := strings.Split(raw, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if id := strings.TrimSpace(p); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func isAuthorized(allowList []string, userID string) bool {
	for _, id := range allowList {
		if id == userID {
			return true
		}
	}
	return false
}
