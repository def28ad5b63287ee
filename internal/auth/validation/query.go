package validation

import "strings"

// dangerousOperations are SQL operations flagged before execution so the
// query layer can require confirmation and the audit log can record a
// suspicious_query event.
var dangerousOperations = []string{
	"DROP DATABASE", "CREATE DATABASE", "DROP", "TRUNCATE", "DELETE", "ALTER",
}

// DetectDangerousQuery scans a query string for destructive operations and
// returns the ones found, most specific first.
func DetectDangerousQuery(query string) (bool, []string) {
	upper := strings.ToUpper(query)
	var found []string
	for _, op := range dangerousOperations {
		if strings.Contains(upper, op) {
			found = append(found, op)
		}
	}
	return len(found) > 0, found
}
