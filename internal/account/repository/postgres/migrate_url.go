package postgres

import "strings"

// MigrateURL rewrites a postgres DSN to the pgx/v5 golang-migrate driver scheme.
func MigrateURL(dsn string) string {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, scheme) {
			return "pgx5://" + strings.TrimPrefix(dsn, scheme)
		}
	}
	return dsn
}
