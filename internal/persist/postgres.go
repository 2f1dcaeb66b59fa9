package persist

import (
	"fmt"

	_ "github.com/lib/pq"
)

// buildPostgresDSN constructs a Postgres connection string from an Endpoint.
func buildPostgresDSN(ep Endpoint) string {
	port := ep.Port
	if port == 0 {
		port = 5432
	}
	sslMode := ep.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		ep.Host, port, ep.Username, ep.Password, ep.Database, sslMode,
	)
}
