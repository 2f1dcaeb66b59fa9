package persist

import (
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// buildMySQLDSN constructs a MySQL DSN from an Endpoint.
func buildMySQLDSN(ep Endpoint) string {
	port := ep.Port
	if port == 0 {
		port = 3306
	}
	// Format: user:password@tcp(host:port)/dbname?parseTime=true
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		ep.Username, ep.Password, ep.Host, port, ep.Database,
	)
	if ep.SSLMode == "require" {
		dsn += "&tls=true"
	}
	return dsn
}
