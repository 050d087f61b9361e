// Package dsncollab resolves the --dsn connection string objectplan's CLI
// accepts (a postgres:// URL or a key=value DSN) into one normalized DSN, and
// can open it through database/sql for read-only paths that don't need pgx's
// richer driver.
package dsncollab

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// ConnectionConfig holds the connection fields parsed out of a DSN.
type ConnectionConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
}

// ParseDSN normalizes either a postgres:// URL or a key=value DSN string into
// a ConnectionConfig, using lib/pq's URL parser for the URL form.
func ParseDSN(raw string) (*ConnectionConfig, error) {
	if strings.HasPrefix(raw, "postgres://") || strings.HasPrefix(raw, "postgresql://") {
		parsed, err := pq.ParseURL(raw)
		if err != nil {
			return nil, fmt.Errorf("dsncollab: parsing dsn url: %w", err)
		}
		return configFromKeyValue(parsed), nil
	}
	return configFromKeyValue(raw), nil
}

// configFromKeyValue splits a "key=value key=value" DSN (the shape
// pq.ParseURL itself emits) into a ConnectionConfig.
func configFromKeyValue(kv string) *ConnectionConfig {
	c := &ConnectionConfig{SSLMode: "prefer"}
	for _, field := range strings.Fields(kv) {
		k, v, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		v = strings.Trim(v, "'\"")
		switch k {
		case "host":
			c.Host = v
		case "port":
			fmt.Sscanf(v, "%d", &c.Port)
		case "dbname":
			c.Database = v
		case "user":
			c.User = v
		case "password":
			c.Password = v
		case "sslmode":
			c.SSLMode = v
		}
	}
	return c
}

// DSN renders c back into the key=value form database/sql's "postgres"
// driver (lib/pq) and pgx's stdlib driver both accept.
func (c *ConnectionConfig) DSN() string {
	var parts []string
	if c.Host != "" {
		parts = append(parts, fmt.Sprintf("host=%s", c.Host))
	}
	if c.Port != 0 {
		parts = append(parts, fmt.Sprintf("port=%d", c.Port))
	}
	if c.Database != "" {
		parts = append(parts, fmt.Sprintf("dbname=%s", c.Database))
	}
	if c.User != "" {
		parts = append(parts, fmt.Sprintf("user=%s", c.User))
	}
	if c.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", c.Password))
	}
	if c.SSLMode != "" {
		parts = append(parts, fmt.Sprintf("sslmode=%s", c.SSLMode))
	}
	return strings.Join(parts, " ")
}

// Open opens a database/sql connection through lib/pq's "postgres" driver
// and verifies it with a ping.
func Open(c *ConnectionConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", c.DSN())
	if err != nil {
		return nil, fmt.Errorf("dsncollab: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("dsncollab: ping: %w", err)
	}
	return db, nil
}
