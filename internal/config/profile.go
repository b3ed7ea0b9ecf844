package config

import (
	"fmt"
	"os"
)

// ConnectionProfile describes one logical database endpoint.
type ConnectionProfile struct {
	Name     string
	Database string
	Host     string
	Port     int
	Username string
	Password string
	SSLMode  string
}

// WithDatabase returns a copy of the profile pointing at another database on
// the same server.
func (p ConnectionProfile) WithDatabase(name string) ConnectionProfile {
	p.Database = name
	return p
}

// Label returns the logical name for console messages, empty for the primary
// database.
func (p ConnectionProfile) Label() string {
	if p.Name == "" || p.Name == PrimaryDatabase {
		return ""
	}
	return p.Name
}

// String renders the endpoint without credentials.
func (p ConnectionProfile) String() string {
	return fmt.Sprintf("%s@%s:%d/%s", p.Username, p.Host, p.Port, p.Database)
}

// Profile builds a connection profile for the named database with defaults
// applied. database is the fully derived (branch-scoped) database name.
func (c DatabaseConfig) Profile(name, database string) ConnectionProfile {
	host := c.Host
	if host == "" {
		host = "localhost"
	}

	port := c.Port
	if port == 0 {
		port = 5432
	}

	user := c.Username
	if user == "" {
		if u := os.Getenv("USER"); u != "" {
			user = u
		} else {
			user = "postgres"
		}
	}

	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "prefer"
	}

	return ConnectionProfile{
		Name:     name,
		Database: database,
		Host:     host,
		Port:     port,
		Username: user,
		Password: c.Password,
		SSLMode:  sslmode,
	}
}
