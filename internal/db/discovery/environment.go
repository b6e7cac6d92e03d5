package discovery

import (
	"strconv"

	"github.com/rebeliceyang/lazydb/internal/models"
)

// EnvironmentProfileName names the profile built from PG* variables
const EnvironmentProfileName = "environment"

// FromEnvironment builds a profile from the standard libpq variables. It
// reports false when none of PGHOST, PGDATABASE and PGUSER is set.
func FromEnvironment(getenv func(string) string) (models.ConnectionProfile, bool) {
	host := getenv("PGHOST")
	database := getenv("PGDATABASE")
	user := getenv("PGUSER")

	if host == "" && database == "" && user == "" {
		return models.ConnectionProfile{}, false
	}

	if host == "" {
		host = "localhost"
	}
	if user == "" {
		user = getenv("USER")
	}

	port := defaultPort
	if p, err := strconv.Atoi(getenv("PGPORT")); err == nil && p > 0 && p <= 65535 {
		port = strconv.Itoa(p)
	}

	return models.ConnectionProfile{
		Driver:   models.DriverPostgres,
		Name:     EnvironmentProfileName,
		Host:     host,
		Port:     port,
		Username: user,
		Password: getenv("PGPASSWORD"),
		Database: database,
	}, true
}
