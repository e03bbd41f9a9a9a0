package db

import (
	"strings"

	"github.com/aecoa/aecoa/errors"
)

// ErrDatabaseClosed marks work that reached the run database after it was closed
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed reports whether err comes from a closed database. Errors
// from database/sql are matched by message since they are not wrapped.
func IsDatabaseClosed(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrDatabaseClosed):
		return true
	}
	return strings.Contains(err.Error(), "database is closed")
}
