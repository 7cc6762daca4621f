package stepflow

import (
	"database/sql"

	"github.com/petrijr/stepflow/internal/persistence"
	"github.com/petrijr/stepflow/pkg/api"
)

// RunFilter selects run records from the history database. Zero values
// mean "no filter".
type RunFilter struct {
	Pipeline string
	Status   Status
}

// GetRun looks up one run record by id in the history database.
func GetRun(db *sql.DB, id string) (*RunRecord, error) {
	store, err := persistence.NewSQLiteRunStore(db)
	if err != nil {
		return nil, err
	}
	return store.GetRun(id)
}

// ListRuns returns the run records matching the filter, ordered by start
// time.
func ListRuns(db *sql.DB, filter RunFilter) ([]*RunRecord, error) {
	store, err := persistence.NewSQLiteRunStore(db)
	if err != nil {
		return nil, err
	}
	return store.ListRuns(persistence.RunFilter{
		Pipeline: filter.Pipeline,
		Status:   api.Status(filter.Status),
	})
}
