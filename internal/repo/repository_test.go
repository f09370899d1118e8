package repo_test

import (
	"testing"

	"servicewatch/internal/repo"
	"servicewatch/internal/repo/memory"
	pg "servicewatch/internal/repo/postgres"
)

// Compile-time interface satisfaction checks.
// Using external test package avoids import cycle.
func TestInterfaceSatisfaction(t *testing.T) {
	var _ repo.EndpointStore = memory.New()
	var _ repo.StatusStore = memory.New()
	var _ repo.OutageStore = memory.New()
	var _ repo.MaintenanceStore = memory.New()
	var _ repo.AlertStore = memory.New()

	// Postgres store types compile against the interfaces, too.
	var _ repo.EndpointStore = (*pg.Store)(nil)
	var _ repo.StatusStore = (*pg.Store)(nil)
	var _ repo.OutageStore = (*pg.Store)(nil)
	var _ repo.MaintenanceStore = (*pg.Store)(nil)
	var _ repo.AlertStore = (*pg.Store)(nil)
}
