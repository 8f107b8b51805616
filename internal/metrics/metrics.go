// Package metrics holds the prometheus collectors shared by the stores and
// the synchronizer. Collectors are registered on Registry, not on the
// prometheus default registerer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the registry every vaultguard collector is registered on.
var Registry = prometheus.NewRegistry()

var (
	// SecretStoreOps counts secret-store operations by op and result.
	SecretStoreOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vaultguard",
		Subsystem: "secrets",
		Name:      "operations_total",
		Help:      "Secret store operations by operation and result.",
	}, []string{"op", "result"})

	// EntitlementTransitions counts persisted entitlement records by status.
	EntitlementTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vaultguard",
		Subsystem: "entitlement",
		Name:      "transitions_total",
		Help:      "Entitlement records persisted, by resulting status.",
	}, []string{"status"})

	// Reconciliations counts identity index reconciliations by outcome.
	Reconciliations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vaultguard",
		Subsystem: "autofill",
		Name:      "reconciliations_total",
		Help:      "Identity index reconciliations by outcome.",
	}, []string{"outcome"})

	// LegacyImports counts snapshots imported from the legacy file format.
	LegacyImports = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vaultguard",
		Subsystem: "autofill",
		Name:      "legacy_imported_snapshots_total",
		Help:      "Snapshots migrated from the legacy file format.",
	})
)

func init() {
	Registry.MustRegister(SecretStoreOps, EntitlementTransitions, Reconciliations, LegacyImports)
}

// Result converts an error into a "ok"/"error" label value.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
