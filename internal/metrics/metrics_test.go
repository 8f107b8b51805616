package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResult(t *testing.T) {
	assert.Equal(t, "ok", Result(nil))
	assert.Equal(t, "error", Result(errors.New("boom")))
}

func TestRegistry_GathersAllCollectors(t *testing.T) {
	SecretStoreOps.WithLabelValues("save", "ok").Inc()
	EntitlementTransitions.WithLabelValues("active").Inc()
	Reconciliations.WithLabelValues("published").Inc()
	LegacyImports.Add(0)

	families, err := Registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["vaultguard_secrets_operations_total"])
	assert.True(t, names["vaultguard_entitlement_transitions_total"])
	assert.True(t, names["vaultguard_autofill_reconciliations_total"])
	assert.True(t, names["vaultguard_autofill_legacy_imported_snapshots_total"])

	assert.GreaterOrEqual(t, testutil.ToFloat64(SecretStoreOps.WithLabelValues("save", "ok")), 1.0)
}
