package quota

import (
	"testing"

	"github.com/mar-file-system/gomarfs/internal/marfs/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlwaysAllowNeverDenies(t *testing.T) {
	ns := &model.Namespace{Name: "ns1"}
	assert.NoError(t, AlwaysAllow{}.CheckQuotas(ns, 1<<40))
}

func TestStaticLimiterEnforcesFileCount(t *testing.T) {
	ns := &model.Namespace{Name: "ns1"}
	lim := NewStaticLimiter(0, 1)

	require.NoError(t, lim.CheckQuotas(ns, 0))
	lim.Record(ns, 0)
	assert.Error(t, lim.CheckQuotas(ns, 0))
}

func TestStaticLimiterEnforcesByteCeiling(t *testing.T) {
	ns := &model.Namespace{Name: "ns1"}
	lim := NewStaticLimiter(1000, 0)

	require.NoError(t, lim.CheckQuotas(ns, 900))
	lim.Record(ns, 900)
	assert.Error(t, lim.CheckQuotas(ns, 200))
}

func TestStaticLimiterReleaseCreditsBack(t *testing.T) {
	ns := &model.Namespace{Name: "ns1"}
	lim := NewStaticLimiter(1000, 1)

	lim.Record(ns, 900)
	assert.Error(t, lim.CheckQuotas(ns, 1))

	lim.Release(ns, 900)
	assert.NoError(t, lim.CheckQuotas(ns, 1))
}

func TestStaticLimiterPerNamespaceIsolation(t *testing.T) {
	ns1 := &model.Namespace{Name: "ns1"}
	ns2 := &model.Namespace{Name: "ns2"}
	lim := NewStaticLimiter(0, 1)

	lim.Record(ns1, 0)
	assert.Error(t, lim.CheckQuotas(ns1, 0))
	assert.NoError(t, lim.CheckQuotas(ns2, 0))
}
