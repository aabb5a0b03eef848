package lua

import (
	"testing"

	"github.com/go-quicktest/qt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const metricsTree = `
-- Foo/Bar.pm --
return { VERSION = "1.0" }
-- Broken.pm --
error("boom")
`

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	rt, err := NewRuntime(testConfig(), WithSources(DirSource(writeTree(t, metricsTree))), WithMetrics(m))
	qt.Assert(t, qt.IsNil(err))
	defer rt.Shutdown()

	_, err = rt.RequireModule("Foo::Bar")
	qt.Assert(t, qt.IsNil(err))
	_, err = rt.RequireModule("Foo::Bar")
	qt.Assert(t, qt.IsNil(err))
	_, _ = rt.RequireModule("Broken")
	_, _ = rt.RequireModule("Missing")
	qt.Assert(t, qt.IsNil(rt.Reload("Foo/Bar.pm")))

	qt.Assert(t, qt.Equals(testutil.ToFloat64(m.Loads.WithLabelValues(OutcomeLoaded)), 2.0))
	qt.Assert(t, qt.Equals(testutil.ToFloat64(m.Loads.WithLabelValues(OutcomeCached)), 1.0))
	qt.Assert(t, qt.Equals(testutil.ToFloat64(m.Loads.WithLabelValues(OutcomeFailed)), 1.0))
	qt.Assert(t, qt.Equals(testutil.ToFloat64(m.Loads.WithLabelValues(OutcomeNotFound)), 1.0))
	qt.Assert(t, qt.Equals(testutil.ToFloat64(m.Reloads.WithLabelValues("ok")), 1.0))
	qt.Assert(t, qt.Equals(testutil.ToFloat64(m.Modules), 1.0))
	qt.Assert(t, qt.Equals(testutil.CollectAndCount(m.LoadDuration), 1))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.load(OutcomeLoaded)
	m.ran(0)
	m.registered(3)
	m.reload(nil)
}
