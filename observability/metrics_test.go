package observability

import (
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"viewledger/core/events"
	"viewledger/core/types"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, fam := range families {
		out[fam.GetName()] = fam
	}
	return out
}

func TestPaywallMetricsRecordValues(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPaywallMetrics(reg)

	m.ObserveTransition("unlock", "committed", 5*time.Millisecond)
	m.ObserveTransition("unlock", "rejected", time.Millisecond)
	m.ObserveUnlock(big.NewInt(60), big.NewInt(940))
	m.ObserveWithdrawal(big.NewInt(60))
	m.SetHeight(7)

	fams := gather(t, reg)
	transitions := fams["viewledger_paywall_transitions_total"]
	require.NotNil(t, transitions)
	require.Len(t, transitions.GetMetric(), 2)
	require.Equal(t, 60.0, fams["viewledger_paywall_platform_fees_collected_total"].GetMetric()[0].GetCounter().GetValue())
	require.Equal(t, 940.0, fams["viewledger_paywall_creator_earnings_paid_total"].GetMetric()[0].GetCounter().GetValue())
	require.Equal(t, 60.0, fams["viewledger_paywall_platform_fees_withdrawn_total"].GetMetric()[0].GetCounter().GetValue())
	require.Equal(t, 7.0, fams["viewledger_ledger_height"].GetMetric()[0].GetGauge().GetValue())
}

func TestModuleMetricsCountsErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newModuleMetrics(reg)
	m.Observe("paywall", "paywall_unlock", 0, time.Millisecond)
	m.Observe("paywall", "paywall_unlock", -32033, time.Millisecond)
	m.RecordThrottle("paywall", "rate_limit")

	fams := gather(t, reg)
	errs := fams["viewledger_module_errors_total"]
	require.NotNil(t, errs)
	require.Equal(t, 1.0, errs.GetMetric()[0].GetCounter().GetValue())
	require.Len(t, fams["viewledger_module_requests_total"].GetMetric(), 2)
	require.NotNil(t, fams["viewledger_module_throttles_total"])
}

func TestEventMetricsCountByType(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEventMetrics(reg)
	rec := &types.EventRecord{Seq: 1, Event: types.NewEvent("paywall.video.uploaded")}
	m.Emit(events.Committed{Record: rec})
	m.Emit(events.Committed{Record: rec})

	fams := gather(t, reg)
	counter := fams["viewledger_events_committed_total"].GetMetric()[0]
	require.Equal(t, 2.0, counter.GetCounter().GetValue())
	require.Equal(t, "paywall.video.uploaded", counter.GetLabel()[0].GetValue())
}
