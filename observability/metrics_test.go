package observability

import (
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

type namedEvent string

func (e namedEvent) EventType() string { return string(e) }

func TestStakePoolMetricsRecordOperations(t *testing.T) {
	m := StakePool()
	m.RecordOperation("deposit", "", 10*time.Millisecond)
	m.RecordOperation("claim_reward", "transfer", time.Millisecond)

	if got := testutil.ToFloat64(m.operations.WithLabelValues("deposit", "success")); got < 1 {
		t.Fatalf("expected deposit success counted, got %v", got)
	}
	if got := testutil.ToFloat64(m.rollbacks); got < 1 {
		t.Fatalf("expected rollback counted, got %v", got)
	}

	m.SetPoolState(uint256.NewInt(1500), uint256.NewInt(10), 1_700_000_300)
	metric := &dto.Metric{}
	if err := m.totalStaked.Write(metric); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	if metric.GetGauge().GetValue() != 1500 {
		t.Fatalf("expected total staked 1500, got %v", metric.GetGauge().GetValue())
	}
	if got := testutil.ToFloat64(m.periodEnd); got != 1_700_000_300 {
		t.Fatalf("unexpected period finish gauge %v", got)
	}
}

func TestEventMetricsCountByType(t *testing.T) {
	m := Events()
	before := testutil.ToFloat64(m.emitted.WithLabelValues("stakepool.deposited"))
	m.Emit(namedEvent("stakepool.deposited"))
	m.Emit(nil)
	if got := testutil.ToFloat64(m.emitted.WithLabelValues("stakepool.deposited")); got != before+1 {
		t.Fatalf("expected one more deposited event, got %v", got)
	}
}

func TestToFloatLargeValues(t *testing.T) {
	huge := new(uint256.Int).SetAllOne()
	if toFloat(huge) <= 1e76 {
		t.Fatalf("expected large float for max uint256")
	}
	if toFloat(nil) != 0 {
		t.Fatalf("expected zero for nil")
	}
}
