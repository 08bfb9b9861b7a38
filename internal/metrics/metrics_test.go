package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if httpRequestsTotal == nil || httpRequestDurationSeconds == nil ||
		jobsTotal == nil || activeWorkers == nil || jobDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveJob(t *testing.T) {
	Init()
	before := testutil.ToFloat64(jobsTotal.WithLabelValues("succeeded"))
	ObserveJob("succeeded", time.Second)
	if val := testutil.ToFloat64(jobsTotal.WithLabelValues("succeeded")); val != before+1 {
		t.Errorf("Expected jobsTotal to grow by 1, got %f -> %f", before, val)
	}
}

func TestActiveWorkers(t *testing.T) {
	Init()
	before := testutil.ToFloat64(activeWorkers)
	IncActiveWorkers()
	if val := testutil.ToFloat64(activeWorkers); val != before+1 {
		t.Errorf("Expected activeWorkers %f, got %f", before+1, val)
	}
	DecActiveWorkers()
	if val := testutil.ToFloat64(activeWorkers); val != before {
		t.Errorf("Expected activeWorkers %f, got %f", before, val)
	}
}
