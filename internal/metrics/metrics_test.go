package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func value(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestHelpersAreSafeBeforeRegister(t *testing.T) {
	if httpRequestsTotal != nil {
		t.Skip("metrics already registered")
	}
	IncRequest("GET", "/health", 200)
	IncStoreOp("memory", "get", nil)
	ObserveResults(time.Millisecond, nil)
}

func TestCounters(t *testing.T) {
	Register()
	Register()

	before := value(t, storeOpsTotal.WithLabelValues("memory", "put", "error"))
	IncStoreOp("memory", "put", errors.New("down"))
	if got := value(t, storeOpsTotal.WithLabelValues("memory", "put", "error")); got != before+1 {
		t.Fatalf("expected %v, got %v", before+1, got)
	}

	before = value(t, httpRequestsTotal.WithLabelValues("POST", "/api/v1/questions", "201"))
	IncRequest("POST", "/api/v1/questions", 201)
	if got := value(t, httpRequestsTotal.WithLabelValues("POST", "/api/v1/questions", "201")); got != before+1 {
		t.Fatalf("expected %v, got %v", before+1, got)
	}

	before = value(t, resultsTotal.WithLabelValues("ok"))
	ObserveResults(5*time.Millisecond, nil)
	if got := value(t, resultsTotal.WithLabelValues("ok")); got != before+1 {
		t.Fatalf("expected %v, got %v", before+1, got)
	}
}
