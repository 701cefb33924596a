package observability

import (
	"testing"
	"time"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	RecordCPER("sea", "memory", OutcomeWritten)
	RecordCPERBytes("memory", 172)
	RecordHTTPRequest("GET", "/region", 200, 12*time.Millisecond)
}
