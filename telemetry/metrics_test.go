package telemetry

import (
	"context"
	"testing"
	"time"
)

func TestInitIdempotent(t *testing.T) {
	Init()
	first := MessagesToUrbit
	Init()
	if MessagesToUrbit != first {
		t.Error("second Init replaced registered metrics")
	}
}

func TestQueueDepthAndDurationHelpers(t *testing.T) {
	Init()
	SetQueueDepth(7)
	ObserveSendDuration(5 * time.Millisecond)

	d := TimeFunc(SendDuration, func() { time.Sleep(time.Millisecond) })
	if d < time.Millisecond {
		t.Errorf("TimeFunc measured %v, want at least 1ms", d)
	}
}

func TestCorrelationRoundTrip(t *testing.T) {
	ctx := WithCorrelation(context.Background(), "corr-42")
	if got := GetCorrelation(ctx); got != "corr-42" {
		t.Errorf("GetCorrelation = %q, want corr-42", got)
	}
	if got := GetCorrelation(context.Background()); got != "" {
		t.Errorf("GetCorrelation on empty context = %q, want empty", got)
	}
	if LoggerWithCorr(ctx) == nil {
		t.Error("LoggerWithCorr returned nil")
	}
}
