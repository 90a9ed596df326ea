package timeouts

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestConfigure_IgnoresZeroValues(t *testing.T) {
	t.Cleanup(Reset)

	Configure(Config{Commit: 42 * time.Second})

	if Commit() != 42*time.Second {
		t.Errorf("Commit: got %v", Commit())
	}
	if Read() != DefaultRead {
		t.Errorf("Read should keep default, got %v", Read())
	}
	if Scan() != DefaultScan {
		t.Errorf("Scan should keep default, got %v", Scan())
	}
}

func TestWithTimeout_Expires(t *testing.T) {
	ctx, cancel := WithTimeout(context.Background(), 5*time.Millisecond, zap.NewNop(), "test")
	defer cancel()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context did not expire")
	}
	if ctx.Err() != context.DeadlineExceeded {
		t.Errorf("err: got %v", ctx.Err())
	}
}
