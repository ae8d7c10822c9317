package cli

import (
	"syscall"
	"testing"
	"time"
)

func TestSetupSignalHandler_Stop(t *testing.T) {
	ctx, stop := SetupSignalHandler()

	select {
	case <-ctx.Done():
		t.Fatal("context canceled before any signal")
	default:
	}

	stop()
	stop()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("stop did not cancel the context")
	}
}

func TestSetupSignalHandler_Signal(t *testing.T) {
	ctx, stop := SetupSignalHandler()
	defer stop()

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Skipf("cannot signal self: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("SIGTERM did not cancel the context")
	}
}
