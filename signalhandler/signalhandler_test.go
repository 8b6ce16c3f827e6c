package signalhandler

import (
	"context"
	"runtime"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOptimalProcs(t *testing.T) {
	procs := GetOptimalProcs()
	assert.GreaterOrEqual(t, procs, 1)
	assert.LessOrEqual(t, procs, runtime.NumCPU())
}

func TestSetupHandlerCancelsOnSignal(t *testing.T) {
	ctx, cancel := SetupHandler(context.Background())
	defer cancel()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))

	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context was not cancelled by SIGTERM")
	}
}

func TestSetupHandlerStopsWithParent(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	ctx, cancel := SetupHandler(parent)
	defer cancel()

	cancelParent()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context outlived its parent")
	}
}
