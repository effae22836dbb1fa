package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignalStateDeliverableScansAscending(t *testing.T) {
	var s signalState
	s.init()
	s.raise(SIGUSR1)
	s.raise(SIGKILL)

	sig, ok := s.deliverable()
	assert.True(t, ok)
	assert.Equal(t, SIGKILL, sig, "bit 9 delivers before bit 10")

	s.clear(SIGKILL)
	s.raise(SIGHUP)
	sig, ok = s.deliverable()
	assert.True(t, ok)
	assert.Equal(t, SIGHUP, sig, "bit 1 delivers before bit 10, kernel disposition or not")
}

func TestSignalStateMaskBlocksDelivery(t *testing.T) {
	var s signalState
	s.init()
	s.mask = SIGUSR1
	s.raise(SIGUSR1)

	_, ok := s.deliverable()
	assert.False(t, ok)
}

func TestHandleKernelSignalKill(t *testing.T) {
	var s signalState
	s.init()
	assert.True(t, s.handleKernelSignal(SIGKILL))
	assert.True(t, s.killed)
}

func TestHandleKernelSignalStopThenCont(t *testing.T) {
	var s signalState
	s.init()
	assert.True(t, s.handleKernelSignal(SIGSTOP))
	assert.True(t, s.frozen)
	assert.True(t, s.handleKernelSignal(SIGCONT))
	assert.False(t, s.frozen)
}

func TestHandleKernelSignalRejectsUserSignal(t *testing.T) {
	var s signalState
	s.init()
	assert.False(t, s.handleKernelSignal(SIGUSR1))
}

func TestSigActionRoundTripRestoresEntry(t *testing.T) {
	proc := newProcess(procUser, nil)

	first := SignalAction{Handler: 0x1000, Mask: SIGUSR2}
	_, ok := proc.SetSignalAction(SIGUSR1, first)
	assert.True(t, ok)

	old, ok := proc.SetSignalAction(SIGUSR1, SignalAction{Handler: 0x2000})
	assert.True(t, ok)
	assert.Equal(t, first, old)

	_, ok = proc.SetSignalAction(SIGUSR1, old)
	assert.True(t, ok)
	assert.Equal(t, first, proc.signalAction(SIGUSR1))
}

func TestSigActionRejectsKillAndStopOverride(t *testing.T) {
	proc := newProcess(procUser, nil)
	for _, sig := range []SignalFlags{SIGKILL, SIGSTOP} {
		_, ok := proc.SetSignalAction(sig, SignalAction{Handler: 0x1000})
		assert.False(t, ok)
	}
}

func TestValidSignalRejectsZeroAndMultiBit(t *testing.T) {
	assert.False(t, validSignal(0))
	assert.False(t, validSignal(SIGKILL|SIGSTOP))
	assert.True(t, validSignal(SIGKILL))
	assert.True(t, validSignal(SIGUSR2))
}
