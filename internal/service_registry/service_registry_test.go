package service_registry

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/meerabeer/nfo-agent/internal/mocks"
)

func TestRegisterService_KeepsOrderAndIgnoresDuplicates(t *testing.T) {
	sr := NewServiceRegistry(zerolog.Nop())
	first, second := new(mocks.MockService), new(mocks.MockService)

	sr.RegisterService("scheduler", first)
	sr.RegisterService("watchdog", second)
	sr.RegisterService("scheduler", second)

	assert.Equal(t, []string{"scheduler", "watchdog"}, sr.Names())
}

func TestStartServices_StartsInOrder(t *testing.T) {
	sr := NewServiceRegistry(zerolog.Nop())
	var order []string
	for _, name := range []string{"scheduler", "watchdog", "lifecycle"} {
		svc := new(mocks.MockService)
		svc.On("Start").Run(func(_ mock.Arguments) { order = append(order, name) }).Return(nil)
		sr.RegisterService(name, svc)
	}

	require.NoError(t, sr.StartServices())
	assert.Equal(t, []string{"scheduler", "watchdog", "lifecycle"}, order)
}

func TestStartServices_RollsBackOnFailure(t *testing.T) {
	sr := NewServiceRegistry(zerolog.Nop())
	started, failing, never := new(mocks.MockService), new(mocks.MockService), new(mocks.MockService)
	started.On("Start").Return(nil)
	started.On("Stop").Return(nil).Once()
	failing.On("Start").Return(errors.New("port busy"))

	sr.RegisterService("scheduler", started)
	sr.RegisterService("watchdog", failing)
	sr.RegisterService("lifecycle", never)

	err := sr.StartServices()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watchdog")

	started.AssertExpectations(t)
	failing.AssertNotCalled(t, "Stop")
	never.AssertNotCalled(t, "Start")
}

func TestStopServices_ReverseOrderJoinsErrors(t *testing.T) {
	sr := NewServiceRegistry(zerolog.Nop())
	var order []string
	errStop := errors.New("stuck")
	for _, name := range []string{"scheduler", "watchdog", "lifecycle"} {
		svc := new(mocks.MockService)
		var ret error
		if name == "watchdog" {
			ret = errStop
		}
		svc.On("Stop").Run(func(_ mock.Arguments) { order = append(order, name) }).Return(ret)
		sr.RegisterService(name, svc)
	}

	err := sr.StopServices()
	assert.ErrorIs(t, err, errStop)
	assert.Equal(t, []string{"lifecycle", "watchdog", "scheduler"}, order)
}
