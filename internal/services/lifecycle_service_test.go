package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/meerabeer/nfo-agent/internal/buffer"
	"github.com/meerabeer/nfo-agent/internal/constants"
	"github.com/meerabeer/nfo-agent/internal/mocks"
	"github.com/meerabeer/nfo-agent/internal/services"
	"github.com/meerabeer/nfo-agent/internal/session"
)

type lifecycleFixture struct {
	svc        *services.LifecycleService
	store      *session.Store
	buffer     *buffer.SQLiteBuffer
	sampler    *mocks.MockSampler
	watchdog   *mocks.MockWatchdog
	boundary   *mocks.MockBoundary
	flusher    *mocks.MockFlushRequester
	capability *mocks.MockCapability
	recovery   *mocks.MockRecoverer
}

func newLifecycle(t *testing.T, initial session.Context) *lifecycleFixture {
	t.Helper()
	f := &lifecycleFixture{
		store:      session.NewStore(initial, nil, zerolog.Nop()),
		buffer:     openBuffer(t),
		sampler:    new(mocks.MockSampler),
		watchdog:   new(mocks.MockWatchdog),
		boundary:   new(mocks.MockBoundary),
		flusher:    new(mocks.MockFlushRequester),
		capability: new(mocks.MockCapability),
		recovery:   new(mocks.MockRecoverer),
	}
	f.svc = services.NewLifecycleService(services.LifecycleServiceDeps{
		Events:     f.store,
		Session:    f.store,
		Sampler:    f.sampler,
		Watchdog:   f.watchdog,
		Boundary:   f.boundary,
		Flusher:    f.flusher,
		Builder:    testBuilder(f.buffer, t0),
		Buffer:     f.buffer,
		Capability: f.capability,
		Recovery:   f.recovery,
	}, zerolog.Nop())
	return f
}

func TestLifecycle_ShiftStart(t *testing.T) {
	f := newLifecycle(t, session.Context{})
	f.capability.On("Grant").Return().Once()
	f.sampler.On("Running").Return(false)
	f.sampler.On("Start").Return(nil).Once()
	f.watchdog.On("Arm").Return().Once()
	f.flusher.On("RequestFlush", "shift-start").Return(nil).Once()

	next := activeSession("A")
	f.svc.Handle(session.Event{Kind: session.EventShiftStart, Current: next, At: t0})

	hb, err := f.buffer.MostRecent(context.Background())
	require.NoError(t, err)
	require.NotNil(t, hb)
	assert.Equal(t, "A", hb.ActorID)
	assert.Equal(t, constants.StatusOnShift, hb.Status)
	assert.Equal(t, constants.SourceManualToggle, hb.LastActiveSource)

	mock.AssertExpectationsForObjects(t, f.capability, f.sampler, f.watchdog, f.flusher)
}

func TestLifecycle_ShiftStartWithSamplerRunning(t *testing.T) {
	f := newLifecycle(t, session.Context{})
	f.capability.On("Grant").Return()
	f.sampler.On("Running").Return(true)
	f.watchdog.On("Arm").Return().Once()
	f.flusher.On("RequestFlush", mock.Anything).Return(nil)

	f.svc.Handle(session.Event{Kind: session.EventRelaunchRequested, Current: activeSession("A"), At: t0})

	f.sampler.AssertNotCalled(t, "Start")
	f.watchdog.AssertExpectations(t)
}

func TestLifecycle_ShiftEnd(t *testing.T) {
	f := newLifecycle(t, activeSession("A"))
	ev := shiftEnd("A")
	f.sampler.On("Running").Return(true)
	f.sampler.On("Stop").Return(nil).Once()
	f.watchdog.On("Disarm").Return().Once()
	f.capability.On("Revoke").Return().Once()
	f.boundary.On("Finalize", mock.Anything, ev).Return(services.BoundaryResult{Delivered: true}, nil).Once()

	f.svc.Handle(ev)

	mock.AssertExpectationsForObjects(t, f.sampler, f.watchdog, f.capability, f.boundary)
	f.flusher.AssertNotCalled(t, "RequestFlush", mock.Anything)
}

func TestLifecycle_LogoutOnShiftFinalizesOnce(t *testing.T) {
	f := newLifecycle(t, activeSession("A"))
	f.sampler.On("Running").Return(false)
	f.watchdog.On("Disarm").Return()
	f.capability.On("Revoke").Return()

	events := f.store.Apply(session.Context{})
	require.Len(t, events, 2)
	require.Equal(t, session.EventShiftEnd, events[0].Kind)
	require.Equal(t, session.EventLogout, events[1].Kind)
	f.boundary.On("Finalize", mock.Anything, events[1]).Return(services.BoundaryResult{Delivered: true}, nil).Once()

	for _, ev := range events {
		f.svc.Handle(ev)
	}

	f.boundary.AssertExpectations(t)
	f.boundary.AssertNumberOfCalls(t, "Finalize", 1)
}

func TestLifecycle_ActorSwitchFinalizesPreviousActorOnce(t *testing.T) {
	f := newLifecycle(t, activeSession("A"))
	f.sampler.On("Running").Return(false)
	f.watchdog.On("Disarm").Return()
	f.capability.On("Revoke").Return()

	next := session.Context{ActorID: "B", DisplayName: "Worker B", LoggedIn: true}
	events := f.store.Apply(next)
	require.Len(t, events, 3)
	f.boundary.On("Finalize", mock.Anything, mock.MatchedBy(func(ev session.Event) bool {
		return ev.Kind == session.EventLogout && ev.Current.ActorID == "A"
	})).Return(services.BoundaryResult{}, nil).Once()

	for _, ev := range events {
		f.svc.Handle(ev)
	}

	f.boundary.AssertNumberOfCalls(t, "Finalize", 1)
}

func TestLifecycle_ContextUpdateOnShift(t *testing.T) {
	f := newLifecycle(t, activeSession("A"))
	f.flusher.On("RequestFlush", "context-update").Return(nil).Once()

	cur := activeSession("A")
	cur.SiteID = "RYD-042"
	f.svc.Handle(session.Event{Kind: session.EventContextUpdate, Previous: activeSession("A"), Current: cur, At: t0})

	hb, err := f.buffer.MostRecent(context.Background())
	require.NoError(t, err)
	require.NotNil(t, hb)
	require.NotNil(t, hb.SiteID)
	assert.Equal(t, "RYD-042", *hb.SiteID)
	f.flusher.AssertExpectations(t)
}

func TestLifecycle_ContextUpdateOffShiftIgnored(t *testing.T) {
	f := newLifecycle(t, session.Context{ActorID: "A", LoggedIn: true})

	cur := session.Context{ActorID: "A", LoggedIn: true, SiteID: "RYD-042"}
	f.svc.Handle(session.Event{Kind: session.EventContextUpdate, Current: cur, At: t0})

	assert.Zero(t, unsyncedCount(t, f.buffer))
	f.flusher.AssertNotCalled(t, "RequestFlush", mock.Anything)
}

func TestLifecycle_StartResumesAfterRecovery(t *testing.T) {
	for _, outcome := range []services.RecoveryOutcome{services.RecoveryContinue, services.RecoveryResumeAllowed} {
		t.Run(string(outcome), func(t *testing.T) {
			f := newLifecycle(t, activeSession("A"))
			f.recovery.On("Run", mock.Anything).Return(outcome, nil).Once()
			f.capability.On("Grant").Return().Once()
			f.sampler.On("Running").Return(false)
			f.sampler.On("Start").Return(nil).Once()
			f.sampler.On("Stop").Return(nil).Maybe()
			f.watchdog.On("Arm").Return().Once()

			require.NoError(t, f.svc.Start())
			assert.ErrorIs(t, f.svc.Start(), services.ErrAlreadyRunning)
			require.NoError(t, f.svc.Stop())

			mock.AssertExpectationsForObjects(t, f.recovery, f.capability, f.sampler, f.watchdog)
		})
	}
}

func TestLifecycle_StartAwaitingUserStaysIdle(t *testing.T) {
	f := newLifecycle(t, activeSession("A"))
	f.recovery.On("Run", mock.Anything).Return(services.RecoveryAwaitingUser, nil).Once()
	f.sampler.On("Running").Return(false)

	require.NoError(t, f.svc.Start())
	require.NoError(t, f.svc.Stop())

	f.capability.AssertNotCalled(t, "Grant")
	f.sampler.AssertNotCalled(t, "Start")
	f.watchdog.AssertNotCalled(t, "Arm")
}

func TestLifecycle_StoreEventsReachHandlers(t *testing.T) {
	f := newLifecycle(t, session.Context{ActorID: "A", LoggedIn: true})
	f.recovery.On("Run", mock.Anything).Return(services.RecoveryNotNeeded, nil)
	f.capability.On("Grant").Return()
	f.sampler.On("Running").Return(false)
	f.sampler.On("Start").Return(nil)
	f.watchdog.On("Arm").Return()
	f.flusher.On("RequestFlush", "shift-start").Return(nil).Once()

	require.NoError(t, f.svc.Start())

	f.store.Apply(activeSession("A"))

	assert.Eventually(t, func() bool {
		return unsyncedCount(t, f.buffer) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Stop drains the worker, so the flush request has been made by now.
	require.NoError(t, f.svc.Stop())
	f.flusher.AssertExpectations(t)
	f.watchdog.AssertCalled(t, "Arm")
}

func TestLifecycle_StopWithoutStart(t *testing.T) {
	f := newLifecycle(t, session.Context{})
	assert.ErrorIs(t, f.svc.Stop(), services.ErrNotRunning)
}
