package events

import "testing"

func TestEmitDeliversOnlyToMatchingSubscribers(t *testing.T) {
	e := NewEmitter()
	var gotBlock, gotTx int
	e.Subscribe(EventBlockCommit, func(Event) { gotBlock++ })
	e.Subscribe(EventTxExecuted, func(Event) { gotTx++ })

	e.Emit(Event{Type: EventBlockCommit})
	e.Emit(Event{Type: EventBlockCommit})
	e.Emit(Event{Type: EventTxExecuted})

	if gotBlock != 2 {
		t.Errorf("block subscriber called %d times, want 2", gotBlock)
	}
	if gotTx != 1 {
		t.Errorf("tx subscriber called %d times, want 1", gotTx)
	}
}

func TestEmitRecoversFromPanickingHandler(t *testing.T) {
	e := NewEmitter()
	called := false
	e.Subscribe(EventCriticalAlert, func(Event) { panic("boom") })
	e.Subscribe(EventCriticalAlert, func(Event) { called = true })

	e.Emit(Event{Type: EventCriticalAlert})

	if !called {
		t.Error("a panicking handler must not prevent later handlers from running")
	}
}

func TestEmitWithNoSubscribersIsANoop(t *testing.T) {
	e := NewEmitter()
	e.Emit(Event{Type: EventNodeJailed}) // must not panic
}
