package historystore

import (
	"context"
	"testing"

	"github.com/chidori-ai/chidori/internal/cgraph"
)

func TestNameIdentifiesObserver(t *testing.T) {
	s := &Store{}
	if s.Name() != "historystore" {
		t.Fatalf("expected 'historystore', got %q", s.Name())
	}
}

func TestOnEventIgnoresNonInsertEvents(t *testing.T) {
	s := &Store{}
	// A nil db is safe here because OnEvent returns before touching it
	// for any event type other than EventStateInserted.
	s.OnEvent(context.Background(), cgraph.Event{Type: cgraph.EventCellMutated})
	s.OnEvent(context.Background(), cgraph.Event{Type: cgraph.EventStepStarted})
}
