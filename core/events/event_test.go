package events

import (
	"testing"

	"stakepool/core/types"
)

type plainEvent struct{}

func (plainEvent) EventType() string { return "test.plain" }

type renderedEvent struct{ value string }

func (renderedEvent) EventType() string { return "test.rendered" }

func (e renderedEvent) Event() *types.Event {
	return &types.Event{Type: "test.rendered", Attributes: map[string]string{"value": e.value}}
}

func TestRenderFallsBackToType(t *testing.T) {
	out := Render(plainEvent{})
	if out.Type != "test.plain" || len(out.Attributes) != 0 {
		t.Fatalf("unexpected render %+v", out)
	}
	out = Render(renderedEvent{value: "42"})
	if out.Attributes["value"] != "42" {
		t.Fatalf("unexpected render %+v", out)
	}
	if Render(nil) != nil {
		t.Fatalf("expected nil render for nil event")
	}
}

func TestMultiFansOut(t *testing.T) {
	first, second := &Buffer{}, &Buffer{}
	var seen int
	emitter := Multi{first, nil, second, EmitterFunc(func(Event) { seen++ })}
	emitter.Emit(plainEvent{})
	emitter.Emit(renderedEvent{})

	if len(first.Events()) != 2 || len(second.Events()) != 2 || seen != 2 {
		t.Fatalf("fan-out mismatch: first=%d second=%d func=%d", len(first.Events()), len(second.Events()), seen)
	}
	order := first.Types()
	if order[0] != "test.plain" || order[1] != "test.rendered" {
		t.Fatalf("unexpected order %v", order)
	}
	first.Reset()
	if len(first.Events()) != 0 {
		t.Fatalf("expected reset buffer")
	}
	NoopEmitter{}.Emit(plainEvent{})
}
