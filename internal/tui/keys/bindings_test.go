package keys

import (
	"slices"
	"testing"

	"github.com/gdamore/tcell/v2"
)

func TestViewBindingsWinOverGlobal(t *testing.T) {
	r := NewRegistry()
	var got []string
	r.AddGlobal("quit", &Action{Key: tcell.KeyRune, Rune: 'q', Description: "q:quit", Visible: true,
		Handler: func() { got = append(got, "global") }})
	r.AddView("thread", "back", &Action{Key: tcell.KeyRune, Rune: 'q', Description: "q:back", Visible: true,
		Handler: func() { got = append(got, "view") }})

	ev := tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone)
	if !r.HandleEvent("thread", ev) || !r.HandleEvent("list", ev) {
		t.Fatal("expected both events handled")
	}
	if !slices.Equal(got, []string{"view", "global"}) {
		t.Errorf("handled = %v", got)
	}

	if r.HandleEvent("list", tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModNone)) {
		t.Error("unbound key should not be handled")
	}
}

func TestSpecialKeys(t *testing.T) {
	r := NewRegistry()
	called := false
	r.AddGlobal("help", &Action{Key: tcell.KeyF1, Handler: func() { called = true }})
	if !r.HandleEvent("", tcell.NewEventKey(tcell.KeyF1, 0, tcell.ModNone)) || !called {
		t.Error("F1 not dispatched")
	}
}

func TestHintsOrderAndReplace(t *testing.T) {
	r := NewRegistry()
	r.AddGlobal("quit", &Action{Description: "q:quit", Visible: true})
	r.AddGlobal("help", &Action{Description: "?:help", Visible: true})
	r.AddGlobal("hidden", &Action{Description: "x", Visible: false})
	r.AddView("list", "open", &Action{Description: "enter:open", Visible: true})
	r.AddGlobal("quit", &Action{Description: "q:exit", Visible: true})

	want := []string{"enter:open", "q:exit", "?:help"}
	if got := r.Hints("list"); !slices.Equal(got, want) {
		t.Errorf("Hints = %v, want %v", got, want)
	}
}
