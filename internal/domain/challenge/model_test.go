package challenge

import "testing"

func TestStartersPoints(t *testing.T) {
	t.Parallel()

	pts := func(v float64) *float64 { return &v }
	lineup := []Slot{
		{PlayerID: "p1", SlotID: 0, Pts: pts(12.5)},
		{PlayerID: "p2", SlotID: 2, Pts: pts(7.5)},
		{PlayerID: "p3", SlotID: SlotBench, Pts: pts(30)},
		{PlayerID: "p4", SlotID: SlotIR, Pts: pts(15)},
		{PlayerID: "p5", SlotID: 4}, // unscored starter contributes zero
	}

	if got := StartersPoints(lineup); got != 20 {
		t.Fatalf("unexpected starters total: got=%v want=20", got)
	}
	if got := StartersPoints(nil); got != 0 {
		t.Fatalf("empty lineup must score zero, got %v", got)
	}
}

func TestStatusTerminal(t *testing.T) {
	t.Parallel()

	terminal := map[Status]bool{
		StatusOpen:    false,
		StatusPending: false,
		StatusLocked:  false,
		StatusScored:  false,
		StatusClosed:  true,
		StatusVoided:  true,
	}
	for status, want := range terminal {
		if got := status.Terminal(); got != want {
			t.Fatalf("%s.Terminal(): got=%v want=%v", status, got, want)
		}
	}
}

func TestSideLocked(t *testing.T) {
	t.Parallel()

	var side Side
	if side.Locked() {
		t.Fatal("a side without a lock timestamp must not report locked")
	}
}
