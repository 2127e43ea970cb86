package usecase

import "testing"

func TestParseRake(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		raw     string
		want    Rake
		wantErr bool
	}{
		{name: "fraction", raw: "9/200", want: Rake{Num: 9, Den: 200}},
		{name: "zero", raw: "0", want: Rake{Num: 0, Den: 1000}},
		{name: "decimal", raw: "0.045", want: Rake{Num: 45, Den: 1000}},
		{name: "half", raw: "1/2", want: Rake{Num: 1, Den: 2}},
		{name: "padded fraction", raw: " 3 / 100 ", want: Rake{Num: 3, Den: 100}},
		{name: "empty", raw: "", wantErr: true},
		{name: "negative", raw: "-1/10", wantErr: true},
		{name: "over half", raw: "0.6", wantErr: true},
		{name: "zero denominator", raw: "1/0", wantErr: true},
		{name: "garbage", raw: "lots", wantErr: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseRake(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %+v", tc.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error for %q: %v", tc.raw, err)
			}
			if got != tc.want {
				t.Fatalf("unexpected rake for %q: got=%+v want=%+v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestRakeSplitSumsToPot(t *testing.T) {
	t.Parallel()

	rake := Rake{Num: 9, Den: 200}
	for _, pot := range []int64{0, 1, 2, 199, 200, 2000, 12345, 1 << 30} {
		payout, cut := rake.Split(pot)
		if pot <= 0 {
			if payout != 0 || cut != 0 {
				t.Fatalf("non-positive pot %d split to payout=%d rake=%d", pot, payout, cut)
			}
			continue
		}
		if payout+cut != pot {
			t.Fatalf("split of %d does not sum: payout=%d rake=%d", pot, payout, cut)
		}
		if payout < 0 || cut < 0 {
			t.Fatalf("split of %d produced negative amount: payout=%d rake=%d", pot, payout, cut)
		}
	}
}

func TestRakeSplitExactValues(t *testing.T) {
	t.Parallel()

	rake := Rake{Num: 9, Den: 200}
	payout, cut := rake.Split(2000)
	if payout != 1910 || cut != 90 {
		t.Fatalf("unexpected split of 2000: payout=%d rake=%d", payout, cut)
	}

	zero := Rake{Num: 0, Den: 1000}
	payout, cut = zero.Split(500)
	if payout != 500 || cut != 0 {
		t.Fatalf("zero rake should pass the pot through: payout=%d rake=%d", payout, cut)
	}
	if !zero.Zero() {
		t.Fatal("expected Zero() to report a no-rake configuration")
	}
}
