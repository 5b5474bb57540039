package capture

import "testing"

func TestMixPCM(t *testing.T) {
	tests := []struct {
		name         string
		a, b         []int16
		gainA, gainB float64
		want         []int16
	}{
		{
			"sums both sources",
			[]int16{100, 200}, []int16{10, -20}, 1.0, 1.0,
			[]int16{110, 180},
		},
		{
			"missing local passes ambient clean",
			[]int16{5, -5, 7}, nil, 1.0, 1.0,
			[]int16{5, -5, 7},
		},
		{
			"missing ambient passes local clean",
			nil, []int16{9, 9}, 1.0, 1.0,
			[]int16{9, 9},
		},
		{
			"unequal lengths pad with silence",
			[]int16{1, 2, 3}, []int16{10}, 1.0, 1.0,
			[]int16{11, 2, 3},
		},
		{
			"clips at positive rail",
			[]int16{30000}, []int16{30000}, 1.0, 1.0,
			[]int16{32767},
		},
		{
			"clips at negative rail",
			[]int16{-30000}, []int16{-30000}, 1.0, 1.0,
			[]int16{-32768},
		},
		{
			"gain stages apply per source",
			[]int16{1000}, []int16{1000}, 0.5, 0.25,
			[]int16{750},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mixPCM(tt.a, tt.b, tt.gainA, tt.gainB)
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("sample %d = %d, want %d", i, got[i], tt.want[i])
				}
			}
		})
	}
}
