package ansi

import "testing"

func TestMove(t *testing.T) {
	tests := []struct {
		row, col int
		want     string
	}{
		{1, 1, "\x1b[1;1H"},
		{24, 80, "\x1b[24;80H"},
	}

	for _, tt := range tests {
		if got := Move(tt.row, tt.col); got != tt.want {
			t.Errorf("Move(%d, %d) = %q, want %q", tt.row, tt.col, got, tt.want)
		}
	}
}

func TestClearHomesCursor(t *testing.T) {
	got := Clear()
	if got[len(got)-len(Home):] != Home {
		t.Fatalf("Clear() = %q, want suffix %q", got, Home)
	}
}
