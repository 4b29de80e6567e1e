package renderer

import "testing"

func TestFit(t *testing.T) {
	tests := []struct {
		name     string
		mount    Mount
		metrics  FontMetrics
		wantCols int
		wantRows int
		wantOK   bool
	}{
		{
			name:     "cell mount used as is",
			mount:    newTestMount(120, 40),
			wantCols: 120,
			wantRows: 40,
			wantOK:   true,
		},
		{
			name:     "tiny cell mount clamped",
			mount:    newTestMount(1, 1),
			wantCols: 2,
			wantRows: 1,
			wantOK:   true,
		},
		{
			name:   "hidden mount",
			mount:  &testMount{hidden: true},
			wantOK: false,
		},
		{
			// 14px font: 8.4 x 16.8 px cells.
			name:     "pixel mount default metrics",
			mount:    &pixelMount{w: 840, h: 504},
			wantCols: 100,
			wantRows: 30,
			wantOK:   true,
		},
		{
			// 10px font, line height 1: 6 x 10 px cells.
			name:     "pixel mount custom metrics",
			mount:    &pixelMount{w: 600, h: 250},
			metrics:  FontMetrics{Size: 10, LineHeight: 1},
			wantCols: 100,
			wantRows: 25,
			wantOK:   true,
		},
		{
			name:   "pixel mount not laid out",
			mount:  &pixelMount{},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cols, rows, ok := Fit(tt.mount, tt.metrics)
			if ok != tt.wantOK {
				t.Fatalf("Fit() ok = %v, want %v", ok, tt.wantOK)
			}

			if !ok {
				return
			}

			if cols != tt.wantCols || rows != tt.wantRows {
				t.Errorf("Fit() = %dx%d, want %dx%d", cols, rows, tt.wantCols, tt.wantRows)
			}
		})
	}
}
