package domain

import "testing"

func TestLoopMode_String(t *testing.T) {
	tests := []struct {
		name string
		mode LoopMode
		want string
	}{
		{
			name: "LoopModeOff returns off",
			mode: LoopModeOff,
			want: "off",
		},
		{
			name: "LoopModeTrack returns track",
			mode: LoopModeTrack,
			want: "track",
		},
		{
			name: "LoopModeQueue returns queue",
			mode: LoopModeQueue,
			want: "queue",
		},
		{
			name: "unknown mode returns off",
			mode: LoopMode(99),
			want: "off",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.mode.String(); got != tt.want {
				t.Errorf("LoopMode.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoopMode_Next(t *testing.T) {
	mode := LoopModeOff
	want := []LoopMode{LoopModeTrack, LoopModeQueue, LoopModeOff}

	for i, w := range want {
		mode = mode.Next()
		if mode != w {
			t.Errorf("step %d: expected %v, got %v", i, w, mode)
		}
	}
}

func TestParseLoopMode(t *testing.T) {
	tests := []struct {
		input   string
		want    LoopMode
		wantErr bool
	}{
		{input: "off", want: LoopModeOff},
		{input: "none", want: LoopModeOff},
		{input: "Track", want: LoopModeTrack},
		{input: " queue ", want: LoopModeQueue},
		{input: "forever", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLoopMode(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLoopMode(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseLoopMode(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
