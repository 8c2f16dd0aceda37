package linkz

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseTraceID(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    TraceID
		wantErr bool
	}{
		{name: "64-bit", in: "00000000000000ab", want: TraceID{Low: 0xab}},
		{name: "128-bit", in: "463ac35c9f6413ad48485a3953bb6124", want: TraceID{High: 0x463ac35c9f6413ad, Low: 0x48485a3953bb6124}},
		{name: "uppercase", in: "463AC35C9F6413AD", wantErr: true},
		{name: "short", in: "abc", wantErr: true},
		{name: "24 chars", in: "463ac35c9f6413ad48485a39", wantErr: true},
		{name: "non-hex", in: "463ac35c9f6413zz", wantErr: true},
		{name: "zero", in: "0000000000000000", wantErr: true},
		{name: "zero 128", in: "00000000000000000000000000000000", wantErr: true},
		{name: "empty", in: "", wantErr: true},
		{name: "sign", in: "+463ac35c9f6413a", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTraceID(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedID) {
					t.Errorf("Expected ErrMalformedID, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %+v, got %+v", tt.want, got)
			}
			if got.String() != tt.in {
				t.Errorf("Expected String() %q, got %q", tt.in, got.String())
			}
		})
	}
}

func TestTraceIDStringWidth(t *testing.T) {
	if s := (TraceID{Low: 1}).String(); s != "0000000000000001" {
		t.Errorf("Expected 16 chars for 64-bit id, got %q", s)
	}
	if s := (TraceID{High: 1, Low: 1}).String(); s != "00000000000000010000000000000001" {
		t.Errorf("Expected 32 chars for 128-bit id, got %q", s)
	}
}

func TestParseSpanID(t *testing.T) {
	id, err := ParseSpanID("00000000000000ff")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if id != 0xff {
		t.Errorf("Expected 0xff, got %x", uint64(id))
	}

	for _, in := range []string{"ff", "00000000000000FF", "0000000000000000", "463ac35c9f6413ad48485a3953bb6124"} {
		if _, err := ParseSpanID(in); !errors.Is(err, ErrMalformedID) {
			t.Errorf("ParseSpanID(%q): expected ErrMalformedID, got %v", in, err)
		}
	}
}

func TestIDsMarshalAsHex(t *testing.T) {
	tc := TraceContext{
		TraceID:  TraceID{High: 0x463ac35c9f6413ad, Low: 0x48485a3953bb6124},
		SpanID:   0xff,
		ParentID: 0x1,
		Sampled:  SampledTrue,
	}.WithExtra("tenant", "acme")

	b, err := json.Marshal(tc)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if raw["trace_id"] != "463ac35c9f6413ad48485a3953bb6124" {
		t.Errorf("Expected hex trace_id, got %v", raw["trace_id"])
	}
	if raw["span_id"] != "00000000000000ff" {
		t.Errorf("Expected hex span_id, got %v", raw["span_id"])
	}

	var back TraceContext
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !back.Equal(tc) {
		t.Errorf("Expected %+v after decoding, got %+v", tc, back)
	}
}

func TestRandomIDNonZero(t *testing.T) {
	for i := 0; i < 1000; i++ {
		id, err := randomID()
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if id == 0 {
			t.Fatal("Expected non-zero id")
		}
	}
}
