package linkz

import (
	"errors"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestInjectExtractRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		tc   TraceContext
	}{
		{
			name: "sampled child",
			tc: TraceContext{
				TraceID:  TraceID{High: 0x463ac35c9f6413ad, Low: 0x48485a3953bb6124},
				SpanID:   0xa2fb4a1d1a96d312,
				ParentID: 0x0020000000000001,
				Sampled:  SampledTrue,
			},
		},
		{
			name: "unsampled root",
			tc: TraceContext{
				TraceID: TraceID{Low: 0x48485a3953bb6124},
				SpanID:  0x48485a3953bb6124,
				Sampled: SampledFalse,
			},
		},
		{
			name: "debug",
			tc: TraceContext{
				TraceID: TraceID{Low: 0xabc},
				SpanID:  0xdef,
				Sampled: SampledTrue,
				Debug:   true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			Inject(tt.tc, HeaderSetter(h))
			ext := Extract(HeaderGetter(h))

			if tt.tc.Sampled == SampledFalse {
				// Not sampled wins: only the decision survives.
				if ext.Kind != ExtractedFlags {
					t.Fatalf("Expected flags extraction, got %v", ext.Kind)
				}
				if ext.Flags.Sampled != SampledFalse {
					t.Errorf("Expected sampled=false, got %v", ext.Flags.Sampled)
				}
				return
			}
			if ext.Kind != ExtractedContext {
				t.Fatalf("Expected context extraction, got %v (err %v)", ext.Kind, ext.Err)
			}
			if !ext.Context.Equal(tt.tc) {
				t.Errorf("Round trip mismatch: sent %+v, got %+v", tt.tc, ext.Context)
			}
			if ext.Err != nil {
				t.Errorf("Unexpected error: %v", ext.Err)
			}
		})
	}
}

func TestInjectHeaders(t *testing.T) {
	m := map[string]string{}
	Inject(TraceContext{
		TraceID:  TraceID{Low: 0x1},
		SpanID:   0x2,
		ParentID: 0x3,
		Sampled:  SampledTrue,
	}, MapSetter(m))

	want := map[string]string{
		"x-b3-traceid":      "0000000000000001",
		"x-b3-spanid":       "0000000000000002",
		"x-b3-parentspanid": "0000000000000003",
		"x-b3-sampled":      "1",
	}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Errorf("Injected headers mismatch (-want +got):\n%s", diff)
	}

	root := map[string]string{}
	Inject(TraceContext{TraceID: TraceID{Low: 0x1}, SpanID: 0x1, Sampled: SampledFalse}, MapSetter(root))
	if _, ok := root["x-b3-parentspanid"]; ok {
		t.Error("Expected no parent header for a root context")
	}
	if root["x-b3-sampled"] != "0" {
		t.Errorf("Expected sampled=0, got %q", root["x-b3-sampled"])
	}
}

func TestExtractNotSampledWins(t *testing.T) {
	ext := Extract(MapGetter(map[string]string{
		"X-B3-TraceId": "463ac35c9f6413ad",
		"X-B3-SpanId":  "463ac35c9f6413ad",
		"X-B3-Sampled": "0",
		"X-B3-Flags":   "1",
	}))
	if ext.Kind != ExtractedFlags {
		t.Fatalf("Expected flags extraction, got %v", ext.Kind)
	}
	if ext.Flags.Sampled != SampledFalse || ext.Flags.Debug {
		t.Errorf("Expected not sampled without debug, got %+v", ext.Flags)
	}
}

func TestExtractFlagsOnly(t *testing.T) {
	ext := Extract(MapGetter(map[string]string{"X-B3-Sampled": "true"}))
	if ext.Kind != ExtractedFlags || ext.Flags.Sampled != SampledTrue {
		t.Errorf("Expected sampled flags, got %v %+v", ext.Kind, ext.Flags)
	}

	debug := Extract(MapGetter(map[string]string{"X-B3-Flags": "1"}))
	if debug.Kind != ExtractedFlags || !debug.Flags.Debug || debug.Flags.Sampled != SampledTrue {
		t.Errorf("Expected debug to imply sampled, got %v %+v", debug.Kind, debug.Flags)
	}
}

func TestExtractEmpty(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		wantErr bool
	}{
		{name: "no headers", headers: map[string]string{}},
		{name: "trace id only", headers: map[string]string{"X-B3-TraceId": "463ac35c9f6413ad"}, wantErr: true},
		{name: "span id only", headers: map[string]string{"X-B3-SpanId": "463ac35c9f6413ad"}, wantErr: true},
		{name: "malformed trace id", headers: map[string]string{"X-B3-TraceId": "xyz", "X-B3-SpanId": "463ac35c9f6413ad"}, wantErr: true},
		{name: "malformed span id", headers: map[string]string{"X-B3-TraceId": "463ac35c9f6413ad", "X-B3-SpanId": "123"}, wantErr: true},
		{
			name: "malformed parent",
			headers: map[string]string{
				"X-B3-TraceId":      "463ac35c9f6413ad",
				"X-B3-SpanId":       "463ac35c9f6413ad",
				"X-B3-ParentSpanId": "nope",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext := Extract(MapGetter(tt.headers))
			if ext.Kind != ExtractedEmpty {
				t.Errorf("Expected empty extraction, got %v", ext.Kind)
			}
			if tt.wantErr && !errors.Is(ext.Err, ErrMalformedHeader) {
				t.Errorf("Expected ErrMalformedHeader, got %v", ext.Err)
			}
			if !tt.wantErr && ext.Err != nil {
				t.Errorf("Unexpected error: %v", ext.Err)
			}
		})
	}
}

func TestExtractInvalidSampledIgnored(t *testing.T) {
	ext := Extract(MapGetter(map[string]string{
		"X-B3-TraceId": "463ac35c9f6413ad",
		"X-B3-SpanId":  "463ac35c9f6413ad",
		"X-B3-Sampled": "maybe",
	}))
	if ext.Kind != ExtractedContext {
		t.Fatalf("Expected context extraction, got %v", ext.Kind)
	}
	if ext.Context.Sampled.IsSet() {
		t.Errorf("Expected no sampling decision, got %v", ext.Context.Sampled)
	}
	if !errors.Is(ext.Err, ErrMalformedHeader) {
		t.Errorf("Expected decode error to be recorded, got %v", ext.Err)
	}
}

func TestExtractCaseInsensitive(t *testing.T) {
	want := TraceContext{TraceID: TraceID{Low: 0x463ac35c9f6413ad}, SpanID: 0xff, Sampled: SampledTrue}

	for _, headers := range []map[string]string{
		{"x-b3-traceid": "463ac35c9f6413ad", "x-b3-spanid": "00000000000000ff", "x-b3-sampled": "1"},
		{"X-B3-TRACEID": "463ac35c9f6413ad", "X-B3-SPANID": "00000000000000ff", "X-B3-SAMPLED": "1"},
	} {
		ext := Extract(MapGetter(headers))
		if ext.Kind != ExtractedContext || !ext.Context.Equal(want) {
			t.Errorf("Expected %+v from %v, got %v %+v", want, headers, ext.Kind, ext.Context)
		}
	}

	h := http.Header{}
	h["x-b3-traceid"] = []string{"463ac35c9f6413ad"} // non-canonical, as a proxy might forward it
	h.Set("x-b3-spanid", "00000000000000ff")
	h.Set("X-B3-Sampled", "1")
	if ext := Extract(HeaderGetter(h)); ext.Kind == ExtractedContext {
		// http.Header.Get only sees canonical keys; the raw lowercase entry
		// is invisible, which makes this a partial extraction.
		t.Errorf("Expected non-canonical raw key to be ignored, got %+v", ext.Context)
	}
}

func TestExtraFieldsPropagate(t *testing.T) {
	codec := B3{ExtraFields: []string{"X-Tenant"}}

	ext := codec.Extract(MapGetter(map[string]string{
		"X-B3-TraceId": "463ac35c9f6413ad",
		"X-B3-SpanId":  "463ac35c9f6413ad",
		"X-B3-Sampled": "1",
		"x-tenant":     "acme",
	}))
	if v, ok := ext.Context.Extra("x-tenant"); !ok || v != "acme" {
		t.Fatalf("Expected tenant baggage, got %q %v", v, ok)
	}

	child := ext.Context.Child(0x42)
	out := http.Header{}
	codec.Inject(child, HeaderSetter(out))
	if out.Get("X-Tenant") != "acme" {
		t.Errorf("Expected baggage on injection, got %q", out.Get("X-Tenant"))
	}
	if out.Get(HeaderParentSpanID) != "463ac35c9f6413ad" {
		t.Errorf("Expected parent to be the extracted span, got %q", out.Get(HeaderParentSpanID))
	}
}

func TestTraceIDWidthSurvivesPropagation(t *testing.T) {
	const wide = "000000000000000048485a3953bb6124"
	ext := Extract(MapGetter(map[string]string{
		"x-b3-traceid": wide,
		"x-b3-spanid":  "00000000000000ff",
		"x-b3-sampled": "1",
	}))
	if ext.Kind != ExtractedContext {
		t.Fatalf("Expected context extraction, got %v (err %v)", ext.Kind, ext.Err)
	}
	if ext.Context.TraceID.Low != 0x48485a3953bb6124 || ext.Context.TraceID.High != 0 {
		t.Errorf("Expected the low word only, got %+v", ext.Context.TraceID)
	}

	out := map[string]string{}
	Inject(ext.Context.Child(0x1), MapSetter(out))
	if out["x-b3-traceid"] != wide {
		t.Errorf("Expected trace id written back as %q, got %q", wide, out["x-b3-traceid"])
	}
}
