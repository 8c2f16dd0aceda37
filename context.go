package linkz

import (
	"encoding/json"
	"sort"
)

// Sampled is a tri-state sampling decision.
type Sampled uint8

// Sampling decisions.
const (
	SampledUnset Sampled = iota
	SampledTrue
	SampledFalse
)

// IsSet reports whether a decision was made.
func (s Sampled) IsSet() bool {
	return s != SampledUnset
}

// Bool returns true only for SampledTrue.
func (s Sampled) Bool() bool {
	return s == SampledTrue
}

func (s Sampled) String() string {
	switch s {
	case SampledTrue:
		return "true"
	case SampledFalse:
		return "false"
	default:
		return "unset"
	}
}

// SampledOf converts a boolean decision.
func SampledOf(b bool) Sampled {
	if b {
		return SampledTrue
	}
	return SampledFalse
}

// SamplingFlags are the sampling bits that travel without identifiers.
type SamplingFlags struct {
	Sampled Sampled
	Debug   bool
}

// TraceContext identifies a span within a trace. It is a value type: every
// derivation returns a copy and the receiver never changes.
type TraceContext struct {
	extra    map[string]string
	TraceID  TraceID
	SpanID   SpanID
	ParentID SpanID
	Sampled  Sampled
	Debug    bool
}

// IsValid reports whether both identifiers are set.
func (c TraceContext) IsValid() bool {
	return c.TraceID.IsValid() && c.SpanID.IsValid()
}

// IsRoot reports whether the context has no parent span.
func (c TraceContext) IsRoot() bool {
	return c.ParentID == 0
}

// Flags returns the sampling flags of the context.
func (c TraceContext) Flags() SamplingFlags {
	return SamplingFlags{Sampled: c.Sampled, Debug: c.Debug}
}

// Extra returns a propagated baggage value.
func (c TraceContext) Extra(key string) (string, bool) {
	v, ok := c.extra[key]
	return v, ok
}

// ExtraKeys returns baggage keys in sorted order.
func (c TraceContext) ExtraKeys() []string {
	if len(c.extra) == 0 {
		return nil
	}
	keys := make([]string, 0, len(c.extra))
	for k := range c.extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WithExtra returns a copy carrying key=value as baggage.
func (c TraceContext) WithExtra(key, value string) TraceContext {
	extra := make(map[string]string, len(c.extra)+1)
	for k, v := range c.extra {
		extra[k] = v
	}
	extra[key] = value
	c.extra = extra
	return c
}

// Child derives the context of a child span. Baggage is shared, which is safe
// because it is never written in place.
func (c TraceContext) Child(spanID SpanID) TraceContext {
	c.ParentID = c.SpanID
	c.SpanID = spanID
	return c
}

// Equal compares identifiers, flags and baggage.
func (c TraceContext) Equal(o TraceContext) bool {
	if c.TraceID != o.TraceID || c.SpanID != o.SpanID || c.ParentID != o.ParentID ||
		c.Sampled != o.Sampled || c.Debug != o.Debug || len(c.extra) != len(o.extra) {
		return false
	}
	for k, v := range c.extra {
		if ov, ok := o.extra[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

type traceContextJSON struct {
	Extra    map[string]string `json:"extra,omitempty"`
	TraceID  TraceID           `json:"trace_id"`
	SpanID   SpanID            `json:"span_id"`
	ParentID *SpanID           `json:"parent_id,omitempty"`
	Sampled  *bool             `json:"sampled,omitempty"`
	Debug    bool              `json:"debug,omitempty"`
}

// MarshalJSON renders identifiers as hex strings.
func (c TraceContext) MarshalJSON() ([]byte, error) {
	out := traceContextJSON{
		Extra:   c.extra,
		TraceID: c.TraceID,
		SpanID:  c.SpanID,
		Debug:   c.Debug,
	}
	if c.ParentID != 0 {
		parent := c.ParentID
		out.ParentID = &parent
	}
	if c.Sampled.IsSet() {
		sampled := c.Sampled.Bool()
		out.Sampled = &sampled
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (c *TraceContext) UnmarshalJSON(b []byte) error {
	var in traceContextJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*c = TraceContext{
		extra:   in.Extra,
		TraceID: in.TraceID,
		SpanID:  in.SpanID,
		Debug:   in.Debug,
	}
	if in.ParentID != nil {
		c.ParentID = *in.ParentID
	}
	if in.Sampled != nil {
		c.Sampled = SampledOf(*in.Sampled)
	}
	return nil
}
