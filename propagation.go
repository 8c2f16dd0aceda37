package linkz

import (
	"fmt"
	"net/http"
	"strings"
)

// B3 multi-header names.
const (
	HeaderTraceID      = "X-B3-TraceId"
	HeaderSpanID       = "X-B3-SpanId"
	HeaderParentSpanID = "X-B3-ParentSpanId"
	HeaderSampled      = "X-B3-Sampled"
	HeaderFlags        = "X-B3-Flags"
)

// Getter looks up a header value by name. Missing headers return "".
type Getter func(name string) string

// Setter writes a header.
type Setter func(name, value string)

// HeaderGetter reads from http.Header, which canonicalizes names.
func HeaderGetter(h http.Header) Getter {
	return h.Get
}

// HeaderSetter writes to http.Header.
func HeaderSetter(h http.Header) Setter {
	return h.Set
}

// MapGetter reads from a plain map regardless of key case.
func MapGetter(m map[string]string) Getter {
	lower := make(map[string]string, len(m))
	for k, v := range m {
		lower[strings.ToLower(k)] = v
	}
	return func(name string) string {
		return lower[strings.ToLower(name)]
	}
}

// MapSetter writes into a plain map using the lowercase header name.
func MapSetter(m map[string]string) Setter {
	return func(name, value string) {
		m[strings.ToLower(name)] = value
	}
}

// ExtractionKind classifies the outcome of Extract.
type ExtractionKind uint8

// Extraction outcomes.
const (
	ExtractedEmpty ExtractionKind = iota
	ExtractedFlags
	ExtractedContext
)

func (k ExtractionKind) String() string {
	switch k {
	case ExtractedFlags:
		return "flags"
	case ExtractedContext:
		return "context"
	default:
		return "empty"
	}
}

// Extraction is the result of decoding inbound headers. Err records the
// first decode problem; it is informational and never fails the request.
type Extraction struct {
	Err     error
	Context TraceContext
	Flags   SamplingFlags
	Kind    ExtractionKind
}

// B3 encodes trace contexts as B3 multi headers. ExtraFields names baggage
// headers propagated alongside the identifiers.
type B3 struct {
	ExtraFields []string
}

// Extract decodes headers with the zero B3 codec.
func Extract(get Getter) Extraction {
	return B3{}.Extract(get)
}

// Inject encodes a context with the zero B3 codec.
func Inject(tc TraceContext, set Setter) {
	B3{}.Inject(tc, set)
}

// Extract decodes headers. An explicit "not sampled" wins over everything
// else; partial or malformed identifiers yield an empty extraction.
func (b B3) Extract(get Getter) Extraction {
	var res Extraction

	flags, err := decodeFlags(get)
	if err != nil {
		res.Err = err
	}
	if flags.Sampled == SampledFalse {
		res.Kind = ExtractedFlags
		res.Flags = flags
		return res
	}

	traceHeader := get(HeaderTraceID)
	spanHeader := get(HeaderSpanID)
	if traceHeader == "" || spanHeader == "" {
		if traceHeader != "" || spanHeader != "" {
			res.Err = fmt.Errorf("%w: partial identifiers", ErrMalformedHeader)
			return res
		}
		if flags.Sampled.IsSet() || flags.Debug {
			res.Kind = ExtractedFlags
			res.Flags = flags
		}
		return res
	}

	traceID, err := ParseTraceID(traceHeader)
	if err != nil {
		res.Err = fmt.Errorf("%w: %s: %w", ErrMalformedHeader, HeaderTraceID, err)
		return res
	}
	spanID, err := ParseSpanID(spanHeader)
	if err != nil {
		res.Err = fmt.Errorf("%w: %s: %w", ErrMalformedHeader, HeaderSpanID, err)
		return res
	}
	tc := TraceContext{
		TraceID: traceID,
		SpanID:  spanID,
		Sampled: flags.Sampled,
		Debug:   flags.Debug,
	}
	if parentHeader := get(HeaderParentSpanID); parentHeader != "" {
		parentID, err := ParseSpanID(parentHeader)
		if err != nil {
			res.Err = fmt.Errorf("%w: %s: %w", ErrMalformedHeader, HeaderParentSpanID, err)
			return res
		}
		tc.ParentID = parentID
	}
	for _, field := range b.ExtraFields {
		if v := get(field); v != "" {
			tc = tc.WithExtra(strings.ToLower(field), v)
		}
	}

	res.Kind = ExtractedContext
	res.Context = tc
	res.Flags = flags
	return res
}

// Inject writes the context's identifiers, sampling decision and baggage.
func (b B3) Inject(tc TraceContext, set Setter) {
	set(HeaderTraceID, tc.TraceID.String())
	set(HeaderSpanID, tc.SpanID.String())
	if tc.ParentID != 0 {
		set(HeaderParentSpanID, tc.ParentID.String())
	}
	switch {
	case tc.Debug:
		set(HeaderSampled, "1")
		set(HeaderFlags, "1")
	case tc.Sampled == SampledTrue:
		set(HeaderSampled, "1")
	case tc.Sampled == SampledFalse:
		set(HeaderSampled, "0")
	}
	for _, field := range b.ExtraFields {
		if v, ok := tc.Extra(strings.ToLower(field)); ok {
			set(field, v)
		}
	}
}

func decodeFlags(get Getter) (SamplingFlags, error) {
	var flags SamplingFlags
	var err error

	switch v := get(HeaderSampled); v {
	case "":
	case "1", "true":
		flags.Sampled = SampledTrue
	case "0", "false":
		flags.Sampled = SampledFalse
	default:
		err = fmt.Errorf("%w: %s=%q", ErrMalformedHeader, HeaderSampled, v)
	}

	// Debug implies sampled unless the caller explicitly said no.
	if get(HeaderFlags) == "1" && flags.Sampled != SampledFalse {
		flags.Debug = true
		flags.Sampled = SampledTrue
	}
	return flags, err
}
