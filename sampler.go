package linkz

import (
	"fmt"
	"strings"
	"sync"
)

// RequestDescriptor is everything a sampler may look at.
type RequestDescriptor struct {
	Method  string
	Path    string
	TraceID TraceID
	Kind    Kind
}

// Sampler decides whether a new trace is reported. Implementations must be a
// pure function of the descriptor.
type Sampler interface {
	TrySample(desc RequestDescriptor) bool
}

// SamplerFunc adapts a function to Sampler.
type SamplerFunc func(desc RequestDescriptor) bool

// TrySample calls f.
func (f SamplerFunc) TrySample(desc RequestDescriptor) bool {
	return f(desc)
}

var (
	// AlwaysSample accepts every trace.
	AlwaysSample Sampler = SamplerFunc(func(RequestDescriptor) bool { return true })

	// NeverSample rejects every trace.
	NeverSample Sampler = SamplerFunc(func(RequestDescriptor) bool { return false })
)

const sampleBuckets = 10000

// RateSampler accepts the fraction rate of traces by testing the low trace id
// word against a boundary, so the same trace id always gets the same answer.
func RateSampler(rate float64) (Sampler, error) {
	if !(rate >= 0 && rate <= 1) {
		return nil, fmt.Errorf("linkz: sample rate %v outside [0, 1]", rate)
	}
	switch rate {
	case 0:
		return NeverSample, nil
	case 1:
		return AlwaysSample, nil
	}
	boundary := uint64(rate * sampleBuckets)
	return SamplerFunc(func(desc RequestDescriptor) bool {
		return desc.TraceID.Low%sampleBuckets < boundary
	}), nil
}

// SamplerRule routes requests matching Method (empty matches any) and
// PathPrefix to Sampler.
type SamplerRule struct {
	Sampler    Sampler
	Method     string
	PathPrefix string
}

func (r SamplerRule) matches(desc RequestDescriptor) bool {
	if r.Method != "" && !strings.EqualFold(r.Method, desc.Method) {
		return false
	}
	return strings.HasPrefix(desc.Path, r.PathPrefix)
}

// RuleSampler applies the first matching rule, else fallback.
func RuleSampler(fallback Sampler, rules ...SamplerRule) Sampler {
	return SamplerFunc(func(desc RequestDescriptor) bool {
		for _, r := range rules {
			if r.matches(desc) {
				return r.Sampler.TrySample(desc)
			}
		}
		return fallback.TrySample(desc)
	})
}

// decisionTable remembers recent per-trace decisions so a repeated
// consultation can be detected and answered consistently.
type decisionTable struct {
	decisions map[TraceID]bool
	max       int
	mu        sync.Mutex
}

func newDecisionTable(maxEntries int) *decisionTable {
	return &decisionTable{
		decisions: make(map[TraceID]bool),
		max:       maxEntries,
	}
}

// decide returns the remembered decision and true, or records the result of
// sample and returns false.
func (d *decisionTable) decide(id TraceID, sample func() bool) (bool, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if v, ok := d.decisions[id]; ok {
		return v, true
	}
	if len(d.decisions) >= d.max {
		// Reset rather than evict one by one; detection is best effort.
		d.decisions = make(map[TraceID]bool, d.max)
	}
	v := sample()
	d.decisions[id] = v
	return v, false
}
