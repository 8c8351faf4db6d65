package person

import "time"

type (
	// AttributeSource identifies how a PersonAttribute's value was obtained.
	AttributeSource string

	// ConfidenceLevel is a totally ordered confidence rating for a
	// recorded value. Higher values are more confident; compare with
	// the standard < <= > >= operators on the underlying rank.
	ConfidenceLevel int

	// TraceEntry is one step in a value's transformation trace: a
	// record of how a value was derived or altered between being
	// observed and being recorded on the aggregate.
	TraceEntry struct {
		Description string
		At          time.Time
	}

	// Provenance records where a value came from, how confident the
	// system is in it, and the steps that produced it.
	Provenance struct {
		Source               AttributeSource
		Confidence           ConfidenceLevel
		RecordedAt           time.Time
		TransformationTrace  []TraceEntry
	}
)

// Attribute sources.
const (
	AttributeSourceDocumentVerified AttributeSource = "document_verified"
	AttributeSourceMeasured         AttributeSource = "measured"
	AttributeSourceSelfReported     AttributeSource = "self_reported"
	AttributeSourceImported         AttributeSource = "imported"
	AttributeSourceDerived          AttributeSource = "derived"
	AttributeSourceObserved         AttributeSource = "observed"
)

// Confidence levels, from least to most confident.
const (
	ConfidenceSpeculative ConfidenceLevel = iota
	ConfidencePossible
	ConfidenceLikely
	ConfidenceCertain
)

// Equal reports structural equality, including the transformation trace.
func (p Provenance) Equal(other Provenance) bool {
	if p.Source != other.Source || p.Confidence != other.Confidence || !p.RecordedAt.Equal(other.RecordedAt) {
		return false
	}

	if len(p.TransformationTrace) != len(other.TransformationTrace) {
		return false
	}

	for i := range p.TransformationTrace {
		a, b := p.TransformationTrace[i], other.TransformationTrace[i]
		if a.Description != b.Description || !a.At.Equal(b.At) {
			return false
		}
	}

	return true
}
