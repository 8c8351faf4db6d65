package person

import "time"

type (
	// LifecycleState discriminates which case of Lifecycle is populated.
	LifecycleState string

	// Lifecycle is a sum type over a person's life-cycle state. Deactivated
	// carries its reason and timestamp, Deceased its date, and Merged its
	// target id and timestamp, as payloads on the variant rather than as
	// separate sentinel-valued fields.
	Lifecycle struct {
		State LifecycleState

		DeactivatedReason string
		DeactivatedAt     time.Time

		DeceasedDate time.Time

		MergedInto ID
		MergedAt   time.Time
	}
)

// Lifecycle states.
const (
	LifecycleActive      LifecycleState = "active"
	LifecycleDeactivated LifecycleState = "deactivated"
	LifecycleDeceased    LifecycleState = "deceased"
	LifecycleMerged      LifecycleState = "merged"
)

// ActiveLifecycle returns the Active lifecycle value.
func ActiveLifecycle() Lifecycle {
	return Lifecycle{State: LifecycleActive}
}

// DeactivatedLifecycle returns a Deactivated lifecycle value.
func DeactivatedLifecycle(reason string, at time.Time) Lifecycle {
	return Lifecycle{State: LifecycleDeactivated, DeactivatedReason: reason, DeactivatedAt: at}
}

// DeceasedLifecycle returns a Deceased lifecycle value.
func DeceasedLifecycle(date time.Time) Lifecycle {
	return Lifecycle{State: LifecycleDeceased, DeceasedDate: date}
}

// MergedLifecycle returns a Merged lifecycle value.
func MergedLifecycle(into ID, at time.Time) Lifecycle {
	return Lifecycle{State: LifecycleMerged, MergedInto: into, MergedAt: at}
}

// IsTerminalForWrites reports whether this lifecycle state admits only
// the narrow set of post-terminal operations (attribute invalidation,
// and for Deceased, a subsequent merge) rather than general writes.
func (l Lifecycle) IsTerminalForWrites() bool {
	return l.State == LifecycleDeceased || l.State == LifecycleMerged
}
