package models

import (
	dErrors "coldchain/pkg/domain-errors"
)

// LocationStatus is the custody state of a drug unit.
type LocationStatus string

const (
	StatusProduced            LocationStatus = "PRODUCED"
	StatusPacked              LocationStatus = "PACKED"
	StatusInTransitToStorage  LocationStatus = "IN_TRANSIT_TO_STORAGE"
	StatusStorage             LocationStatus = "STORAGE"
	StatusInTransitToHospital LocationStatus = "IN_TRANSIT_TO_HOSPITAL"
	StatusHospital            LocationStatus = "HOSPITAL"
	StatusReadyForUse         LocationStatus = "READY_FOR_USE"
	StatusInjected            LocationStatus = "INJECTED"
	StatusDiscarded           LocationStatus = "DISCARDED"
)

// forwardTransitions lists the legal non-discard moves. DISCARDED is reachable
// from every non-terminal state and is handled in CanTransitionTo.
var forwardTransitions = map[LocationStatus][]LocationStatus{
	StatusProduced:            {StatusPacked},
	StatusPacked:              {StatusInTransitToStorage},
	StatusInTransitToStorage:  {StatusStorage},
	StatusStorage:             {StatusStorage, StatusInTransitToHospital},
	StatusInTransitToHospital: {StatusHospital},
	StatusHospital:            {StatusReadyForUse},
	StatusReadyForUse:         {StatusInjected},
}

func (s LocationStatus) String() string { return string(s) }

func (s LocationStatus) IsValid() bool {
	if s == StatusInjected || s == StatusDiscarded {
		return true
	}
	_, ok := forwardTransitions[s]
	return ok
}

// IsTerminal reports whether no further custody event may change the unit.
func (s LocationStatus) IsTerminal() bool {
	return s == StatusDiscarded || s == StatusInjected
}

func (s LocationStatus) IsInTransit() bool {
	return s == StatusInTransitToStorage || s == StatusInTransitToHospital
}

func (s LocationStatus) CanTransitionTo(next LocationStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StatusDiscarded {
		return true
	}
	for _, allowed := range forwardTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ParseLocationStatus validates a persisted or external status value.
func ParseLocationStatus(s string) (LocationStatus, error) {
	st := LocationStatus(s)
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown location status: "+s)
	}
	return st, nil
}
