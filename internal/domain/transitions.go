package domain

// allowedTransitions is the legal subscription status graph. A status with an
// empty set is terminal. A current status absent from this map is treated as
// the unknown bootstrap case and any transition is permitted, so statuses a
// platform starts reporting tomorrow flow through instead of hard-blocking
// ingestion.
var allowedTransitions = map[Status]map[Status]struct{}{
	StatusActive: {
		StatusExpired:        {},
		StatusInGracePeriod:  {},
		StatusPaused:         {},
		StatusInBillingRetry: {},
		StatusRevoked:        {},
		StatusRefunded:       {},
	},
	StatusExpired: {
		StatusActive: {},
	},
	StatusInGracePeriod: {
		StatusActive:         {},
		StatusExpired:        {},
		StatusInBillingRetry: {},
	},
	StatusInBillingRetry: {
		StatusActive:        {},
		StatusExpired:       {},
		StatusInGracePeriod: {},
	},
	StatusPaused: {
		StatusActive:  {},
		StatusExpired: {},
	},
	StatusOnHold: {
		StatusActive:  {},
		StatusExpired: {},
	},
	StatusPending: {
		StatusActive:  {},
		StatusExpired: {},
	},
	StatusRevoked:  {},
	StatusRefunded: {},
}

// CanTransition reports whether moving from current to next is legal. It is
// consulted immediately before every registry write; a no-op transition
// (current == next) is always allowed so repeated events carrying the same
// status still refresh the other subscription fields.
func CanTransition(current, next Status) bool {
	if current == next {
		return true
	}
	allowed, known := allowedTransitions[current]
	if !known {
		return true
	}
	_, ok := allowed[next]
	return ok
}
