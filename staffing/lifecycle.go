package staffing

// =============================================================================
// ORDER LIFECYCLE - Allowed status transitions
// =============================================================================
//
//   PENDING ──> CONFIRMED/SERVING ──> COMPLETED
//      │              │
//      └──────────────┴─────────────> CANCELLED
//
// COMPLETED and CANCELLED are terminal. Staying in the same status is
// always allowed so that plain field updates pass through.

var transitions = map[OrderStatus][]OrderStatus{
	OrderPending:   {OrderConfirmed, OrderServing, OrderCompleted, OrderCancelled},
	OrderConfirmed: {OrderServing, OrderCompleted, OrderCancelled},
	OrderServing:   {OrderConfirmed, OrderCompleted, OrderCancelled},
}

// CanTransition reports whether an order may move from -> to.
func CanTransition(from, to OrderStatus) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns a *TransitionError when the move is not allowed.
func CheckTransition(from, to OrderStatus) error {
	if !to.Valid() || !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// ReleasesCaregiver reports whether entering status frees the caregiver.
func ReleasesCaregiver(status OrderStatus) bool {
	return status.IsTerminal()
}
