package booking

// The appointment lifecycle:
//
//	pending ──confirm──▶ confirmed ──complete──▶ completed
//	   │                     │
//	   └──cancel/expire──▶ cancelled ◀──cancel──┘
//
// completed and cancelled are terminal. Expiry of a pending hold is the
// cancel transition with a recorded reason, not a separate state.
var transitions = map[AppointmentStatus]map[AppointmentStatus]bool{
	StatusPending: {
		StatusConfirmed: true,
		StatusCancelled: true,
	},
	StatusConfirmed: {
		StatusCompleted: true,
		StatusCancelled: true,
	},
}

// CanTransition reports whether the move from one status to another is in the
// transition table.
// Anything not listed is rejected, including any move out of a terminal state.
func CanTransition(from, to AppointmentStatus) bool {
	return transitions[from][to]
}

// Terminal reports whether no transition leaves the given status.
func Terminal(s AppointmentStatus) bool {
	return len(transitions[s]) == 0
}

// ReleasesSlot reports whether the transition clears the slot's occupancy.
// Only cancellation frees the slot: a completed appointment keeps its slot
// occupied so it can never be re-booked.
func ReleasesSlot(to AppointmentStatus) bool {
	return to == StatusCancelled
}
