package order

import "slices"

// transitions lists the statuses an administrator may move an order to.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered, StatusCancelled},
}

// CanTransition reports whether from -> to is an allowed administrative step.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}
