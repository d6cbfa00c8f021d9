package orders

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
)

// Trigger names the pipeline step asking for a status change.
type Trigger string

const (
	TriggerProcess      Trigger = "process"
	TriggerReserve      Trigger = "reserve"
	TriggerReject       Trigger = "reject"
	TriggerShip         Trigger = "ship"
	TriggerDeliver      Trigger = "deliver"
	TriggerFailDelivery Trigger = "fail_delivery"
	TriggerCancel       Trigger = "cancel"
)

// transitions is the only place order status rules live; every mutator goes through Next.
var transitions = map[Status]map[Trigger]Status{
	StatusPending: {
		TriggerProcess: StatusProcessing,
		TriggerReject:  StatusCancelled,
		TriggerCancel:  StatusCancelled,
	},
	StatusProcessing: {
		TriggerReserve: StatusProcessing,
		TriggerReject:  StatusCancelled,
		TriggerShip:    StatusShipped,
		TriggerCancel:  StatusCancelled,
	},
	StatusShipped: {
		TriggerDeliver:      StatusDelivered,
		TriggerFailDelivery: StatusCancelled,
	},
	StatusDelivered: {},
	StatusCancelled: {},
}

// Next returns the status reached by applying t to from, or a *TransitionError.
func Next(from Status, t Trigger) (Status, error) {
	to, ok := transitions[from][t]
	if !ok {
		return from, &TransitionError{From: from, Trigger: t}
	}
	return to, nil
}

func CanTransition(from Status, t Trigger) bool {
	_, ok := transitions[from][t]
	return ok
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}
