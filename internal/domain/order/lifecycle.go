package order

import (
	"fmt"

	"github.com/harsh2243/Desimithaas-sub001/internal/domain/errs"
)

// TransitionError reports a state change the lifecycle does not allow.
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	if e.To == string(StatusCancelled) {
		return fmt.Sprintf("order already %s, cannot cancel", e.From)
	}
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

// next maps each fulfillment state to the only forward state it may move to.
var next = map[Status]Status{
	StatusPending:    StatusProcessing,
	StatusProcessing: StatusShipped,
	StatusShipped:    StatusDelivered,
}

var paymentNext = map[PaymentStatus][]PaymentStatus{
	PaymentPending: {PaymentPaid, PaymentFailed},
	PaymentPaid:    {PaymentRefunded},
}

func transitionConflict(from, to string) error {
	te := &TransitionError{From: from, To: to}
	return errs.Conflict(te, "%s", te.Error())
}

// Cancel moves a pending order to cancelled. Any other source state fails and
// leaves the order unchanged.
func (o *Order) Cancel() error {
	if o.Status != StatusPending {
		return transitionConflict(string(o.Status), string(StatusCancelled))
	}
	o.Status = StatusCancelled
	return nil
}

// Transition moves the order to `to`. Forward moves are allowed only from the
// immediately preceding state; cancelled is delegated to Cancel.
func (o *Order) Transition(to Status) error {
	if to == StatusCancelled {
		return o.Cancel()
	}
	if n, ok := next[o.Status]; !ok || n != to {
		return transitionConflict(string(o.Status), string(to))
	}
	o.Status = to
	return nil
}

// SetPaymentStatus moves the payment state to `to`: pending to paid or failed,
// and paid to refunded.
func (o *Order) SetPaymentStatus(to PaymentStatus) error {
	for _, allowed := range paymentNext[o.PaymentStatus] {
		if allowed == to {
			o.PaymentStatus = to
			return nil
		}
	}
	return transitionConflict(string(o.PaymentStatus), string(to))
}
