package domain

type CheckoutStatus string

const (
	CheckoutStatusCart            CheckoutStatus = "CART"
	CheckoutStatusReviewing       CheckoutStatus = "REVIEWING"
	CheckoutStatusAwaitingGateway CheckoutStatus = "AWAITING_GATEWAY"
	CheckoutStatusSettling        CheckoutStatus = "SETTLING"
	CheckoutStatusCompleted       CheckoutStatus = "COMPLETED"
	CheckoutStatusFailed          CheckoutStatus = "FAILED"
)

var checkoutTransitions = map[CheckoutStatus][]CheckoutStatus{
	CheckoutStatusCart:            {CheckoutStatusReviewing},
	CheckoutStatusReviewing:       {CheckoutStatusReviewing, CheckoutStatusAwaitingGateway, CheckoutStatusSettling, CheckoutStatusFailed},
	CheckoutStatusAwaitingGateway: {CheckoutStatusSettling, CheckoutStatusFailed},
	CheckoutStatusSettling:        {CheckoutStatusCompleted, CheckoutStatusFailed},
}

// CanTransitionTo reports whether the checkout state machine allows from -> to.
func CanTransitionTo(from, to CheckoutStatus) bool {
	for _, next := range checkoutTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s CheckoutStatus) IsTerminal() bool {
	return s == CheckoutStatusCompleted || s == CheckoutStatusFailed
}

// String representation (for logging)
func (s CheckoutStatus) String() string {
	return string(s)
}
