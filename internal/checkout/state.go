package checkout

// State é a etapa em que uma tentativa de checkout se encontra
type State string

const (
	StateInit            State = "INIT"
	StateCartLoaded      State = "CART_LOADED"
	StatePaymentVerified State = "PAYMENT_VERIFIED"
	StateStockReserved   State = "STOCK_RESERVED"
	StateOrderCommitted  State = "ORDER_COMMITTED"
	StateCartCleared     State = "CART_CLEARED"
	StateFailed          State = "FAILED"
)

// ORDER_COMMITTED is reachable directly from CART_LOADED and PAYMENT_VERIFIED when an
// order already exists for the payment reference; such replays end there.
var transitions = map[State][]State{
	StateInit:            {StateCartLoaded, StateFailed},
	StateCartLoaded:      {StatePaymentVerified, StateOrderCommitted, StateFailed},
	StatePaymentVerified: {StateStockReserved, StateOrderCommitted, StateFailed},
	StateStockReserved:   {StateOrderCommitted, StateFailed},
	StateOrderCommitted:  {StateCartCleared},
}

func (s State) IsTerminal() bool {
	return s == StateCartCleared || s == StateFailed
}

func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
