package domain

// SignalKind identifies the mutation that produced a signal.
type SignalKind string

const (
	SignalNewEvent    SignalKind = "new_event"
	SignalPriceChange SignalKind = "price_change"
)

// Signal is an internal event pushed from a fetch-mutation site into the
// notification engine. PreviousPrice is set only for price changes.
type Signal struct {
	Kind          SignalKind
	Event         Event
	PreviousPrice *float64
}

// NewEventSignal builds a signal for a freshly inserted event.
func NewEventSignal(ev Event) Signal {
	return Signal{Kind: SignalNewEvent, Event: ev}
}

// PriceChangeSignal builds a signal for an observed bid change.
func PriceChangeSignal(ev Event, previousPrice float64) Signal {
	return Signal{Kind: SignalPriceChange, Event: ev, PreviousPrice: &previousPrice}
}

// VariationPct returns the relative price change of the signal as a fraction
// (0.2 == 20%), using the previous price as the base. Returns 0 when the
// signal carries no previous price or the base is not positive.
func (s Signal) VariationPct() float64 {
	if s.PreviousPrice == nil || *s.PreviousPrice <= 0 {
		return 0
	}
	delta := s.Event.CurrentBid - *s.PreviousPrice
	if delta < 0 {
		delta = -delta
	}
	return delta / *s.PreviousPrice
}
