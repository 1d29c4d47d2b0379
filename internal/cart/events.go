package cart

import "log"

// Event is a notification raised by the cart core. Delivery is synchronous
// and the core makes no assumption about who is listening; handlers must not
// call back into the Service.
type Event interface {
	Kind() string
}

// OutOfStockEvent fires when a requested quantity cannot be satisfied by the
// last-observed stock. The rejected mutation leaves the cart unchanged.
type OutOfStockEvent struct {
	ProductName    string `json:"product_name"`
	AvailableStock int    `json:"available_stock"`
	RequestedQty   int    `json:"requested_qty"`
	CurrentCartQty int    `json:"current_cart_qty"`
}

func (OutOfStockEvent) Kind() string { return "out_of_stock" }

// QuantityAdjustedEvent fires when a reconciliation pass clamps a line
// quantity down to the refreshed stock level.
type QuantityAdjustedEvent struct {
	ProductName    string `json:"product_name"`
	NewQuantity    int    `json:"new_quantity"`
	AvailableStock int    `json:"available_stock"`
}

func (QuantityAdjustedEvent) Kind() string { return "quantity_adjusted" }

// CartFilteredByStoreEvent fires when a store switch purges lines belonging
// to another store. It is raised only when at least one line was removed.
type CartFilteredByStoreEvent struct {
	RemovedCount int    `json:"removed_count"`
	StoreID      string `json:"store_id"`
}

func (CartFilteredByStoreEvent) Kind() string { return "cart_filtered_by_store" }

// NoStoreSelectedEvent fires when an add is attempted with no explicit or
// ambient store context.
type NoStoreSelectedEvent struct{}

func (NoStoreSelectedEvent) Kind() string { return "no_store_selected" }

// Notifier receives cart events. Implementations are registered at
// construction time; the core never broadcasts ambiently.
type Notifier interface {
	Notify(event Event)
}

type NopNotifier struct{}

func (NopNotifier) Notify(Event) {}

// LogNotifier writes every event to the process log.
type LogNotifier struct{}

func (LogNotifier) Notify(event Event) {
	log.Printf("[cart] event %s: %+v", event.Kind(), event)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(event Event) { f(event) }

// MultiNotifier fans an event out to several notifiers in order.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(event Event) {
	for _, n := range m {
		n.Notify(event)
	}
}
