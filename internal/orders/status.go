package orders

import "github.com/ariefcatur/go-seller-settlement/internal/model"

// validNext is the sub-order state machine. Each seller ships its own slice
// of an order; a dispute can be resolved either way.
var validNext = map[model.SubOrderStatus]map[model.SubOrderStatus]bool{
	model.SubOrderPending:    {model.SubOrderProcessing: true, model.SubOrderCancelled: true},
	model.SubOrderProcessing: {model.SubOrderShipped: true, model.SubOrderCancelled: true},
	model.SubOrderShipped:    {model.SubOrderDelivered: true, model.SubOrderDisputed: true},
	model.SubOrderDelivered:  {model.SubOrderDisputed: true},
	model.SubOrderDisputed:   {model.SubOrderDelivered: true, model.SubOrderCancelled: true},
	model.SubOrderCancelled:  {},
}

func CanTransition(from, to model.SubOrderStatus) bool {
	return validNext[from][to]
}

func ParseSubOrderStatus(s string) (model.SubOrderStatus, bool) {
	st := model.SubOrderStatus(s)
	_, ok := validNext[st]
	return st, ok
}

// rollUp derives the parent order status from its sub-orders.
func rollUp(current model.OrderStatus, subs []model.SellerSubOrder) model.OrderStatus {
	if len(subs) == 0 {
		return current
	}
	var delivered, cancelled, started int
	for _, so := range subs {
		switch so.Status {
		case model.SubOrderDelivered:
			delivered++
		case model.SubOrderCancelled:
			cancelled++
		case model.SubOrderProcessing, model.SubOrderShipped, model.SubOrderDisputed:
			started++
		}
	}
	switch {
	case cancelled == len(subs):
		return model.OrderCancelled
	case delivered+cancelled == len(subs):
		return model.OrderFulfilled
	case started+delivered > 0:
		return model.OrderProcessing
	}
	return current
}
