package events

const (
	TopicOrderCreated      = "order.created"
	TopicSubOrderFulfilled = "order.suborder.fulfilled"
	TopicWithdrawals       = "seller.withdrawals"
	TopicPayoutMethods     = "seller.payout_methods"
	TopicSellerLedger      = "seller.ledger"
	TopicBuyerCredit       = "buyer.credit"
)

var topicByType = map[string]string{
	EventOrderCreated:          TopicOrderCreated,
	EventSubOrderFulfilled:     TopicSubOrderFulfilled,
	EventWithdrawalRequested:   TopicWithdrawals,
	EventWithdrawalSettled:     TopicWithdrawals,
	EventPayoutMethodReset:     TopicPayoutMethods,
	EventSellerBalanceCredited: TopicSellerLedger,
	EventBuyerCreditRedeemed:   TopicBuyerCredit,
}

// TopicFor maps an event type to its topic; unknown types return "".
func TopicFor(eventType string) string { return topicByType[eventType] }

// Partition key = correlation id, so every event of one order keeps its order.
func PartitionKey(id string) []byte { return []byte(id) }
