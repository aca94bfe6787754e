package events

// Topic constants for domain events emitted by the checkout engine.
const (
	TopicCheckoutCompleted = "checkout.completed"
	TopicCheckoutCanceled  = "checkout.canceled"
	TopicPromotionApplied  = "promotion.applied"
	TopicPromotionRevoked  = "promotion.revoked"
	TopicReceiptRequested  = "receipt.requested"
)

// DefaultTopics returns the canonical list of emitted topics.
func DefaultTopics() []string {
	return []string{
		TopicCheckoutCompleted,
		TopicCheckoutCanceled,
		TopicPromotionApplied,
		TopicPromotionRevoked,
		TopicReceiptRequested,
	}
}
