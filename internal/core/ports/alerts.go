package ports

import "context"

const (
	CollateralShortfall Topic = "Collateral Shortfall"
	FeedDegraded        Topic = "Reserve Feed Degraded"
	AttestationProduced Topic = "Attestation Produced"
	RedemptionExpired   Topic = "Redemption Expired"
)

type Topic string

type Alerts interface {
	Publish(ctx context.Context, topic Topic, message interface{}) error
}
