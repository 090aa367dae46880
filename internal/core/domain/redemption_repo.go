package domain

import "context"

type RedemptionRepository interface {
	// AddOrUpdateIntent upserts the given intent.
	AddOrUpdateIntent(ctx context.Context, intent RedeemIntent) error
	GetIntent(ctx context.Context, id string) (*RedeemIntent, error)
	// GetIntentsByState returns the intents in any of the given states, oldest first.
	GetIntentsByState(ctx context.Context, states ...RedemptionState) ([]RedeemIntent, error)
	GetIntentsByRequester(ctx context.Context, requester string) ([]RedeemIntent, error)
	Close()
}
