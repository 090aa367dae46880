package domain

import "context"

type AttestationRepository interface {
	Add(ctx context.Context, attestation Attestation) error
	// GetLatest returns the most recently produced attestation, nil if none exists.
	GetLatest(ctx context.Context) (*Attestation, error)
	Get(ctx context.Context, id string) (*Attestation, error)
	// GetAll returns attestations produced within [after, before], newest first.
	// A zero bound is ignored.
	GetAll(ctx context.Context, after, before int64) ([]Attestation, error)
	Close()
}
