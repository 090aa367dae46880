package ports

import "github.com/arkade-os/pegd/internal/core/domain"

type RepoManager interface {
	Events() domain.EventRepository
	Supply() domain.SupplyRepository
	Utxos() domain.UtxoRepository
	Attestations() domain.AttestationRepository
	Redemptions() domain.RedemptionRepository
	Close()
}
