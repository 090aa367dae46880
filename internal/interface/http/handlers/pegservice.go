package handlers

import (
	"net/http"

	"github.com/arkade-os/pegd/internal/core/application"
	"github.com/arkade-os/pegd/internal/interface/http/interceptors"
	"github.com/gorilla/mux"
)

type pegHandler struct {
	svc     application.Service
	version string
}

// NewPegHandler serves the read-only routes of the public port. The latest attestation is
// published at a well-known path so anyone can verify it.
func NewPegHandler(version string, svc application.Service) Handler {
	return &pegHandler{svc: svc, version: version}
}

func (h *pegHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/v1/info", h.GetInfo).Methods(http.MethodGet)
	r.HandleFunc("/v1/peg", h.GetPegInfo).Methods(http.MethodGet)
	r.HandleFunc("/v1/supply", h.GetSupply).Methods(http.MethodGet)
	r.HandleFunc("/v1/reserve", h.GetReserve).Methods(http.MethodGet)
	r.HandleFunc("/v1/collateralization", h.GetCollateralization).Methods(http.MethodGet)
	r.HandleFunc("/v1/attestation/latest", h.GetLatestAttestation).Methods(http.MethodGet)
	r.HandleFunc("/v1/attestations", h.ListAttestations).Methods(http.MethodGet)
	r.HandleFunc("/v1/attestations/{id}", h.GetAttestation).Methods(http.MethodGet)
}

func (h *pegHandler) GetInfo(w http.ResponseWriter, r *http.Request) {
	pubkey, err := h.svc.GetSignerPubkey(r.Context())
	if err != nil {
		interceptors.WriteError(w, err)
		return
	}
	interceptors.WriteJSON(w, http.StatusOK, map[string]any{
		"version":      h.version,
		"signerPubkey": pubkey,
		"peg":          h.svc.GetPegInfo(),
	})
}

func (h *pegHandler) GetPegInfo(w http.ResponseWriter, _ *http.Request) {
	interceptors.WriteJSON(w, http.StatusOK, h.svc.GetPegInfo())
}

func (h *pegHandler) GetSupply(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.GetSupply(r.Context())
	if err != nil {
		interceptors.WriteError(w, err)
		return
	}
	interceptors.WriteJSON(w, http.StatusOK, toSupplyInfo(info))
}

func (h *pegHandler) GetReserve(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.GetReserve(r.Context())
	if err != nil {
		interceptors.WriteError(w, err)
		return
	}
	interceptors.WriteJSON(w, http.StatusOK, reserveInfo{
		Snapshot:    toReserveSnapshot(info.Snapshot),
		LastWarning: info.LastWarning,
		Cached:      info.Cached,
	})
}

func (h *pegHandler) GetCollateralization(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.GetCollateralization(r.Context())
	if err != nil {
		interceptors.WriteError(w, err)
		return
	}
	interceptors.WriteJSON(w, http.StatusOK, toCollateralizationInfo(info))
}

func (h *pegHandler) GetLatestAttestation(w http.ResponseWriter, r *http.Request) {
	att, err := h.svc.GetLatestAttestation(r.Context())
	if err != nil {
		interceptors.WriteError(w, err)
		return
	}
	interceptors.WriteJSON(w, http.StatusOK, att)
}

func (h *pegHandler) GetAttestation(w http.ResponseWriter, r *http.Request) {
	att, err := h.svc.GetAttestation(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		interceptors.WriteError(w, err)
		return
	}
	interceptors.WriteJSON(w, http.StatusOK, att)
}

func (h *pegHandler) ListAttestations(w http.ResponseWriter, r *http.Request) {
	after, before, err := parseTimeRange(r)
	if err != nil {
		interceptors.WriteBadRequest(w, err.Error())
		return
	}
	list, err := h.svc.ListAttestations(r.Context(), after, before)
	if err != nil {
		interceptors.WriteError(w, err)
		return
	}
	interceptors.WriteJSON(w, http.StatusOK, map[string]any{"attestations": list})
}
