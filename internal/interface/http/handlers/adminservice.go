package handlers

import (
	"net/http"

	"github.com/arkade-os/pegd/internal/core/application"
	"github.com/arkade-os/pegd/internal/interface/http/interceptors"
	"github.com/gorilla/mux"
)

const adminPrefix = "/v1/admin"

type adminHandler struct {
	svc application.Service
}

// NewAdminHandler serves the operator routes: minting, redemptions and on-demand
// attestations.
func NewAdminHandler(svc application.Service) Handler {
	return &adminHandler{svc}
}

func (h *adminHandler) RegisterRoutes(r *mux.Router) {
	s := r.PathPrefix(adminPrefix).Subrouter()
	s.HandleFunc("/attestation", h.ProduceAttestation).Methods(http.MethodPost)
	s.HandleFunc("/signer", h.GetSignerPubkey).Methods(http.MethodGet)
	s.HandleFunc("/mint", h.Mint).Methods(http.MethodPost)
	s.HandleFunc("/supply/history", h.GetSupplyHistory).Methods(http.MethodGet)
	s.HandleFunc("/redemptions", h.RequestRedeem).Methods(http.MethodPost)
	s.HandleFunc("/redemptions", h.ListRedemptions).Methods(http.MethodGet)
	s.HandleFunc("/redemptions/{id}", h.GetRedemption).Methods(http.MethodGet)
	s.HandleFunc("/redemptions/{id}/lock", h.LockRedemption).Methods(http.MethodPost)
	s.HandleFunc("/redemptions/{id}/cancel", h.CancelRedemption).Methods(http.MethodPost)
	s.HandleFunc("/redemptions/{id}/sync", h.SyncRedemption).Methods(http.MethodPost)
}

func (h *adminHandler) ProduceAttestation(w http.ResponseWriter, r *http.Request) {
	att, err := h.svc.ProduceAttestation(r.Context())
	if err != nil {
		interceptors.WriteError(w, err)
		return
	}
	interceptors.WriteJSON(w, http.StatusOK, att)
}

func (h *adminHandler) GetSignerPubkey(w http.ResponseWriter, r *http.Request) {
	pubkey, err := h.svc.GetSignerPubkey(r.Context())
	if err != nil {
		interceptors.WriteError(w, err)
		return
	}
	interceptors.WriteJSON(w, http.StatusOK, signerInfo{Pubkey: pubkey})
}

func (h *adminHandler) Mint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := decodeBody(r, &req); err != nil {
		interceptors.WriteBadRequest(w, err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		interceptors.WriteBadRequest(w, err.Error())
		return
	}
	if req.Reason == "" {
		interceptors.WriteBadRequest(w, "missing reason")
		return
	}

	entry, err := h.svc.Mint(r.Context(), amount, req.Reason, req.Ref)
	if err != nil {
		interceptors.WriteError(w, err)
		return
	}
	interceptors.WriteJSON(w, http.StatusOK, toSupplyEntry(*entry))
}

func (h *adminHandler) GetSupplyHistory(w http.ResponseWriter, r *http.Request) {
	kinds, err := parseSupplyKinds(r)
	if err != nil {
		interceptors.WriteBadRequest(w, err.Error())
		return
	}
	entries, err := h.svc.GetSupplyHistory(r.Context(), kinds...)
	if err != nil {
		interceptors.WriteError(w, err)
		return
	}

	list := make([]supplyEntry, 0, len(entries))
	for _, e := range entries {
		list = append(list, toSupplyEntry(e))
	}
	interceptors.WriteJSON(w, http.StatusOK, map[string]any{"entries": list})
}

func (h *adminHandler) RequestRedeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := decodeBody(r, &req); err != nil {
		interceptors.WriteBadRequest(w, err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		interceptors.WriteBadRequest(w, err.Error())
		return
	}
	if req.Requester == "" {
		interceptors.WriteBadRequest(w, "missing requester")
		return
	}
	if req.ClaimAddress == "" {
		interceptors.WriteBadRequest(w, "missing claim address")
		return
	}

	intent, err := h.svc.RequestRedeem(
		r.Context(), req.Requester, amount, req.ClaimAddress, req.PaymentHash,
	)
	if err != nil {
		interceptors.WriteError(w, err)
		return
	}
	interceptors.WriteJSON(w, http.StatusOK, toRedeemIntent(*intent))
}

func (h *adminHandler) ListRedemptions(w http.ResponseWriter, r *http.Request) {
	states, err := parseRedemptionStates(r)
	if err != nil {
		interceptors.WriteBadRequest(w, err.Error())
		return
	}
	intents, err := h.svc.ListRedemptions(
		r.Context(), r.URL.Query().Get("requester"), states...,
	)
	if err != nil {
		interceptors.WriteError(w, err)
		return
	}

	list := make([]redeemIntent, 0, len(intents))
	for _, i := range intents {
		list = append(list, toRedeemIntent(i))
	}
	interceptors.WriteJSON(w, http.StatusOK, map[string]any{"intents": list})
}

func (h *adminHandler) GetRedemption(w http.ResponseWriter, r *http.Request) {
	h.withIntent(w, r, h.svc.GetRedemption)
}

func (h *adminHandler) LockRedemption(w http.ResponseWriter, r *http.Request) {
	h.withIntent(w, r, h.svc.LockRedemption)
}

func (h *adminHandler) CancelRedemption(w http.ResponseWriter, r *http.Request) {
	h.withIntent(w, r, h.svc.CancelRedemption)
}

func (h *adminHandler) SyncRedemption(w http.ResponseWriter, r *http.Request) {
	h.withIntent(w, r, h.svc.SyncRedemption)
}

func (h *adminHandler) withIntent(
	w http.ResponseWriter, r *http.Request, fn intentFunc,
) {
	intent, err := fn(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		interceptors.WriteError(w, err)
		return
	}
	interceptors.WriteJSON(w, http.StatusOK, toRedeemIntent(*intent))
}
