package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"

	"github.com/arkade-os/pegd/internal/core/domain"
)

const maxBodySize = 1 << 16

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %s", err)
	}
	return nil
}

func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("missing amount")
	}
	return domain.ParseAmount(s)
}

func parseTimeRange(r *http.Request) (int64, int64, error) {
	after, err := parseInt64Query(r, "after")
	if err != nil {
		return 0, 0, err
	}
	before, err := parseInt64Query(r, "before")
	if err != nil {
		return 0, 0, err
	}
	if after < 0 {
		return 0, 0, fmt.Errorf("invalid after (must be >= 0)")
	}
	if before < 0 {
		return 0, 0, fmt.Errorf("invalid before (must be >= 0)")
	}
	if before > 0 && after >= before {
		return 0, 0, fmt.Errorf("invalid range")
	}
	return after, before, nil
}

func parseInt64Query(r *http.Request, key string) (int64, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %s", key, value)
	}
	return n, nil
}

func parseSupplyKinds(r *http.Request) ([]domain.SupplyEntryKind, error) {
	values := r.URL.Query()["kind"]
	kinds := make([]domain.SupplyEntryKind, 0, len(values))
	for _, v := range values {
		kind := domain.SupplyEntryKindFromString(v)
		if kind == domain.SupplyEntryKindUnspecified {
			return nil, fmt.Errorf("invalid kind %q", v)
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

func parseRedemptionStates(r *http.Request) ([]domain.RedemptionState, error) {
	values := r.URL.Query()["state"]
	states := make([]domain.RedemptionState, 0, len(values))
	for _, v := range values {
		state := domain.RedemptionState(v)
		if !state.IsValid() {
			return nil, fmt.Errorf("invalid state %q", v)
		}
		states = append(states, state)
	}
	return states, nil
}
