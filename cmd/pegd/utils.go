package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/arkade-os/pegd/internal/config"
	"github.com/arkade-os/pegd/internal/core/application"
	"github.com/arkade-os/pegd/internal/core/domain"
	pegerrors "github.com/arkade-os/pegd/pkg/errors"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"
)

const adminTokenHeader = "X-Admin-Token"

type errorResponse struct {
	Code     uint16            `json:"code"`
	Name     string            `json:"name"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata"`
}

func (e errorResponse) String() string {
	if len(e.Name) <= 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

func getRequest(url, token string) ([]byte, error) {
	return doRequest(http.MethodGet, url, token, nil)
}

func postRequest(url, token string, body any) ([]byte, error) {
	return doRequest(http.MethodPost, url, token, body)
}

func doRequest(method, url, token string, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Add("Content-Type", "application/json")
	if len(token) > 0 {
		req.Header.Add(adminTokenHeader, token)
	}

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	// nolint
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errResp := errorResponse{}
		if err := json.Unmarshal(buf, &errResp); err != nil || len(errResp.Message) <= 0 {
			return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, buf)
		}
		return nil, fmt.Errorf("%s", errResp)
	}
	return buf, nil
}

func printJSON(buf []byte) error {
	var out bytes.Buffer
	if err := json.Indent(&out, buf, "", "  "); err != nil {
		return err
	}
	fmt.Println(out.String())
	return nil
}

// adminToken returns the --token flag, falling back to the token configured for the
// daemon in the environment.
func adminToken(ctx *cli.Context) string {
	if token := ctx.String(tokenFlagName); len(token) > 0 {
		return token
	}
	return viper.GetString(config.AdminToken.Name)
}

func baseURL(ctx *cli.Context) string {
	return strings.TrimSuffix(ctx.String(urlFlagName), "/")
}

// parsePubkey accepts both x-only (32 bytes) and compressed (33 bytes) hex keys.
func parsePubkey(pubkeyHex string) (*btcec.PublicKey, error) {
	buf, err := hex.DecodeString(strings.TrimSpace(pubkeyHex))
	if err != nil {
		return nil, fmt.Errorf("invalid pubkey: %s", err)
	}
	switch len(buf) {
	case schnorr.PubKeyBytesLen:
		return schnorr.ParsePubKey(buf)
	case btcec.PubKeyBytesLenCompressed:
		return btcec.ParsePubKey(buf)
	default:
		return nil, fmt.Errorf("invalid pubkey length %d", len(buf))
	}
}

// verifyAttestationFile checks the attestation stored at path offline. The returned error
// is ATTESTATION_INVALID if the file does not hold a valid attestation signed by the
// given key, or ATTESTATION_STALE if it is older than maxAge.
func verifyAttestationFile(
	path, pubkeyHex string, maxAge time.Duration, now time.Time,
) (*domain.Attestation, error) {
	pubkey, err := parsePubkey(pubkeyHex)
	if err != nil {
		return nil, err
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read attestation file: %s", err)
	}

	att, err := domain.DecodeAttestation(buf)
	if err != nil {
		return nil, pegerrors.ATTESTATION_INVALID.Wrap(err).
			WithMetadata(pegerrors.AttestationInvalidMetadata{Reason: err.Error()})
	}

	if err := application.VerifyAttestation(*att, pubkey, maxAge, now); err != nil {
		return nil, err
	}
	return att, nil
}

func dateToUnix(date string) (int64, error) {
	if len(date) <= 0 {
		return 0, nil
	}
	t, err := time.Parse(dateFormat, date)
	if err != nil {
		return 0, fmt.Errorf("invalid date %s, must be in %s format", date, dateFormat)
	}
	return t.Unix(), nil
}
