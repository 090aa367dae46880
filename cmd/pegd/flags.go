package main

import (
	"fmt"
	"time"

	"github.com/arkade-os/pegd/internal/config"
	"github.com/urfave/cli/v2"
)

const (
	urlFlagName          = "url"
	tokenFlagName        = "token"
	outFlagName          = "out"
	fileFlagName         = "file"
	pubkeyFlagName       = "pubkey"
	maxAgeFlagName       = "max-age"
	amountFlagName       = "amount"
	reasonFlagName       = "reason"
	refFlagName          = "ref"
	requesterFlagName    = "requester"
	addressFlagName      = "address"
	paymentHashFlagName  = "payment-hash"
	intentIdFlagName     = "id"
	stateFlagName        = "state"
	kindFlagName         = "kind"
	lockFlagName         = "lock"
	beforeDateFlagName   = "before-date"
	afterDateFlagName    = "after-date"
	defaultAttestMaxAge  = 24 * time.Hour
	dateFormat           = time.DateOnly
	timeout              = 30 * time.Second
)

var (
	urlFlag = &cli.StringFlag{
		Name:  urlFlagName,
		Usage: "the url where to reach the pegd admin server",
		Value: fmt.Sprintf("http://127.0.0.1:%d", config.DefaultAdminPort),
	}
	tokenFlag = &cli.StringFlag{
		Name:  tokenFlagName,
		Usage: "admin token used for authenticated requests, defaults to $PEGD_ADMIN_TOKEN",
	}
	outFlag = &cli.StringFlag{
		Name:  outFlagName,
		Usage: "path of the file where to write the attestation, stdout if unset",
	}
	fileFlag = &cli.StringFlag{
		Name:     fileFlagName,
		Usage:    "path of the attestation JSON file to verify",
		Required: true,
	}
	pubkeyFlag = &cli.StringFlag{
		Name:     pubkeyFlagName,
		Usage:    "hex encoded (x-only or compressed) public key of the expected signer",
		Required: true,
	}
	maxAgeFlag = &cli.DurationFlag{
		Name:  maxAgeFlagName,
		Usage: "max age of the attestation, 0 skips the staleness check",
		Value: defaultAttestMaxAge,
	}
	amountFlag = &cli.StringFlag{
		Name:     amountFlagName,
		Usage:    "amount of tokens",
		Required: true,
	}
	reasonFlag = &cli.StringFlag{
		Name:     reasonFlagName,
		Usage:    "reason recorded in the supply ledger",
		Required: true,
	}
	refFlag = &cli.StringFlag{
		Name:  refFlagName,
		Usage: "optional external reference making the mint idempotent",
	}
	requesterFlag = &cli.StringFlag{
		Name:     requesterFlagName,
		Usage:    "identity of the token holder redeeming",
		Required: true,
	}
	addressFlag = &cli.StringFlag{
		Name:     addressFlagName,
		Usage:    "bitcoin address where to claim the reserve",
		Required: true,
	}
	paymentHashFlag = &cli.StringFlag{
		Name:  paymentHashFlagName,
		Usage: "hex encoded sha256 payment hash, required by the htlc settlement",
	}
	lockFlag = &cli.BoolFlag{
		Name:  lockFlagName,
		Usage: "lock the reserve right after the redemption is accepted",
	}
	intentIdFlag = &cli.StringFlag{
		Name:     intentIdFlagName,
		Usage:    "id of the redemption intent",
		Required: true,
	}
	stateFlag = &cli.StringSliceFlag{
		Name:  stateFlagName,
		Usage: "filter redemptions by state",
	}
	optionalRequesterFlag = &cli.StringFlag{
		Name:  requesterFlagName,
		Usage: "filter redemptions by requester",
	}
	kindFlag = &cli.StringSliceFlag{
		Name:  kindFlagName,
		Usage: "filter supply entries by kind (mint, burn)",
	}
	beforeDateFlag = &cli.StringFlag{
		Name: beforeDateFlagName,
		Usage: fmt.Sprintf(
			"get attestations before the given date, must be in %s format", dateFormat,
		),
	}
	afterDateFlag = &cli.StringFlag{
		Name: afterDateFlagName,
		Usage: fmt.Sprintf(
			"get attestations after the given date, must be in %s format", dateFormat,
		),
	}
)
