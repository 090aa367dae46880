package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"
)

var (
	attestCmd = &cli.Command{
		Name:   "attest",
		Usage:  "Produce a new signed attestation",
		Flags:  []cli.Flag{urlFlag, tokenFlag, outFlag},
		Action: attestAction,
	}
	verifyCmd = &cli.Command{
		Name:   "verify",
		Usage:  "Verify an attestation file offline",
		Flags:  []cli.Flag{fileFlag, pubkeyFlag, maxAgeFlag},
		Action: verifyAction,
	}
	signerCmd = &cli.Command{
		Name:   "signer",
		Usage:  "Get the public key of the attestation signer",
		Flags:  []cli.Flag{urlFlag, tokenFlag},
		Action: signerAction,
	}
	pegCmd = &cli.Command{
		Name:   "peg",
		Usage:  "Get the collateralization of the outstanding supply",
		Flags:  []cli.Flag{urlFlag},
		Action: pegAction,
	}
	reserveCmd = &cli.Command{
		Name:   "reserve",
		Usage:  "Get the locked reserve",
		Flags:  []cli.Flag{urlFlag},
		Action: reserveAction,
	}
	attestationsCmd = &cli.Command{
		Name:   "attestations",
		Usage:  "Get the attestations produced in the given time range",
		Flags:  []cli.Flag{urlFlag, afterDateFlag, beforeDateFlag},
		Action: attestationsAction,
	}
	supplyCmd = &cli.Command{
		Name:   "supply",
		Usage:  "Get the outstanding supply",
		Flags:  []cli.Flag{urlFlag},
		Action: supplyAction,
		Subcommands: cli.Commands{
			{
				Name:   "history",
				Usage:  "Get the entries of the supply ledger",
				Flags:  []cli.Flag{urlFlag, tokenFlag, kindFlag},
				Action: supplyHistoryAction,
			},
		},
	}
	mintCmd = &cli.Command{
		Name:   "mint",
		Usage:  "Mint new tokens against the locked reserve",
		Flags:  []cli.Flag{urlFlag, tokenFlag, amountFlag, reasonFlag, refFlag},
		Action: mintAction,
	}
	redeemCmd = &cli.Command{
		Name:  "redeem",
		Usage: "Request the redemption of tokens for the reserve",
		Flags: []cli.Flag{
			urlFlag, tokenFlag, requesterFlag, amountFlag, addressFlag, paymentHashFlag, lockFlag,
		},
		Action: redeemAction,
	}
	redemptionsCmd = &cli.Command{
		Name:   "redemptions",
		Usage:  "List redemptions",
		Flags:  []cli.Flag{urlFlag, tokenFlag, optionalRequesterFlag, stateFlag},
		Action: redemptionsAction,
		Subcommands: cli.Commands{
			{
				Name:   "get",
				Usage:  "Get a redemption",
				Flags:  []cli.Flag{urlFlag, tokenFlag, intentIdFlag},
				Action: redemptionAction(""),
			},
			{
				Name:   "lock",
				Usage:  "Lock the reserve of an accepted redemption",
				Flags:  []cli.Flag{urlFlag, tokenFlag, intentIdFlag},
				Action: redemptionAction("lock"),
			},
			{
				Name:   "cancel",
				Usage:  "Cancel a redemption that is not locked yet",
				Flags:  []cli.Flag{urlFlag, tokenFlag, intentIdFlag},
				Action: redemptionAction("cancel"),
			},
			{
				Name:   "sync",
				Usage:  "Observe the settlement of a locked redemption",
				Flags:  []cli.Flag{urlFlag, tokenFlag, intentIdFlag},
				Action: redemptionAction("sync"),
			},
		},
	}
)

func attestAction(ctx *cli.Context) error {
	buf, err := postRequest(
		fmt.Sprintf("%s/v1/admin/attestation", baseURL(ctx)), adminToken(ctx), nil,
	)
	if err != nil {
		return err
	}

	out := ctx.String(outFlagName)
	if len(out) <= 0 {
		return printJSON(buf)
	}

	var att json.RawMessage = buf
	indented, err := json.MarshalIndent(att, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, indented, 0o644); err != nil {
		return fmt.Errorf("failed to write attestation: %s", err)
	}
	fmt.Printf("attestation written to %s\n", out)
	return nil
}

func verifyAction(ctx *cli.Context) error {
	att, err := verifyAttestationFile(
		ctx.String(fileFlagName), ctx.String(pubkeyFlagName),
		ctx.Duration(maxAgeFlagName), time.Now(),
	)
	if err != nil {
		return err
	}
	fmt.Printf(
		"attestation %s is valid\nproduced at: %s\nlocked: %s sats\noutstanding: %s tokens\n"+
			"fully reserved: %t\n",
		att.Id, time.Unix(att.ProducedAt, 0).UTC().Format(time.RFC3339),
		att.Snapshot.LockedReserveUnits, att.OutstandingTokenUnits, att.IsFullyReserved,
	)
	return nil
}

func signerAction(ctx *cli.Context) error {
	buf, err := getRequest(fmt.Sprintf("%s/v1/admin/signer", baseURL(ctx)), adminToken(ctx))
	if err != nil {
		return err
	}
	return printJSON(buf)
}

func pegAction(ctx *cli.Context) error {
	buf, err := getRequest(fmt.Sprintf("%s/v1/collateralization", baseURL(ctx)), "")
	if err != nil {
		return err
	}
	return printJSON(buf)
}

func reserveAction(ctx *cli.Context) error {
	buf, err := getRequest(fmt.Sprintf("%s/v1/reserve", baseURL(ctx)), "")
	if err != nil {
		return err
	}
	return printJSON(buf)
}

func attestationsAction(ctx *cli.Context) error {
	after, err := dateToUnix(ctx.String(afterDateFlagName))
	if err != nil {
		return err
	}
	before, err := dateToUnix(ctx.String(beforeDateFlagName))
	if err != nil {
		return err
	}

	query := url.Values{}
	if after > 0 {
		query.Set("after", strconv.FormatInt(after, 10))
	}
	if before > 0 {
		query.Set("before", strconv.FormatInt(before, 10))
	}
	buf, err := getRequest(
		fmt.Sprintf("%s/v1/attestations?%s", baseURL(ctx), query.Encode()), "",
	)
	if err != nil {
		return err
	}
	return printJSON(buf)
}

func supplyAction(ctx *cli.Context) error {
	buf, err := getRequest(fmt.Sprintf("%s/v1/supply", baseURL(ctx)), "")
	if err != nil {
		return err
	}
	return printJSON(buf)
}

func supplyHistoryAction(ctx *cli.Context) error {
	query := url.Values{}
	for _, kind := range ctx.StringSlice(kindFlagName) {
		query.Add("kind", kind)
	}
	buf, err := getRequest(
		fmt.Sprintf("%s/v1/admin/supply/history?%s", baseURL(ctx), query.Encode()),
		adminToken(ctx),
	)
	if err != nil {
		return err
	}
	return printJSON(buf)
}

func mintAction(ctx *cli.Context) error {
	body := map[string]string{
		"amount": ctx.String(amountFlagName),
		"reason": ctx.String(reasonFlagName),
		"ref":    ctx.String(refFlagName),
	}
	buf, err := postRequest(
		fmt.Sprintf("%s/v1/admin/mint", baseURL(ctx)), adminToken(ctx), body,
	)
	if err != nil {
		return err
	}
	return printJSON(buf)
}

func redeemAction(ctx *cli.Context) error {
	body := map[string]string{
		"requester":    ctx.String(requesterFlagName),
		"amount":       ctx.String(amountFlagName),
		"claimAddress": ctx.String(addressFlagName),
		"paymentHash":  ctx.String(paymentHashFlagName),
	}
	buf, err := postRequest(
		fmt.Sprintf("%s/v1/admin/redemptions", baseURL(ctx)), adminToken(ctx), body,
	)
	if err != nil {
		return err
	}
	if !ctx.Bool(lockFlagName) {
		return printJSON(buf)
	}

	intent := struct {
		Id string `json:"id"`
	}{}
	if err := json.Unmarshal(buf, &intent); err != nil {
		return err
	}
	buf, err = postRequest(
		fmt.Sprintf("%s/v1/admin/redemptions/%s/lock", baseURL(ctx), intent.Id),
		adminToken(ctx), nil,
	)
	if err != nil {
		return fmt.Errorf("redemption %s accepted but failed to lock: %s", intent.Id, err)
	}
	return printJSON(buf)
}

func redemptionsAction(ctx *cli.Context) error {
	query := url.Values{}
	if requester := ctx.String(requesterFlagName); len(requester) > 0 {
		query.Set("requester", requester)
	}
	for _, state := range ctx.StringSlice(stateFlagName) {
		query.Add("state", state)
	}
	buf, err := getRequest(
		fmt.Sprintf("%s/v1/admin/redemptions?%s", baseURL(ctx), query.Encode()),
		adminToken(ctx),
	)
	if err != nil {
		return err
	}
	return printJSON(buf)
}

func redemptionAction(op string) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		endpoint := fmt.Sprintf(
			"%s/v1/admin/redemptions/%s", baseURL(ctx), url.PathEscape(ctx.String(intentIdFlagName)),
		)

		var buf []byte
		var err error
		if len(op) <= 0 {
			buf, err = getRequest(endpoint, adminToken(ctx))
		} else {
			buf, err = postRequest(fmt.Sprintf("%s/%s", endpoint, op), adminToken(ctx), nil)
		}
		if err != nil {
			return err
		}
		return printJSON(buf)
	}
}
