package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"stakepool/gateway/middleware"
)

func (c *cli) runDeposit(args []string, stdout, stderr io.Writer) int {
	return c.amountCommand("deposit", "/v1/deposit", false, args, stdout, stderr)
}

func (c *cli) runWithdraw(args []string, stdout, stderr io.Writer) int {
	return c.amountCommand("withdraw", "/v1/withdrawals", false, args, stdout, stderr)
}

func (c *cli) runFund(args []string, stdout, stderr io.Writer) int {
	return c.amountCommand("fund", "/v1/admin/fund", true, args, stdout, stderr)
}

func (c *cli) runComplete(args []string, stdout, stderr io.Writer) int {
	return c.bareCommand("complete", "/v1/withdrawals/complete", args, stdout, stderr)
}

func (c *cli) runCancel(args []string, stdout, stderr io.Writer) int {
	return c.bareCommand("cancel", "/v1/withdrawals/cancel", args, stdout, stderr)
}

func (c *cli) runClaim(args []string, stdout, stderr io.Writer) int {
	return c.bareCommand("claim", "/v1/rewards/claim", args, stdout, stderr)
}

func (c *cli) runSetDuration(args []string, stdout, stderr io.Writer) int {
	return c.secondsCommand("set-duration", "/v1/admin/duration", args, stdout, stderr)
}

func (c *cli) runSetCooldown(args []string, stdout, stderr io.Writer) int {
	return c.secondsCommand("set-cooldown", "/v1/admin/cooldown", args, stdout, stderr)
}

func (c *cli) amountCommand(name, path string, admin bool, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var amount string
	fs.StringVar(&amount, "amount", "", "amount in base units")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	value, err := parseAmount(amount)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	var scopes []string
	if admin {
		scopes = []string{adminScope}
	}
	return c.send(http.MethodPost, path, map[string]string{"amount": value.Dec()}, scopes, stdout, stderr)
}

func (c *cli) bareCommand(name, path string, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	return c.send(http.MethodPost, path, nil, nil, stdout, stderr)
}

func (c *cli) secondsCommand(name, path string, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var seconds uint64
	var duration time.Duration
	fs.Uint64Var(&seconds, "seconds", 0, "value in seconds")
	fs.DurationVar(&duration, "duration", 0, "value as a Go duration (e.g. 72h)")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if duration > 0 {
		if seconds != 0 {
			fmt.Fprintln(stderr, "Error: use either --seconds or --duration")
			return 1
		}
		seconds = uint64(duration / time.Second)
	}
	if seconds == 0 && name == "set-duration" {
		fmt.Fprintln(stderr, "Error: --seconds must be positive")
		return 1
	}
	return c.send(http.MethodPut, path, map[string]uint64{"seconds": seconds}, []string{adminScope}, stdout, stderr)
}

func (c *cli) runSetAsset(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("set-asset", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var asset string
	fs.StringVar(&asset, "asset", "", "hex address of the pool asset")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	addr, err := parseAddress("--asset", asset)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return c.send(http.MethodPut, "/v1/admin/asset", map[string]string{"asset": addr.Hex()}, []string{adminScope}, stdout, stderr)
}

func (c *cli) runAudit(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	return c.send(http.MethodGet, "/v1/admin/audit", nil, []string{adminScope}, stdout, stderr)
}

func (c *cli) runAccount(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("account", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var addr string
	var history bool
	fs.StringVar(&addr, "addr", "", "account address (defaults to the profile account)")
	fs.BoolVar(&history, "events", false, "list the account's events instead")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if strings.TrimSpace(addr) == "" {
		addr = c.profile.Account
	}
	parsed, err := parseAddress("--addr", addr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	path := "/v1/accounts/" + parsed.Hex()
	if history {
		path += "/events"
	}
	return c.query(path, stdout, stderr)
}

func (c *cli) runPool(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("pool", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	return c.query("/v1/pool", stdout, stderr)
}

func (c *cli) runEvents(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("events", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var limit int
	fs.IntVar(&limit, "limit", 50, "maximum number of events")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if limit <= 0 {
		fmt.Fprintln(stderr, "Error: --limit must be positive")
		return 1
	}
	query := url.Values{"limit": []string{fmt.Sprint(limit)}}
	return c.query("/v1/events?"+query.Encode(), stdout, stderr)
}

func (c *cli) runToken(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var admin bool
	var ttl time.Duration
	fs.BoolVar(&admin, "admin", false, "include the owner scope")
	fs.DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to the profile TokenTTL)")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	var scopes []string
	if admin {
		scopes = []string{adminScope}
	}
	token, err := c.mintToken(scopes, ttl)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, token)
	return 0
}

func (c *cli) mintToken(scopes []string, ttl time.Duration) (string, error) {
	account, err := parseAddress("account", c.profile.Account)
	if err != nil {
		return "", fmt.Errorf("%w (set Account in the profile or pass -account)", err)
	}
	key, err := c.secret.Get()
	if err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = c.profile.ttl
	}
	return middleware.IssueToken(middleware.TokenRequest{
		Secret:   key,
		Subject:  account.Hex(),
		Issuer:   c.profile.Issuer,
		Audience: c.profile.Audience,
		Scopes:   scopes,
		TTL:      ttl,
		Now:      tokenNow(),
	})
}

func (c *cli) send(method, path string, body any, scopes []string, stdout, stderr io.Writer) int {
	token, err := c.mintToken(scopes, 0)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	result, err := apiCall(method, c.profile.Endpoint+path, body, token)
	return report(result, err, stdout, stderr)
}

func (c *cli) query(path string, stdout, stderr io.Writer) int {
	result, err := apiCall(http.MethodGet, c.profile.Endpoint+path, nil, "")
	return report(result, err, stdout, stderr)
}

func report(result json.RawMessage, err error, stdout, stderr io.Writer) int {
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) {
			fmt.Fprintf(stderr, "Error: server returned %d: %s\n", apiErr.Status, apiErr.Message)
			return 2
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	writeResult(stdout, result)
	return 0
}

func parseFlags(fs *flag.FlagSet, args []string, stderr io.Writer) bool {
	if err := fs.Parse(args); err != nil {
		return false
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return false
	}
	return true
}

func parseAmount(raw string) (*uint256.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("--amount is required")
	}
	value, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	if value.IsZero() {
		return nil, errors.New("--amount must be positive")
	}
	return value, nil
}

func parseAddress(field, raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return common.Address{}, fmt.Errorf("%s is required", field)
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, raw)
	}
	return common.HexToAddress(raw), nil
}
