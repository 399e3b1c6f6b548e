package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"stakepool/cmd/internal/secret"
)

const adminScope = "stakepool:admin"

var (
	apiCall  = callAPI
	tokenNow = time.Now
)

type cli struct {
	profile profile
	secret  *secret.Source
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("stakepool-cli", flag.ContinueOnError)
	global.SetOutput(stderr)
	profilePath := global.String("profile", defaultProfilePath(), "path to the TOML connection profile")
	endpoint := global.String("endpoint", "", "override the profile endpoint")
	account := global.String("account", "", "override the profile account address")
	global.Usage = func() { fmt.Fprintln(stderr, usage()) }
	if err := global.Parse(args); err != nil {
		return 1
	}
	rest := global.Args()
	if len(rest) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}

	p, err := loadProfile(*profilePath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if v := strings.TrimSpace(*endpoint); v != "" {
		p.Endpoint = strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(*account); v != "" {
		p.Account = v
	}
	c := &cli{profile: p, secret: secret.NewSource(p.SecretEnv, "stakepool signing secret")}

	command, cmdArgs := rest[0], rest[1:]
	switch command {
	case "deposit":
		return c.runDeposit(cmdArgs, stdout, stderr)
	case "withdraw":
		return c.runWithdraw(cmdArgs, stdout, stderr)
	case "complete":
		return c.runComplete(cmdArgs, stdout, stderr)
	case "cancel":
		return c.runCancel(cmdArgs, stdout, stderr)
	case "claim":
		return c.runClaim(cmdArgs, stdout, stderr)
	case "account":
		return c.runAccount(cmdArgs, stdout, stderr)
	case "pool":
		return c.runPool(cmdArgs, stdout, stderr)
	case "events":
		return c.runEvents(cmdArgs, stdout, stderr)
	case "fund":
		return c.runFund(cmdArgs, stdout, stderr)
	case "set-duration":
		return c.runSetDuration(cmdArgs, stdout, stderr)
	case "set-cooldown":
		return c.runSetCooldown(cmdArgs, stdout, stderr)
	case "set-asset":
		return c.runSetAsset(cmdArgs, stdout, stderr)
	case "audit":
		return c.runAudit(cmdArgs, stdout, stderr)
	case "token":
		return c.runToken(cmdArgs, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", command)
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func usage() string {
	return strings.Join([]string{
		"Usage: stakepool-cli [-profile path] [-endpoint url] [-account addr] <command> [flags]",
		"",
		"Staking:",
		"  deposit -amount N          stake N units of the pool asset",
		"  withdraw -amount N         request a withdrawal and start the cooldown",
		"  complete                   complete a matured withdrawal",
		"  cancel                     cancel the pending withdrawal",
		"  claim                      claim accrued rewards",
		"",
		"Queries:",
		"  account [-addr A]          show an account",
		"  pool                       show the pool state",
		"  events [-limit N]          list recent events",
		"",
		"Owner:",
		"  fund -amount N             fund a reward period",
		"  set-duration -seconds S    change the rewards duration",
		"  set-cooldown -seconds S    change the withdrawal cooldown",
		"  set-asset -asset A         bind the pool asset",
		"  audit                      recompute the staked total",
		"",
		"  token [-admin] [-ttl D]    print a bearer token for the profile account",
	}, "\n")
}
