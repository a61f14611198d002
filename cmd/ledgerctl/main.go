package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/lockledger/lockledger/internal/client"
)

const usage = `usage: ledgerctl [flags] <command> [args]

commands:
  locks <holder>
  lock <holder> <amount> <release-unix>
  release <holder> [index]
  transfer <to> <amount>
  mint <to> <amount>
  snapshot
  snapshot-balance <id> <holder>
`

func main() {
	url := flag.String("url", "http://localhost:8080", "Ledger URL")
	caller := flag.String("caller", "", "Caller address")
	timeout := flag.Duration("timeout", 10*time.Second, "Request timeout")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if envURL := os.Getenv("LEDGER_URL"); envURL != "" && *url == "http://localhost:8080" {
		*url = envURL
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	c := client.New(*url, client.NewHTTPClient(*timeout))
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	out, err := run(ctx, c, common.HexToAddress(*caller), flag.Arg(0), flag.Args()[1:])
	if err != nil {
		log.Fatalf("%s: %v", flag.Arg(0), err)
	}
	json.NewEncoder(os.Stdout).Encode(out)
}

func run(ctx context.Context, c *client.Client, caller common.Address, cmd string, args []string) (interface{}, error) {
	need := func(n int) error {
		if len(args) < n {
			return fmt.Errorf("expected %d arguments, got %d", n, len(args))
		}
		return nil
	}
	addr := func(i int) (common.Address, error) {
		if !common.IsHexAddress(args[i]) {
			return common.Address{}, fmt.Errorf("%q is not an address", args[i])
		}
		return common.HexToAddress(args[i]), nil
	}
	ok := map[string]bool{"success": true}

	switch cmd {
	case "locks":
		if err := need(1); err != nil {
			return nil, err
		}
		h, err := addr(0)
		if err != nil {
			return nil, err
		}
		return c.Locks(ctx, h)

	case "lock":
		if err := need(3); err != nil {
			return nil, err
		}
		h, err := addr(0)
		if err != nil {
			return nil, err
		}
		amount, err := uint256.FromDecimal(args[1])
		if err != nil {
			return nil, err
		}
		release, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			return nil, err
		}
		return ok, c.CreateLock(ctx, caller, h, amount, release)

	case "release":
		if err := need(1); err != nil {
			return nil, err
		}
		h, err := addr(0)
		if err != nil {
			return nil, err
		}
		if len(args) > 1 {
			idx, err := strconv.Atoi(args[1])
			if err != nil {
				return nil, err
			}
			return ok, c.ReleaseOne(ctx, caller, h, idx)
		}
		n, err := c.ReleaseAllExpired(ctx, caller, h)
		return map[string]int{"released": n}, err

	case "transfer", "mint":
		if err := need(2); err != nil {
			return nil, err
		}
		to, err := addr(0)
		if err != nil {
			return nil, err
		}
		amount, err := uint256.FromDecimal(args[1])
		if err != nil {
			return nil, err
		}
		if cmd == "mint" {
			return ok, c.Mint(ctx, caller, to, amount)
		}
		return ok, c.Transfer(ctx, caller, to, amount)

	case "snapshot":
		id, err := c.CreateSnapshot(ctx, caller)
		return map[string]uint64{"id": id}, err

	case "snapshot-balance":
		if err := need(2); err != nil {
			return nil, err
		}
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return nil, err
		}
		h, err := addr(1)
		if err != nil {
			return nil, err
		}
		bal, err := c.SnapshotBalance(ctx, id, h)
		if err != nil {
			return nil, err
		}
		return map[string]string{"balance": bal.Dec()}, nil
	}
	return nil, fmt.Errorf("unknown command %q", cmd)
}
