// Command ledgerseed creates a ledger store pre-funded with deterministic
// test holders, for local runs and load tests.
package main

import (
	"bufio"
	"crypto/sha256"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/lockledger/lockledger/config"
	"github.com/lockledger/lockledger/internal/bank"
	"github.com/lockledger/lockledger/internal/ledger"
	"github.com/lockledger/lockledger/internal/store"
)

func main() {
	configPath := flag.String("config", "config/config.json", "Path to config.json")
	holders := flag.Int("holders", 100, "Number of test holders")
	amount := flag.String("amount", "1000000000000000000", "Balance minted to every holder")
	out := flag.String("addresses", "", "Address list file (default addresses.txt next to storage_dir)")
	fresh := flag.Bool("fresh", false, "Regenerate the address list even if the file exists")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.StorageDir == "" {
		log.Fatal("storage_dir must be set to seed a persistent store")
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(cfg.StorageDir), "addresses.txt")
	}
	bal, err := uint256.FromDecimal(*amount)
	if err != nil {
		log.Fatalf("Invalid amount %q: %v", *amount, err)
	}

	addrs, reused, err := LoadOrGenerate(*out, *holders, *fresh)
	if err != nil {
		log.Fatalf("Failed to prepare addresses: %v", err)
	}
	if reused {
		log.Printf("Reusing %d holders from %s", len(addrs), *out)
	}
	if err := Seed(cfg.StorageDir, cfg.CacheMB, cfg.AdministratorAddress(), addrs, bal); err != nil {
		log.Fatalf("Failed to seed store: %v", err)
	}
	log.Printf("Seeded %d holders with %s each into %s", len(addrs), bal.Dec(), cfg.StorageDir)
}

// GenerateAddresses derives n holder addresses from fixed seeds, so repeated
// runs produce the same set
func GenerateAddresses(n int) []common.Address {
	addrs := make([]common.Address, n)
	for i := range addrs {
		hash := sha256.Sum256([]byte(fmt.Sprintf("ledger-test-holder-%d", i)))
		addrs[i] = common.BytesToAddress(hash[:])
	}
	return addrs
}

// WriteAddresses writes one hex address per line
func WriteAddresses(path string, addrs []common.Address) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	for _, a := range addrs {
		if _, err := fmt.Fprintln(w, a.Hex()); err != nil {
			return err
		}
	}
	return w.Flush()
}

// ReadAddresses parses a file written by WriteAddresses, skipping blank lines
func ReadAddresses(path string) ([]common.Address, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var addrs []common.Address
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !common.IsHexAddress(line) {
			return nil, fmt.Errorf("bad address line %q", line)
		}
		addrs = append(addrs, common.HexToAddress(line))
	}
	return addrs, nil
}

// LoadOrGenerate returns the addresses stored at path. If the file does not
// exist, or fresh is set, it generates n addresses and writes them to path.
// The flag reports whether the file was reused.
func LoadOrGenerate(path string, n int, fresh bool) ([]common.Address, bool, error) {
	if !fresh {
		addrs, err := ReadAddresses(path)
		if err == nil {
			return addrs, true, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, false, fmt.Errorf("read %s: %w", path, err)
		}
	}
	addrs := GenerateAddresses(n)
	if err := WriteAddresses(path, addrs); err != nil {
		return nil, false, fmt.Errorf("write %s: %w", path, err)
	}
	return addrs, false, nil
}

// Seed mints amount to every address through the ledger, so balances,
// supply and the holder registry are all written the normal way
func Seed(dir string, cacheMB int, admin common.Address, addrs []common.Address, amount *uint256.Int) error {
	st, err := store.Open(dir, cacheMB)
	if err != nil {
		return err
	}
	defer st.Close()

	b, err := bank.Load(st)
	if err != nil {
		return err
	}
	l, err := ledger.New(st, b, nil, ledger.Config{Administrator: admin})
	if err != nil {
		return err
	}
	for _, a := range addrs {
		if err := l.Mint(l.Administrator(), a, amount); err != nil {
			return fmt.Errorf("mint to %s: %w", a.Hex(), err)
		}
	}
	return nil
}
