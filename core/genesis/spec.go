package genesis

import (
	"bytes"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"viewledger/crypto"
)

// Spec describes the initial ledger state: the platform owner and the native
// balances credited before the first transaction.
type Spec struct {
	GenesisTime string            `yaml:"genesisTime"`
	Owner       string            `yaml:"owner"`
	Alloc       map[string]string `yaml:"alloc"`

	genesisTimestamp time.Time
	owner            [20]byte
	alloc            []Allocation
}

// Allocation is a parsed genesis balance.
type Allocation struct {
	Address [20]byte
	Amount  *big.Int
}

// LoadSpec reads and validates a YAML genesis file.
func LoadSpec(path string) (*Spec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	spec, err := ParseSpec(raw)
	if err != nil {
		return nil, fmt.Errorf("genesis spec %q: %w", path, err)
	}
	return spec, nil
}

// ParseSpec decodes and validates genesis YAML. Unknown fields are rejected.
func ParseSpec(raw []byte) (*Spec, error) {
	var spec Spec
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("invalid: %w", err)
	}
	return &spec, nil
}

// GenesisTimestamp returns the parsed genesis time.
func (s *Spec) GenesisTimestamp() time.Time { return s.genesisTimestamp }

// OwnerAddress returns the parsed owner identity.
func (s *Spec) OwnerAddress() [20]byte { return s.owner }

// Allocations returns the parsed balances sorted by address.
func (s *Spec) Allocations() []Allocation {
	out := make([]Allocation, len(s.alloc))
	for i, a := range s.alloc {
		out[i] = Allocation{Address: a.Address, Amount: new(big.Int).Set(a.Amount)}
	}
	return out
}

func (s *Spec) validate() error {
	ts, err := parseGenesisTime(s.GenesisTime)
	if err != nil {
		return err
	}
	s.genesisTimestamp = ts

	if strings.TrimSpace(s.Owner) == "" {
		return fmt.Errorf("owner must be provided")
	}
	owner, err := crypto.ParseIdentity(s.Owner)
	if err != nil {
		return fmt.Errorf("owner: %w", err)
	}
	s.owner = owner

	s.alloc = s.alloc[:0]
	for addr, value := range s.Alloc {
		parsed, err := crypto.ParseIdentity(addr)
		if err != nil {
			return fmt.Errorf("alloc %q: %w", addr, err)
		}
		amount, err := parseAmountString(value)
		if err != nil {
			return fmt.Errorf("alloc %q: %w", addr, err)
		}
		if amount.Sign() == 0 {
			continue
		}
		s.alloc = append(s.alloc, Allocation{Address: parsed, Amount: amount})
	}
	sort.Slice(s.alloc, func(i, j int) bool {
		return bytes.Compare(s.alloc[i].Address[:], s.alloc[j].Address[:]) < 0
	})
	return nil
}

func parseAmountString(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	return amount.ToBig(), nil
}

func parseGenesisTime(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, fmt.Errorf("genesisTime must be provided")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("invalid genesisTime %q", value)
}
