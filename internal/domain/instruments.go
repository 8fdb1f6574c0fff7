package domain

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// UnderlyingInfo is the per-underlying slice of instrument metadata.
// Expiries and strikes arrive sorted.
type UnderlyingInfo struct {
	LotSize     int        `yaml:"lot_size"`
	TickSize    float64    `yaml:"tick_size"`
	Expiries    []string   `yaml:"expiries"` // YYYY-MM-DD, ascending
	Strikes     []float64  `yaml:"strikes"`
	Instruments []Contract `yaml:"instruments"`
}

// InstrumentData is the full instrument metadata map keyed by underlying
// symbol. It is populated once per session and read-only thereafter.
type InstrumentData map[string]UnderlyingInfo

// LoadInstrumentData reads an instrument metadata dump from a YAML file,
// keyed by underlying symbol. Producing the dump is the job of an external
// exporter; this side only consumes it.
func LoadInstrumentData(path string) (InstrumentData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var data InstrumentData
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parsing instrument data %s: %w", path, err)
	}
	return data, nil
}

// ContractArena owns all contracts for a session, indexed by instrument
// token and by trading symbol. Positions hold tokens, not contract
// references; the arena is the single place a token resolves to a contract.
type ContractArena struct {
	byToken  map[int64]Contract
	bySymbol map[string]int64
}

// NewContractArena builds an arena from instrument metadata.
func NewContractArena(data InstrumentData) *ContractArena {
	a := &ContractArena{
		byToken:  make(map[int64]Contract),
		bySymbol: make(map[string]int64),
	}
	for _, info := range data {
		for _, c := range info.Instruments {
			a.Add(c)
		}
	}
	return a
}

// Add registers a contract. Later registrations for the same token win.
func (a *ContractArena) Add(c Contract) {
	a.byToken[c.InstrumentToken] = c
	a.bySymbol[c.TradingSymbol] = c.InstrumentToken
}

// ByToken resolves an instrument token to its contract.
func (a *ContractArena) ByToken(token int64) (Contract, bool) {
	c, ok := a.byToken[token]
	return c, ok
}

// ByTradingSymbol resolves a trading symbol to its contract.
func (a *ContractArena) ByTradingSymbol(symbol string) (Contract, bool) {
	token, ok := a.bySymbol[symbol]
	if !ok {
		return Contract{}, false
	}
	return a.byToken[token], true
}

// Len reports the number of registered contracts.
func (a *ContractArena) Len() int {
	return len(a.byToken)
}
