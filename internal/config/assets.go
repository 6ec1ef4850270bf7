package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/leafsii/dsc-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

// AssetEntry is one admitted collateral asset in the assets file.
type AssetEntry struct {
	domain.Asset
	// InitialPrice seeds the price feed in USD, e.g. "2000.50". Required for the
	// static provider, used as the base price by the mock provider.
	InitialPrice string `json:"initial_price,omitempty"`
}

type AssetsFile struct {
	Assets []AssetEntry `json:"assets"`
}

// DefaultAssets is the table written by cmd/initializer.
func DefaultAssets() []AssetEntry {
	return []AssetEntry{
		{Asset: domain.Asset{ID: "WETH", Symbol: "WETH", Decimals: 18, Feed: "ETH/USD"}, InitialPrice: "2000"},
		{Asset: domain.Asset{ID: "WBTC", Symbol: "WBTC", Decimals: 8, Feed: "BTC/USD"}, InitialPrice: "60000"},
	}
}

// Price parses InitialPrice. ok is false when no price is set.
func (a AssetEntry) Price() (price decimal.Decimal, ok bool, err error) {
	if strings.TrimSpace(a.InitialPrice) == "" {
		return decimal.Zero, false, nil
	}
	price, err = decimal.NewFromString(strings.TrimSpace(a.InitialPrice))
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("asset %s: invalid initial_price %q: %w", a.ID, a.InitialPrice, err)
	}
	return price, true, nil
}

func (a AssetEntry) validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("asset with empty id")
	}
	if strings.TrimSpace(a.Feed) == "" {
		return fmt.Errorf("asset %s has no feed", a.ID)
	}
	price, ok, err := a.Price()
	if err != nil {
		return err
	}
	if ok && !price.IsPositive() {
		return fmt.Errorf("asset %s: initial_price must be positive", a.ID)
	}
	return nil
}

// DomainAssets returns the registry view of the entries.
func DomainAssets(entries []AssetEntry) []domain.Asset {
	out := make([]domain.Asset, len(entries))
	for i, e := range entries {
		out[i] = e.Asset
	}
	return out
}

// ReadAssetsFile reads JSON at path.
// Returns os.ErrNotExist if the file doesn't exist.
func ReadAssetsFile(path string) (AssetsFile, error) {
	var file AssetsFile

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return file, err
		}
		return file, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return file, fmt.Errorf("decode: empty assets file")
		}
		return file, fmt.Errorf("decode: %w", err)
	}
	return file, nil
}

// WriteAssetsFile writes file as pretty JSON to path atomically, preserving
// existing file permissions (0644 for a new file).
func WriteAssetsFile(path string, file AssetsFile) error {
	mode := fs.FileMode(0o644)
	if st, err := os.Stat(path); err == nil {
		mode = st.Mode()
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat: %w", err)
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	data = append(data, '\n')

	if err := writeFileAtomic(path, data, mode); err != nil {
		return fmt.Errorf("atomic write: %w", err)
	}
	return nil
}

func writeFileAtomic(path string, content []byte, mode fs.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		_ = os.Remove(tmpName)
	}

	if err := tmp.Chmod(mode); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp: %w", err)
	}
	if _, err := tmp.Write(content); err != nil {
		cleanup()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("fsync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
