// Package custody isolates token movement behind a synchronous
// capability interface. The core never touches balances directly; a
// liquidation or settlement invokes transfers under its own lock and
// treats any failure as fatal to the whole call.
package custody

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// Custody is the token-movement capability consumed by the liquidation
// coordinator and the settlement adapter.
type Custody interface {
	TransferIn(ctx context.Context, asset string, amount int64) error
	TransferOut(ctx context.Context, asset string, amount int64) error
}

var (
	ErrInsufficientBalance = errors.New("insufficient vault balance")
	ErrInvalidAmount       = errors.New("transfer amount must be positive")
	ErrVaultPaused         = errors.New("vault is paused")
)

// Vault is the in-process Custody implementation. Balances are isolated
// per asset; locked amounts back active financings and are never
// available for outbound transfers.
type Vault struct {
	mu       sync.Mutex
	balances map[string]int64
	locked   map[string]int64
	paused   bool
	log      zerolog.Logger
}

func NewVault(log zerolog.Logger) *Vault {
	return &Vault{
		balances: make(map[string]int64),
		locked:   make(map[string]int64),
		log:      log,
	}
}

func (v *Vault) TransferIn(ctx context.Context, asset string, amount int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.paused {
		return ErrVaultPaused
	}
	v.balances[asset] += amount
	return nil
}

func (v *Vault) TransferOut(ctx context.Context, asset string, amount int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.paused {
		return ErrVaultPaused
	}
	available := v.balances[asset] - v.locked[asset]
	if amount > available {
		return ErrInsufficientBalance
	}
	v.balances[asset] -= amount
	return nil
}

// LockForFinancing reserves balance backing an active financing.
func (v *Vault) LockForFinancing(asset string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.balances[asset]-v.locked[asset] < amount {
		return ErrInsufficientBalance
	}
	v.locked[asset] += amount
	return nil
}

// ReleaseFinancing unlocks reserved balance. The unlock amount is
// clamped to what is actually locked; positions liquidated after vault
// state changes may request more than remains.
func (v *Vault) ReleaseFinancing(asset string, amount int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if amount > v.locked[asset] {
		amount = v.locked[asset]
	}
	v.locked[asset] -= amount
}

// WriteOffBadDebt absorbs a shortfall from an insolvent position. The
// loss comes straight out of the vault balance; distribution to backers
// is an accounting consequence, not a transfer.
func (v *Vault) WriteOffBadDebt(asset string, financingAmount, badDebt int64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	unlock := financingAmount
	if unlock > v.locked[asset] {
		unlock = v.locked[asset]
	}
	v.locked[asset] -= unlock

	if badDebt > v.balances[asset] {
		badDebt = v.balances[asset]
	}
	v.balances[asset] -= badDebt

	v.log.Warn().
		Str("asset", asset).
		Int64("bad_debt", badDebt).
		Int64("balance", v.balances[asset]).
		Msg("bad debt written off")
}

// Pause stops all transfers. Admin circuit breaker.
func (v *Vault) Pause() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.paused = true
}

func (v *Vault) Unpause() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.paused = false
}

// Balance returns the total held for an asset.
func (v *Vault) Balance(asset string) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balances[asset]
}

// Locked returns the amount reserved for active financings.
func (v *Vault) Locked(asset string) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.locked[asset]
}
