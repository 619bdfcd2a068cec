package custody

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func newTestVault(t *testing.T, funded int64) *Vault {
	t.Helper()
	v := NewVault(zerolog.Nop())
	if funded > 0 {
		if err := v.TransferIn(context.Background(), "SOL", funded); err != nil {
			t.Fatalf("fund vault: %v", err)
		}
	}
	return v
}

func TestTransferInOut(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t, 1_000)

	if err := v.TransferOut(ctx, "SOL", 400); err != nil {
		t.Fatalf("TransferOut: %v", err)
	}
	if got := v.Balance("SOL"); got != 600 {
		t.Errorf("Balance = %d, want 600", got)
	}

	if err := v.TransferOut(ctx, "SOL", 601); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("overdraw err = %v, want ErrInsufficientBalance", err)
	}
	if err := v.TransferOut(ctx, "ETH", 1); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("unknown asset err = %v, want ErrInsufficientBalance", err)
	}

	for _, amount := range []int64{0, -5} {
		if err := v.TransferIn(ctx, "SOL", amount); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("TransferIn(%d) err = %v, want ErrInvalidAmount", amount, err)
		}
		if err := v.TransferOut(ctx, "SOL", amount); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("TransferOut(%d) err = %v, want ErrInvalidAmount", amount, err)
		}
	}
}

func TestTransferHonorsContext(t *testing.T) {
	v := newTestVault(t, 1_000)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := v.TransferOut(ctx, "SOL", 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if got := v.Balance("SOL"); got != 1_000 {
		t.Errorf("Balance = %d, cancelled transfer must not move funds", got)
	}
}

func TestLockedBalanceUnavailable(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t, 1_000)

	if err := v.LockForFinancing("SOL", 800); err != nil {
		t.Fatalf("LockForFinancing: %v", err)
	}
	if err := v.LockForFinancing("SOL", 300); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("over-lock err = %v, want ErrInsufficientBalance", err)
	}

	// Only the unlocked remainder can leave.
	if err := v.TransferOut(ctx, "SOL", 201); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("locked funds left the vault: %v", err)
	}
	if err := v.TransferOut(ctx, "SOL", 200); err != nil {
		t.Fatalf("TransferOut within free balance: %v", err)
	}

	v.ReleaseFinancing("SOL", 800)
	if got := v.Locked("SOL"); got != 0 {
		t.Errorf("Locked = %d, want 0", got)
	}

	// Release clamps to what is actually locked.
	v.ReleaseFinancing("SOL", 500)
	if got := v.Locked("SOL"); got != 0 {
		t.Errorf("Locked after over-release = %d, want 0", got)
	}
}

func TestWriteOffBadDebt(t *testing.T) {
	v := newTestVault(t, 1_000)
	if err := v.LockForFinancing("SOL", 600); err != nil {
		t.Fatalf("LockForFinancing: %v", err)
	}

	v.WriteOffBadDebt("SOL", 600, 250)

	if got := v.Locked("SOL"); got != 0 {
		t.Errorf("Locked = %d, want 0 after write-off", got)
	}
	if got := v.Balance("SOL"); got != 750 {
		t.Errorf("Balance = %d, want 750", got)
	}

	// A shortfall larger than the balance drains it to zero rather
	// than going negative.
	v.WriteOffBadDebt("SOL", 0, 10_000)
	if got := v.Balance("SOL"); got != 0 {
		t.Errorf("Balance = %d, want 0", got)
	}
}

func TestPauseBlocksTransfers(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t, 1_000)

	v.Pause()
	if err := v.TransferOut(ctx, "SOL", 1); !errors.Is(err, ErrVaultPaused) {
		t.Fatalf("TransferOut err = %v, want ErrVaultPaused", err)
	}
	if err := v.TransferIn(ctx, "SOL", 1); !errors.Is(err, ErrVaultPaused) {
		t.Fatalf("TransferIn err = %v, want ErrVaultPaused", err)
	}

	v.Unpause()
	if err := v.TransferOut(ctx, "SOL", 1); err != nil {
		t.Fatalf("TransferOut after unpause: %v", err)
	}
}
