// Package chain wraps the Solana JSON-RPC client behind the narrow contract
// the pipeline needs: submit a signed transfer, confirm a signature, read a
// balance. Nothing outside this package imports the RPC client.
package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/virelabs/launchpad/internal/domain"
)

// Client talks to a Solana RPC node. All methods honour the caller's context
// deadline; every network call made here must run under a timeout.
type Client struct {
	rpc         *rpc.Client
	confirmPoll time.Duration
	commitment  rpc.CommitmentType
}

// New creates a Client for the given RPC endpoint.
func New(endpoint string, confirmPoll time.Duration) *Client {
	if confirmPoll <= 0 {
		confirmPoll = 500 * time.Millisecond
	}
	return &Client{
		rpc:         rpc.New(endpoint),
		confirmPoll: confirmPoll,
		commitment:  rpc.CommitmentConfirmed,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// SubmitTransfer
// ──────────────────────────────────────────────────────────────────────────────

// SubmitTransfer builds, signs, and broadcasts a system transfer of lamports
// from source to dest. The returned signature identifies the in-flight
// transaction; broadcast is irrevocable, so callers must treat any error
// after this point as "outcome unknown" and reconcile via Confirm.
func (c *Client) SubmitTransfer(ctx context.Context, source solana.PrivateKey, dest solana.PublicKey, lamports uint64) (solana.Signature, error) {
	recent, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("chain.SubmitTransfer blockhash: %w: %v", domain.ErrNetwork, err)
	}

	ix := system.NewTransferInstruction(lamports, source.PublicKey(), dest).Build()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{ix},
		recent.Value.Blockhash,
		solana.TransactionPayer(source.PublicKey()),
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("chain.SubmitTransfer build: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(source.PublicKey()) {
			return &source
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("chain.SubmitTransfer sign: %w", err)
	}

	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("chain.SubmitTransfer send: %w: %v", domain.ErrNetwork, err)
	}
	return sig, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Confirm
// ──────────────────────────────────────────────────────────────────────────────

// Confirm polls the signature status until the transfer reaches confirmed or
// finalized commitment. Returns ErrConfirmTimeout when the context deadline
// expires first, and a wrapped error when the cluster reports the
// transaction itself failed.
func (c *Client) Confirm(ctx context.Context, sig solana.Signature) error {
	ticker := time.NewTicker(c.confirmPoll)
	defer ticker.Stop()

	for {
		res, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
		if err == nil && len(res.Value) > 0 && res.Value[0] != nil {
			status := res.Value[0]
			if status.Err != nil {
				return fmt.Errorf("chain.Confirm: transaction failed on-chain: %v", status.Err)
			}
			switch status.ConfirmationStatus {
			case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
				return nil
			}
		}
		// Transient RPC errors fall through to the next poll; the context
		// deadline bounds the total wait.

		select {
		case <-ctx.Done():
			return fmt.Errorf("chain.Confirm %s: %w", sig, domain.ErrConfirmTimeout)
		case <-ticker.C:
		}
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// GetBalance
// ──────────────────────────────────────────────────────────────────────────────

// GetBalance reads the lamport balance of an account at confirmed commitment.
func (c *Client) GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	res, err := c.rpc.GetBalance(ctx, account, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("chain.GetBalance %s: %w: %v", account, domain.ErrNetwork, err)
	}
	return res.Value, nil
}
