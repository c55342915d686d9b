// Package swap - Operations on a Chia-family contract leg.
package swap

import (
	"context"
	"errors"
	"fmt"

	"github.com/klingon-exchange/htlcswap/internal/backend"
	"github.com/klingon-exchange/htlcswap/internal/chain"
	"github.com/klingon-exchange/htlcswap/internal/clvm"
	"github.com/klingon-exchange/htlcswap/internal/config"
	"github.com/klingon-exchange/htlcswap/internal/storage"
	"github.com/klingon-exchange/htlcswap/pkg/helpers"
	"github.com/klingon-exchange/htlcswap/pkg/logging"
)

// chainLeg is one deposit of a trade together with everything derived from
// its terms. record caches the last coin record seen for the contract.
type chainLeg struct {
	name     string
	terms    *storage.TradeCurrency
	currency *storage.Currency
	gw       backend.Gateway
	contract *clvm.Contract
	address  string
	record   *backend.CoinRecord
}

func (l *chainLeg) maxBlockHeight() uint32 { return l.terms.MaxBlockHeight }

// legRunner holds what every leg operation needs.
type legRunner struct {
	gateways   Gateways
	codec      Codec
	timing     config.TimingConfig
	state      *runState
	log        *logging.Logger
	secretHash string
}

// prepareLeg resolves the leg's gateway and derives its contract.
func (r *legRunner) prepareLeg(name string, tc *storage.TradeCurrency) (*chainLeg, error) {
	cur, gw, err := r.gateways.Gateway(tc.AddressPrefix)
	if err != nil {
		return nil, err
	}
	contract, err := r.codec.DeriveContract(clvm.ContractParams{
		SecretHash:     r.secretHash,
		TotalAmount:    tc.TotalAmount,
		Fee:            tc.Fee,
		FromAddress:    tc.FromAddress,
		ToAddress:      tc.ToAddress,
		MaxBlockHeight: tc.MaxBlockHeight,
	})
	if err != nil {
		return nil, fmt.Errorf("%s contract: %w", name, err)
	}
	address, err := chain.EncodePuzzleHash(contract.PuzzleHash, cur.AddressPrefix)
	if err != nil {
		return nil, fmt.Errorf("%s contract address: %w", name, err)
	}
	return &chainLeg{
		name:     name,
		terms:    tc,
		currency: cur,
		gw:       gw,
		contract: contract,
		address:  address,
	}, nil
}

// height blocks until the leg's node answers with a synced height.
func (r *legRunner) height(ctx context.Context, leg *chainLeg) (uint32, error) {
	for {
		h, err := leg.gw.Height(ctx)
		if err == nil {
			return h, nil
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if errors.Is(err, backend.ErrNotSynced) {
			r.log.Debug("node not synced", "leg", leg.name)
		} else {
			r.log.Warn("height query failed", "leg", leg.name, "error", err)
		}
		if err := sleep(ctx, r.timing.SyncRetry); err != nil {
			return 0, err
		}
	}
}

// coinRecord looks up the leg's contract coin from start, retrying until the
// node gives an answer. A nil record means the node knows no such coin.
func (r *legRunner) coinRecord(ctx context.Context, leg *chainLeg, start uint32, includeSpent bool) (*backend.CoinRecord, error) {
	for {
		rec, err := leg.gw.CoinRecord(ctx, leg.contract.PuzzleHash, start, includeSpent)
		if err == nil {
			return rec, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.log.Warn("coin record query failed", "leg", leg.name, "error", err)
		if err := sleep(ctx, r.timing.SyncRetry); err != nil {
			return nil, err
		}
	}
}

// lookup fetches the leg's coin at the current height minus margin and
// caches it when found.
func (r *legRunner) lookup(ctx context.Context, leg *chainLeg, margin uint32, includeSpent bool) (*backend.CoinRecord, error) {
	h, err := r.height(ctx, leg)
	if err != nil {
		return nil, err
	}
	rec, err := r.coinRecord(ctx, leg, HeightLookback(h, margin, leg.maxBlockHeight()), includeSpent)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		leg.record = rec
	}
	return rec, nil
}

// waitForContract waits for the leg's deposit and its confirmations.
// other, when set, is checked while the deposit is missing and ends the wait
// with cancel=true once the paired leg has used up its share of time.
func (r *legRunner) waitForContract(ctx context.Context, leg *chainLeg, issue, grace bool, other Condition) (bool, error) {
	units := leg.currency.UnitsPerCoin
	amount := helpers.FormatUnits(leg.terms.NetAmount(), units, helpers.StatusDecimals)
	fee := helpers.FormatUnits(leg.terms.Fee, units, helpers.StatusDecimals)
	name := leg.currency.Name

	r.log.Info("waiting for contract",
		"leg", leg.name,
		"puzzle_hash", helpers.Hex0x(leg.contract.PuzzleHash[:]),
		"address", leg.address,
		"issue", issue,
	)
	address := leg.address
	if issue {
		r.state.show(fmt.Sprintf("Please send %s %s with a fee of %s %s to the address found below. "+
			"Double-check the address before confirming the transaction - if it's wrong, your coins will be lost.",
			amount, name, fee, name), &address)
	} else {
		r.state.show(fmt.Sprintf("Waiting for the other human to send %s %s with a fee of %s %s to the address found below...",
			amount, name, fee, name), &address)
	}

	if grace {
		if err := sleep(ctx, r.timing.DepositGrace); err != nil {
			return false, err
		}
	}

	found := func(ctx context.Context) (bool, error) {
		rec, err := r.lookup(ctx, leg, FundingLookback, false)
		return rec != nil, err
	}
	cancel := false
	err := PollUntil(ctx, r.timing.DepositPoll, found, other)
	switch {
	case errors.Is(err, ErrGaveUp):
		r.log.Info("paired leg ran out of time before deposit", "leg", leg.name)
		cancel = true
	case err != nil:
		return false, err
	}

	if !cancel && leg.record.Coin.Amount != leg.terms.NetAmount() {
		r.log.Warn("Trickster detected!",
			"leg", leg.name,
			"amount", leg.record.Coin.Amount,
			"expected", leg.terms.NetAmount(),
		)
		tricksters.WithLabelValues(leg.currency.AddressPrefix).Inc()
		cancel = true
	}

	if cancel {
		r.log.Info("should cancel", "leg", leg.name)
		r.state.show("Cancelling trade...", nil)
	} else {
		r.log.Info("contract coin found", "leg", leg.name, "confirmed_block_index", leg.record.ConfirmedBlockIndex)
		r.state.show("Waiting for transaction confirmation...", nil)

		confirmed := uint64(leg.record.ConfirmedBlockIndex)
		required := uint64(leg.terms.MinConfirmationHeight)
		confirmedEnough := func(ctx context.Context) (bool, error) {
			h, err := r.height(ctx, leg)
			if err != nil {
				return false, err
			}
			if confirmed+required <= uint64(h) {
				return true, nil
			}
			delta := int64(h) - int64(confirmed)
			r.state.show(fmt.Sprintf("Waiting for transaction confirmation (%d / %d)", delta, required), nil)
			return false, nil
		}
		if err := PollUntil(ctx, r.timing.ConfirmationPoll, confirmedEnough, nil); err != nil {
			return false, err
		}
		r.state.show("Commencing to next step...", nil)
	}

	if err := sleep(ctx, r.timing.StepSettle); err != nil {
		return false, err
	}
	return cancel, nil
}

// pairedLegWindow returns the early-cancel check used while waiting for
// leg's deposit: other's deposit must not age past its proportional budget.
// A paired deposit that cannot be found at all cancels too.
func (r *legRunner) pairedLegWindow(other, leg *chainLeg) Condition {
	threshold := EarlyCancelThreshold(
		uint64(other.terms.MaxBlockHeight),
		uint64(leg.terms.MinConfirmationHeight),
		uint64(leg.terms.MaxBlockHeight),
	)
	return func(ctx context.Context) (bool, error) {
		if other.record == nil {
			rec, err := r.lookup(ctx, other, FundingLookback, false)
			if err != nil {
				return false, err
			}
			if rec == nil {
				r.log.Warn("paired deposit not found", "leg", other.name)
				return true, nil
			}
		}
		h, err := r.height(ctx, other)
		if err != nil {
			return false, err
		}
		return WindowConsumed(uint64(h), uint64(other.record.ConfirmedBlockIndex), threshold), nil
	}
}

// legExpired reports whether leg's deposit has aged into its cancel window.
// A deposit that cannot be found counts as expired.
func (r *legRunner) legExpired(leg *chainLeg) Condition {
	return func(ctx context.Context) (bool, error) {
		if leg.record == nil {
			rec, err := r.lookup(ctx, leg, FundingLookback, true)
			if err != nil {
				return false, err
			}
			if rec == nil {
				return true, nil
			}
		}
		h, err := r.height(ctx, leg)
		if err != nil {
			return false, err
		}
		return WindowConsumed(uint64(h), uint64(leg.record.ConfirmedBlockIndex), CancelWindow(uint64(leg.terms.MaxBlockHeight))), nil
	}
}

// lookForSolution waits until leg's coin is spent and returns the solution
// it was spent with. It returns nil once either leg runs out of time first.
func (r *legRunner) lookForSolution(ctx context.Context, leg *chainLeg, otherExpired Condition) ([]byte, error) {
	r.log.Info("looking for solution", "leg", leg.name, "puzzle_hash", helpers.Hex0x(leg.contract.PuzzleHash[:]))

	if leg.record == nil {
		r.state.setMessage("Getting contract coin record...")
		if _, err := r.lookup(ctx, leg, FundingLookback, true); err != nil {
			return nil, err
		}
	}
	if leg.record == nil {
		r.state.setMessage("Something really strange happened...")
		r.log.Error("contract coin record not found", "leg", leg.name)
		return nil, nil
	}

	r.state.setMessage("Getting contract solution...")
	spent := func(ctx context.Context) (bool, error) {
		if leg.record.SpentBlockIndex != 0 {
			return true, nil
		}
		if _, err := r.lookup(ctx, leg, FundingLookback, true); err != nil {
			return false, err
		}
		return leg.record.SpentBlockIndex != 0, nil
	}
	timedOut := func(ctx context.Context) (bool, error) {
		if otherExpired != nil {
			expired, err := otherExpired(ctx)
			if err != nil {
				return false, err
			}
			if expired {
				r.log.Info("Other currency time ran out. Exiting...")
				return true, nil
			}
		}
		expired, err := r.legExpired(leg)(ctx)
		if err != nil {
			return false, err
		}
		if expired {
			r.log.Info("Main currency time ran out. Exiting...")
		}
		return expired, nil
	}
	err := PollUntil(ctx, r.timing.SolutionPoll, spent, timedOut)
	if errors.Is(err, ErrGaveUp) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	coinID, err := leg.record.Coin.ID()
	if err != nil {
		return nil, fmt.Errorf("%s coin id: %w", leg.name, err)
	}
	spentAt := leg.record.SpentBlockIndex
	r.log.Info("contract spent", "leg", leg.name, "coin_id", helpers.Hex0x(coinID[:]), "spent_block_index", spentAt)

	var solution []byte
	fetch := func(ctx context.Context) (bool, error) {
		sol, err := leg.gw.CoinSolution(ctx, coinID, spentAt)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			r.log.Warn("solution query failed", "leg", leg.name, "error", err)
		}
		if sol == nil {
			r.state.setMessage("Getting contract solution (again)...")
			return false, nil
		}
		solution = sol
		return true, nil
	}
	if err := PollUntil(ctx, r.timing.SolutionRefetch, fetch, nil); err != nil {
		return nil, err
	}
	r.log.Info("solution found", "leg", leg.name, "solution", helpers.Hex0x(solution))
	return solution, nil
}

// claimContract spends leg's coin with solution and keeps pushing until the
// node takes it.
func (r *legRunner) claimContract(ctx context.Context, leg *chainLeg, solution []byte, cancel bool) error {
	if cancel {
		r.state.setMessage("Preparing to cancel trade :(")
	}
	r.log.Info("claiming contract", "leg", leg.name, "cancel", cancel, "puzzle_hash", helpers.Hex0x(leg.contract.PuzzleHash[:]))

	if leg.record == nil {
		r.state.setMessage("Getting contract coin record...")
	}
	if _, err := r.lookup(ctx, leg, ClaimLookback, true); err != nil {
		return err
	}
	if leg.record == nil || leg.record.Spent || leg.record.SpentBlockIndex != 0 {
		r.log.Info("contract already claimed", "leg", leg.name)
		r.state.setMessage("Contract already claimed")
		return nil
	}

	r.state.setMessage("Waiting for node to be synced...")
	if _, err := r.height(ctx, leg); err != nil {
		return err
	}

	r.state.setMessage("Pushing transaction...")
	push := func() (backend.PushStatus, error) {
		status, err := leg.gw.PushTransaction(ctx, leg.contract.Program, solution, leg.record.Coin)
		if err != nil {
			if ctx.Err() != nil {
				return status, ctx.Err()
			}
			r.log.Warn("push failed", "leg", leg.name, "error", err)
		}
		pushes.WithLabelValues(leg.currency.AddressPrefix, status.String()).Inc()
		r.log.Info("push result", "leg", leg.name, "status", status)
		return status, nil
	}

	status, err := push()
	if err != nil {
		return err
	}
	for status == backend.PushRejected {
		r.state.setMessage("Pushing transaction again...")
		if err := sleep(ctx, r.timing.PushRetry); err != nil {
			return err
		}
		if status, err = push(); err != nil {
			return err
		}
	}
	for status == backend.PushPending {
		r.state.setMessage("The transaction was marked as PENDING - I'll push it every 30 seconds just to be sure")
		if err := sleep(ctx, r.timing.PendingResubmit); err != nil {
			return err
		}
		if status, err = push(); err != nil {
			return err
		}
	}
	r.state.setMessage("Done! Check your wallet :)")
	return nil
}

// cancelLeg returns leg's deposit to its sender with a fresh cancel token.
func (r *legRunner) cancelLeg(ctx context.Context, leg *chainLeg) error {
	token, err := NewCancelToken()
	if err != nil {
		return err
	}
	r.log.Info("cancelling leg", "leg", leg.name)
	return r.claimContract(ctx, leg, r.codec.ClaimSolution(token), true)
}

// shouldCancel reports whether leg has aged into its cancel window. A coin
// that cannot be found means it was already claimed.
func (r *legRunner) shouldCancel(ctx context.Context, leg *chainLeg) (bool, error) {
	r.log.Info("should cancel trade?", "leg", leg.name)
	if leg.record == nil {
		r.state.setMessage("Getting contract coin record...")
		rec, err := r.lookup(ctx, leg, ClaimLookback, true)
		if err != nil {
			return false, err
		}
		if rec == nil {
			r.state.setMessage("Contract already claimed")
			return false, nil
		}
	}

	r.state.setMessage("Waiting for node to be synced...")
	h, err := r.height(ctx, leg)
	if err != nil {
		return false, err
	}
	r.state.setMessage("Verifying height...")
	cancel := WindowConsumed(uint64(h), uint64(leg.record.ConfirmedBlockIndex), CancelWindow(uint64(leg.terms.MaxBlockHeight)))
	r.log.Info("height verified", "leg", leg.name, "height", h, "confirmed_block_index", leg.record.ConfirmedBlockIndex, "cancel", cancel)
	return cancel, nil
}

// depositMismatch re-reads leg's deposit after a restart. A missing coin or
// a wrong amount both mean the trade must be cancelled.
func (r *legRunner) depositMismatch(ctx context.Context, leg *chainLeg) (bool, error) {
	rec, err := r.lookup(ctx, leg, ClaimLookback, true)
	if err != nil {
		return false, err
	}
	if rec == nil {
		r.log.Info("deposit not found on resume", "leg", leg.name)
		return true, nil
	}
	if rec.Coin.Amount != leg.terms.NetAmount() {
		r.log.Warn("Trickster detected!", "leg", leg.name, "amount", rec.Coin.Amount, "expected", leg.terms.NetAmount())
		tricksters.WithLabelValues(leg.currency.AddressPrefix).Inc()
		return true, nil
	}
	return false, nil
}
