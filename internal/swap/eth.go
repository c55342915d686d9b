// Package swap - Orchestrator for swaps between an EVM chain and a
// Chia-family chain. The EVM leg is driven through the user's wallet.
package swap

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/klingon-exchange/htlcswap/internal/evm"
	"github.com/klingon-exchange/htlcswap/internal/storage"
)

// ethTradeRun drives one EVM-paired trade. Leg A is the buyer's EVM swap,
// leg B the seller's Chia-family deposit.
type ethTradeRun struct {
	*legRunner
	store    Store
	tradeID  string
	settings EthSettings

	params  *evm.SwapParams
	watcher ConfirmationSource
}

func (e *ethTradeRun) responses() *Responses {
	return e.state.responses
}

func (e *ethTradeRun) load(ctx context.Context) (*storage.EthTrade, error) {
	for {
		trade, err := e.store.GetEthTrade(e.tradeID)
		if err == nil {
			return trade, nil
		}
		if errors.Is(err, storage.ErrEthTradeNotFound) || errors.Is(err, storage.ErrTradeCurrencyNotFound) {
			return nil, err
		}
		e.log.Warn("failed to load eth trade", "error", err)
		if err := sleep(ctx, e.timing.StoreRetry); err != nil {
			return nil, err
		}
	}
}

func (e *ethTradeRun) advance(ctx context.Context, step Step, o Outcome) (Step, error) {
	next, err := step.Next(o)
	if err != nil {
		return step, err
	}
	if err := persistStep(ctx, e.legRunner, func() error {
		return e.store.UpdateEthTradeStep(e.tradeID, int(next))
	}); err != nil {
		return step, err
	}
	stepTransitions.WithLabelValues(string(KindEthTrade), next.String()).Inc()
	e.log.Info("step persisted", "from", step, "to", next, "outcome", o)
	return next, nil
}

// setup resolves the network and the swap terms.
func (e *ethTradeRun) setup(ctx context.Context, trade *storage.EthTrade) error {
	network, err := e.settings.Networks.Lookup(trade.Network)
	if err != nil {
		return err
	}
	token, err := network.TokenAddress(trade.Token)
	if err != nil {
		return err
	}
	e.params, err = evm.NewSwapParams(network.Contract, token,
		trade.EthFromAddress, trade.EthToAddress, trade.TotalGwei, trade.SecretHash,
		e.settings.MaxBlockHeight)
	if err != nil {
		return err
	}
	if e.settings.Watchers != nil {
		w, err := e.settings.Watchers(ctx, network)
		if err != nil {
			e.log.Warn("evm watcher unavailable, relying on wallet reports", "network", network.Name, "error", err)
		} else {
			e.watcher = w
		}
	}
	e.log.Info("evm swap",
		"network", network.Name,
		"contract", network.Contract.Hex(),
		"token", trade.Token,
		"swap_id", evm.HexID(e.params.SwapID()),
	)
	return nil
}

// depth returns the confirmations of the EVM swap, read from the node when
// a watcher is available and from the wallet's reports otherwise.
func (e *ethTradeRun) depth(ctx context.Context) (uint64, bool) {
	if e.watcher != nil {
		if tx, ok := e.responses().Get(evm.KeySwapTx); ok {
			n, err := e.watcher.Confirmations(ctx, tx)
			if err == nil {
				return n, true
			}
			e.log.Warn("failed to read swap confirmations", "tx", tx, "error", err)
		}
	}
	if v, ok := e.responses().Get(evm.KeyConfirmations); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err == nil {
			return n, true
		}
		e.log.Warn("invalid confirmations response", "value", v)
	}
	return 0, false
}

// depthExceeds builds a check that fires once the EVM swap is threshold
// blocks deep. An unknown depth never fires.
func (e *ethTradeRun) depthExceeds(threshold int64) Condition {
	return func(ctx context.Context) (bool, error) {
		n, ok := e.depth(ctx)
		return ok && WindowConsumed(n, 0, threshold), nil
	}
}

// await publishes cmd and blocks until the wallet reports key.
func (e *ethTradeRun) await(ctx context.Context, msg string, cmd *evm.Command, key string) (string, error) {
	e.state.show(msg, nil)
	e.state.setCommand(cmd)
	v, err := e.responses().Await(ctx, key)
	if err != nil {
		return "", err
	}
	e.log.Info("wallet response", "key", key, "value", v)
	return v, nil
}

// fundEthLeg drives the EVM swap to the required depth.
func (e *ethTradeRun) fundEthLeg(ctx context.Context, issue bool) error {
	p := e.params
	required := e.settings.RequiredConfirmations

	if issue {
		if !p.IsNativeToken() {
			if _, err := e.await(ctx, "Please approve the token transfer in your wallet.", evm.ApproveToken(p), evm.KeyApproveTx); err != nil {
				return err
			}
		}
		if _, err := e.await(ctx, "Please create the swap in your wallet. Double-check the parameters before confirming the transaction.",
			evm.CreateSwap(p), evm.KeySwapTx); err != nil {
			return err
		}
	} else {
		if _, err := e.await(ctx, "Waiting for the other human to create the swap...", evm.WatchSwap(p, required), evm.KeySwapTx); err != nil {
			return err
		}
	}

	e.state.setCommand(evm.WatchSwap(p, required))
	e.state.show("Waiting for transaction confirmation...", nil)
	for {
		changed := e.responses().Changed()
		n, _ := e.depth(ctx)
		if n >= required {
			break
		}
		e.state.setMessage(fmt.Sprintf("Waiting for transaction confirmation (%d / %d)", n, required))

		timer := time.NewTimer(e.timing.EthResponsePoll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-changed:
		case <-timer.C:
		}
		timer.Stop()
	}
	e.state.setMessage("Commencing to next step...")
	return sleep(ctx, e.timing.StepSettle)
}

func (e *ethTradeRun) run(ctx context.Context) error {
	trade, err := e.load(ctx)
	if err != nil {
		return err
	}
	e.secretHash = trade.SecretHash
	e.log.Info("eth trade",
		"id", trade.ID,
		"secret_hash", trade.SecretHash,
		"is_buyer", trade.IsBuyer,
		"secret", trade.Secret,
		"step", Step(trade.Step),
		"eth_from", trade.EthFromAddress,
		"eth_to", trade.EthToAddress,
		"total_gwei", trade.TotalGwei,
		"network", trade.Network,
		"token", trade.Token,
	)
	dumpLeg(e.legRunner, "leg_b", trade.TradeCurrency)

	step := Step(trade.Step)
	if !step.Valid() {
		return ErrIllegalTransition
	}
	if step.Terminal() {
		e.state.show(terminalMessage(step), nil)
		return nil
	}

	if err := e.setup(ctx, trade); err != nil {
		return err
	}
	legB, err := e.prepareLeg("leg_b", trade.TradeCurrency)
	if err != nil {
		return err
	}

	cancel := false
	fromLegA := false
	inProcess := false

	if step == StepFundingLegA {
		if err := e.fundEthLeg(ctx, trade.IsBuyer); err != nil {
			return err
		}
		if step, err = e.advance(ctx, step, OutcomeProceed); err != nil {
			return err
		}
		fromLegA = true
	}

	if step == StepFundingLegB {
		// Keep the wallet reporting the EVM swap's depth.
		e.state.setCommand(evm.WatchSwap(e.params, e.settings.RequiredConfirmations))
		threshold := EarlyCancelThreshold(e.settings.MaxBlockHeight,
			uint64(legB.terms.MinConfirmationHeight), uint64(legB.terms.MaxBlockHeight))
		if cancel, err = e.waitForContract(ctx, legB, !trade.IsBuyer, fromLegA, e.depthExceeds(threshold)); err != nil {
			return err
		}
		if step, err = e.advance(ctx, step, outcomeOf(cancel)); err != nil {
			return err
		}
		inProcess = true
	}

	if step != StepResolving {
		return ErrIllegalTransition
	}
	e.state.show("Starting last step...", nil)
	if !inProcess {
		if cancel, err = e.depositMismatch(ctx, legB); err != nil {
			return err
		}
	}

	cancelled, err := e.resolve(ctx, trade, legB, cancel)
	if err != nil {
		return err
	}
	e.state.setCommand(evm.NoCommand())
	_, err = e.advance(ctx, step, outcomeOf(cancelled))
	return err
}

func (e *ethTradeRun) resolve(ctx context.Context, trade *storage.EthTrade, legB *chainLeg, cancel bool) (bool, error) {
	var err error
	ethWindow := e.depthExceeds(CancelWindow(e.settings.MaxBlockHeight))
	if !cancel {
		if trade.IsBuyer {
			cancel, err = e.shouldCancel(ctx, legB)
		} else {
			cancel, err = ethWindow(ctx)
		}
		if err != nil {
			return false, err
		}
	}
	e.log.Info("resolving", "cancel", cancel)

	if cancel {
		if !trade.IsBuyer {
			return true, e.cancelLeg(ctx, legB)
		}
		e.state.setMessage("Preparing to cancel trade :(")
		if _, err := e.await(ctx, "Please cancel the swap in your wallet to get your funds back.",
			evm.CancelSwap(e.params), evm.KeyCancelTx); err != nil {
			return true, err
		}
		e.state.setMessage("Done! Check your wallet :)")
		return true, nil
	}

	if trade.IsBuyer {
		return false, e.claimContract(ctx, legB, e.codec.ClaimSolution(trade.Secret), false)
	}

	solution, err := e.lookForSolution(ctx, legB, ethWindow)
	if err != nil {
		return false, err
	}
	if solution == nil {
		return true, e.cancelLeg(ctx, legB)
	}
	secret, err := e.codec.ExtractSecret(solution)
	if err != nil {
		return false, fmt.Errorf("revealed solution: %w", err)
	}
	e.log.Info("secret revealed", "secret", secret)
	if _, err := e.await(ctx, "Please claim the swap in your wallet.", evm.ClaimSwap(e.params, secret), evm.KeyClaimTx); err != nil {
		return false, err
	}
	e.state.setMessage("Done! Check your wallet :)")
	return false, nil
}
