// Package swap - Orchestrator for swaps between two Chia-family chains.
package swap

import (
	"context"
	"errors"

	"github.com/klingon-exchange/htlcswap/internal/storage"
	"github.com/klingon-exchange/htlcswap/pkg/helpers"
)

// terminalMessage is shown when a run starts on a finished trade.
func terminalMessage(step Step) string {
	if step == StepCancelled {
		return "Trade cancelled"
	}
	return "Done! Check your wallet :)"
}

// tradeRun drives one symmetric trade. Leg A is the buyer's deposit and
// leg B the seller's.
type tradeRun struct {
	*legRunner
	store   Store
	tradeID string
}

func (t *tradeRun) load(ctx context.Context) (*storage.Trade, error) {
	for {
		trade, err := t.store.GetTrade(t.tradeID)
		if err == nil {
			return trade, nil
		}
		if errors.Is(err, storage.ErrTradeNotFound) || errors.Is(err, storage.ErrTradeCurrencyNotFound) {
			return nil, err
		}
		t.log.Warn("failed to load trade", "error", err)
		if err := sleep(ctx, t.timing.StoreRetry); err != nil {
			return nil, err
		}
	}
}

// advance persists the step after step, retrying until the store accepts it.
func (t *tradeRun) advance(ctx context.Context, step Step, o Outcome) (Step, error) {
	next, err := step.Next(o)
	if err != nil {
		return step, err
	}
	if err := persistStep(ctx, t.legRunner, func() error {
		return t.store.UpdateTradeStep(t.tradeID, int(next))
	}); err != nil {
		return step, err
	}
	stepTransitions.WithLabelValues(string(KindTrade), next.String()).Inc()
	t.log.Info("step persisted", "from", step, "to", next, "outcome", o)
	return next, nil
}

func persistStep(ctx context.Context, r *legRunner, write func() error) error {
	for {
		err := write()
		if err == nil {
			return nil
		}
		if errors.Is(err, storage.ErrTradeNotFound) || errors.Is(err, storage.ErrEthTradeNotFound) {
			return err
		}
		r.log.Warn("failed to persist step", "error", err)
		if err := sleep(ctx, r.timing.StoreRetry); err != nil {
			return err
		}
	}
}

func (t *tradeRun) dump(trade *storage.Trade) {
	t.log.Info("trade",
		"id", trade.ID,
		"secret_hash", trade.SecretHash,
		"is_buyer", trade.IsBuyer,
		"secret", trade.Secret,
		"step", Step(trade.Step),
	)
	dumpLeg(t.legRunner, "leg_a", trade.TradeCurrencyOne)
	dumpLeg(t.legRunner, "leg_b", trade.TradeCurrencyTwo)
}

func dumpLeg(r *legRunner, name string, tc *storage.TradeCurrency) {
	r.log.Info("trade currency",
		"leg", name,
		"address_prefix", tc.AddressPrefix,
		"fee", tc.Fee,
		"max_block_height", tc.MaxBlockHeight,
		"min_confirmation_height", tc.MinConfirmationHeight,
		"from", tc.FromAddress,
		"to", tc.ToAddress,
		"total_amount", tc.TotalAmount,
	)
}

func (t *tradeRun) run(ctx context.Context) error {
	trade, err := t.load(ctx)
	if err != nil {
		return err
	}
	t.secretHash = trade.SecretHash
	t.dump(trade)

	step := Step(trade.Step)
	if !step.Valid() {
		return ErrIllegalTransition
	}
	if step.Terminal() {
		t.state.show(terminalMessage(step), nil)
		return nil
	}

	legA, err := t.prepareLeg("leg_a", trade.TradeCurrencyOne)
	if err != nil {
		return err
	}
	legB, err := t.prepareLeg("leg_b", trade.TradeCurrencyTwo)
	if err != nil {
		return err
	}

	cancel := false
	fromLegA := false
	inProcess := false

	if step == StepFundingLegA {
		if cancel, err = t.waitForContract(ctx, legA, trade.IsBuyer, true, nil); err != nil {
			return err
		}
		if step, err = t.advance(ctx, step, outcomeOf(cancel)); err != nil {
			return err
		}
		fromLegA = true
	}

	if step == StepFundingLegB {
		if !fromLegA {
			// Resumed after leg A was accepted; its amount is checked
			// again before anyone funds leg B.
			if cancel, err = t.depositMismatch(ctx, legA); err != nil {
				return err
			}
		}
		if cancel {
			// Nobody is asked to fund leg B of a trade that is already
			// being cancelled.
			t.log.Info("skipping leg B deposit")
		} else if cancel, err = t.waitForContract(ctx, legB, !trade.IsBuyer, fromLegA, t.pairedLegWindow(legA, legB)); err != nil {
			return err
		}
		if step, err = t.advance(ctx, step, outcomeOf(cancel)); err != nil {
			return err
		}
		inProcess = true
	}

	if step != StepResolving {
		return ErrIllegalTransition
	}
	t.state.show("Starting last step...", nil)

	if !inProcess {
		// The cancel decision of the funding steps is not persisted;
		// re-derive it from the chain.
		for _, leg := range []*chainLeg{legA, legB} {
			bad, err := t.depositMismatch(ctx, leg)
			if err != nil {
				return err
			}
			cancel = cancel || bad
		}
	}

	cancelled, err := t.resolve(ctx, trade, legA, legB, cancel)
	if err != nil {
		return err
	}
	_, err = t.advance(ctx, step, outcomeOf(cancelled))
	return err
}

// resolve claims or cancels. It reports whether the trade was cancelled.
func (t *tradeRun) resolve(ctx context.Context, trade *storage.Trade, legA, legB *chainLeg, cancel bool) (bool, error) {
	var err error
	if !cancel {
		if trade.IsBuyer {
			cancel, err = t.shouldCancel(ctx, legB)
		} else {
			cancel, err = t.shouldCancel(ctx, legA)
		}
		if err != nil {
			return false, err
		}
	}
	t.log.Info("resolving", "cancel", cancel)

	if cancel {
		own := legB
		if trade.IsBuyer {
			own = legA
		}
		return true, t.cancelLeg(ctx, own)
	}

	if trade.IsBuyer {
		return false, t.claimContract(ctx, legB, t.codec.ClaimSolution(trade.Secret), false)
	}

	solution, err := t.lookForSolution(ctx, legB, t.legExpired(legA))
	if err != nil {
		return false, err
	}
	if solution == nil {
		return true, t.cancelLeg(ctx, legB)
	}
	if secret, err := t.codec.ExtractSecret(solution); err != nil {
		t.log.Warn("could not decode revealed solution", "error", err)
	} else {
		t.log.Info("secret revealed", "secret", secret, "solution", helpers.Hex0x(solution))
	}
	return false, t.claimContract(ctx, legA, solution, false)
}
