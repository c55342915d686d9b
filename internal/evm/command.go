// Package evm describes the EVM side of a cross-chain swap. The daemon holds
// no EVM keys: it publishes commands for the user's wallet and optionally
// watches the chain through a JSON-RPC endpoint.
package evm

// Command codes understood by the wallet client.
const (
	CodeNone         = "none"
	CodeApproveToken = "approve_token"
	CodeCreateSwap   = "create_swap"
	CodeWatchSwap    = "watch_swap"
	CodeClaimSwap    = "claim_swap"
	CodeCancelSwap   = "cancel_swap"
)

// Response keys the wallet client reports back.
const (
	KeyApproveTx     = "approve_tx"
	KeySwapTx        = "swap_tx"
	KeyConfirmations = "confirmations"
	KeyClaimTx       = "claim_tx"
	KeyCancelTx      = "cancel_tx"
)

// Command is an action the wallet client must perform.
type Command struct {
	Code string            `json:"code"`
	Args map[string]string `json:"args"`
}

// NoCommand is published while nothing is expected from the wallet.
func NoCommand() *Command {
	return &Command{Code: CodeNone, Args: map[string]string{}}
}

// ApproveToken asks the wallet to let the swap contract move amount of token.
func ApproveToken(p *SwapParams) *Command {
	return &Command{Code: CodeApproveToken, Args: map[string]string{
		"contract":      p.Contract.Hex(),
		"token_address": p.Token.Hex(),
		"amount":        p.Amount.String(),
	}}
}

// CreateSwap asks the wallet to lock funds in the swap contract.
func CreateSwap(p *SwapParams) *Command {
	args := p.args()
	args["swap_id"] = HexID(p.SwapID())
	return &Command{Code: CodeCreateSwap, Args: args}
}

// WatchSwap asks the wallet to report the creation and depth of a swap
// funded by the counterparty, or of its own swap once created.
func WatchSwap(p *SwapParams, required uint64) *Command {
	args := p.args()
	args["swap_id"] = HexID(p.SwapID())
	args["required_confirmations"] = uintString(required)
	return &Command{Code: CodeWatchSwap, Args: args}
}

// ClaimSwap asks the wallet to claim a swap with secret.
func ClaimSwap(p *SwapParams, secret string) *Command {
	return &Command{Code: CodeClaimSwap, Args: map[string]string{
		"contract": p.Contract.Hex(),
		"swap_id":  HexID(p.SwapID()),
		"secret":   secret,
	}}
}

// CancelSwap asks the wallet to refund its own swap after the timeout.
func CancelSwap(p *SwapParams) *Command {
	return &Command{Code: CodeCancelSwap, Args: map[string]string{
		"contract": p.Contract.Hex(),
		"swap_id":  HexID(p.SwapID()),
	}}
}
