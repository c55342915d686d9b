package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
	"go.uber.org/ratelimit"

	"github.com/klingon-exchange/htlcswap/pkg/helpers"
	"github.com/klingon-exchange/htlcswap/pkg/logging"
)

// aggregatedSignature is attached to every contract spend bundle.
const aggregatedSignature = "0x8b026520c973f153c62345b181ed17efd47f77e657ed003d084ef53099f89ba00e22fc1c2a8bf68502a975561b77dfa8133eb3c57ab788bf684b0afc0642ac53fc8d108d69a2815724d8bda220e613eaa360ab0f756438e5ca61948c7ec15249"

var nodeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "htlcswap",
	Subsystem: "fullnode",
	Name:      "requests_total",
	Help:      "Full node RPC requests by currency, endpoint and outcome.",
}, []string{"currency", "endpoint", "outcome"})

// Options tunes a FullNodeClient.
type Options struct {
	Timeout             time.Duration
	RequestsPerSecond   int
	BreakerMinRequests  uint32
	BreakerFailureRatio float64
	BreakerOpenTimeout  time.Duration
	Logger              *logging.Logger
}

// FullNodeClient talks to a Chia-family full node over its mTLS JSON API.
type FullNodeClient struct {
	prefix     string
	baseURL    string
	httpClient *http.Client
	limiter    ratelimit.Limiter
	breaker    *gobreaker.CircuitBreaker
	log        *logging.Logger
}

// NewFullNodeClient loads the node's private client certificate from the
// currency's ssl directory. The node uses a self-signed server certificate,
// so server verification is disabled.
func NewFullNodeClient(ep Endpoint, opts Options) (*FullNodeClient, error) {
	certPath := filepath.Join(ep.SSLDirectory, "full_node", "private_full_node.crt")
	keyPath := filepath.Join(ep.SSLDirectory, "full_node", "private_full_node.key")
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("%w for %s: %v", ErrBadCertificate, ep.Prefix, err)
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			Certificates:       []tls.Certificate{cert},
			InsecureSkipVerify: true,
		},
	}
	baseURL := "https://" + net.JoinHostPort(ep.Host, strconv.Itoa(ep.Port))
	return newFullNodeClient(ep.Prefix, baseURL, &http.Client{Transport: transport}, opts), nil
}

func newFullNodeClient(prefix, baseURL string, hc *http.Client, opts Options) *FullNodeClient {
	if opts.Timeout > 0 {
		hc.Timeout = opts.Timeout
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	log := opts.Logger
	if log == nil {
		log = logging.GetDefault().Component("backend")
	}
	log = log.With("currency", prefix)

	minReq := opts.BreakerMinRequests
	ratio := opts.BreakerFailureRatio
	if ratio <= 0 {
		ratio = 0.7
	}

	return &FullNodeClient{
		prefix:     prefix,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: hc,
		limiter:    ratelimit.New(rps),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "fullnode-" + prefix,
			Timeout: opts.BreakerOpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests > minReq && failureRatio >= ratio
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				if to == gobreaker.StateOpen {
					log.Warn("full node seems down, stop allowing requests")
				}
				if from == gobreaker.StateOpen && to == gobreaker.StateHalfOpen {
					log.Info("checking full node status")
				}
				if from == gobreaker.StateHalfOpen && to == gobreaker.StateClosed {
					log.Info("full node seems ok, restart allowing requests")
				}
			},
		}),
		log: log,
	}
}

// RejectionError is a well-formed node reply with "success": false.
type RejectionError struct {
	Endpoint string
	Message  string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrNodeError, e.Endpoint, e.Message)
}

// Unwrap makes a rejection match ErrNodeError.
func (e *RejectionError) Unwrap() error { return ErrNodeError }

// call POSTs a JSON body to an endpoint and decodes the JSON reply into out.
// A reply with "success": false is returned as a *RejectionError.
func (c *FullNodeClient) call(ctx context.Context, endpoint string, body, out interface{}) error {
	c.limiter.Take()

	res, err := c.breaker.Execute(func() (interface{}, error) {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		c.log.Debug("full node request", "endpoint", endpoint, "status", resp.StatusCode, "bytes", len(raw))

		var envelope struct {
			Success *bool  `json:"success"`
			Error   string `json:"error"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if envelope.Success != nil && !*envelope.Success {
			// Returned as a result so the breaker counts the node as up.
			return &RejectionError{Endpoint: endpoint, Message: envelope.Error}, nil
		}
		return nil, json.Unmarshal(raw, out)
	})

	outcome := "ok"
	if rej, ok := res.(*RejectionError); ok && err == nil {
		err = rej
		outcome = "rejected"
	}
	if err != nil && outcome == "ok" {
		outcome = "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome = "short_circuit"
		}
	}
	nodeRequests.WithLabelValues(c.prefix, endpoint, outcome).Inc()
	return err
}

type blockchainStateResponse struct {
	Success         bool `json:"success"`
	BlockchainState *struct {
		Peak *struct {
			Height uint32 `json:"height"`
		} `json:"peak"`
		Sync struct {
			Synced bool `json:"synced"`
		} `json:"sync"`
	} `json:"blockchain_state"`
}

// BlockchainState queries /get_blockchain_state.
func (c *FullNodeClient) BlockchainState(ctx context.Context) (*BlockchainState, error) {
	var resp blockchainStateResponse
	if err := c.call(ctx, "/get_blockchain_state", struct{}{}, &resp); err != nil {
		return nil, err
	}
	if resp.BlockchainState == nil {
		return nil, fmt.Errorf("%w: missing blockchain_state", ErrNodeError)
	}
	st := &BlockchainState{Synced: resp.BlockchainState.Sync.Synced}
	if resp.BlockchainState.Peak != nil {
		st.Height = resp.BlockchainState.Peak.Height
	}
	return st, nil
}

// Height implements Gateway.
func (c *FullNodeClient) Height(ctx context.Context) (uint32, error) {
	st, err := c.BlockchainState(ctx)
	if err != nil {
		return 0, err
	}
	if !st.Synced || st.Height == 0 {
		return 0, ErrNotSynced
	}
	return st.Height, nil
}

// CoinRecord implements Gateway.
func (c *FullNodeClient) CoinRecord(ctx context.Context, puzzleHash [32]byte, start uint32, includeSpent bool) (*CoinRecord, error) {
	req := map[string]interface{}{
		"include_spent_coins": includeSpent,
		"puzzle_hash":         helpers.Hex0x(puzzleHash[:]),
		"start":               start,
	}
	var resp struct {
		CoinRecords []CoinRecord `json:"coin_records"`
	}
	if err := c.call(ctx, "/get_coin_records_by_puzzle_hash", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.CoinRecords) == 0 {
		return nil, nil
	}
	rec := resp.CoinRecords[0]
	return &rec, nil
}

// CoinSolution implements Gateway.
func (c *FullNodeClient) CoinSolution(ctx context.Context, coinID [32]byte, height uint32) ([]byte, error) {
	req := map[string]interface{}{
		"coin_id": helpers.Hex0x(coinID[:]),
		"height":  height,
	}
	var resp struct {
		CoinSolution *struct {
			Solution string `json:"solution"`
		} `json:"coin_solution"`
	}
	if err := c.call(ctx, "/get_puzzle_and_solution", req, &resp); err != nil {
		return nil, err
	}
	if resp.CoinSolution == nil {
		return nil, nil
	}
	sol, err := helpers.DecodeHex(resp.CoinSolution.Solution)
	if err != nil {
		return nil, fmt.Errorf("%w: solution is not hex", ErrNodeError)
	}
	return sol, nil
}

type coinSpend struct {
	Coin         Coin   `json:"coin"`
	PuzzleReveal string `json:"puzzle_reveal"`
	Solution     string `json:"solution"`
}

// PushTransaction implements Gateway.
func (c *FullNodeClient) PushTransaction(ctx context.Context, puzzle, solution []byte, coin Coin) (PushStatus, error) {
	req := map[string]interface{}{
		"spend_bundle": map[string]interface{}{
			"coin_solutions": []coinSpend{{
				Coin:         coin,
				PuzzleReveal: helpers.Hex0x(puzzle),
				Solution:     helpers.Hex0x(solution),
			}},
			"aggregated_signature": aggregatedSignature,
		},
	}
	var resp struct {
		Success bool   `json:"success"`
		Status  string `json:"status"`
	}
	if err := c.call(ctx, "/push_tx", req, &resp); err != nil {
		var rej *RejectionError
		if errors.As(err, &rej) {
			c.log.Info("transaction rejected", "error", rej.Message)
			return PushRejected, nil
		}
		return PushRejected, err
	}
	if !resp.Success {
		return PushRejected, nil
	}
	if strings.EqualFold(resp.Status, "PENDING") {
		return PushPending, nil
	}
	return PushAccepted, nil
}

var _ Gateway = (*FullNodeClient)(nil)

// NewFactory returns a Factory that builds FullNodeClients with opts.
func NewFactory(opts Options) Factory {
	return func(ep Endpoint) (Gateway, error) {
		return NewFullNodeClient(ep, opts)
	}
}
