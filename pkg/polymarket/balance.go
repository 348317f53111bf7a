package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/gregtusar/updown/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

const (
	DefaultRPCURL = "https://polygon-rpc.com"

	gasDecimals = 18
)

// BalanceCheck is the verdict of CheckSufficientBalance.
type BalanceCheck struct {
	Sufficient bool
	Warnings   []string
}

// CheckSufficientBalance compares collateral against the configured minimum.
// Falling inside the buffer above the minimum or holding no gas only warns.
func CheckSufficientBalance(balances models.Balances, minimum, bufferFraction float64) BalanceCheck {
	check := BalanceCheck{Sufficient: true}

	if balances.USDC < minimum {
		check.Sufficient = false
		check.Warnings = append(check.Warnings,
			fmt.Sprintf("USDC balance %.2f is below the minimum %.2f", balances.USDC, minimum))
	} else if balances.USDC < minimum*(1+bufferFraction) {
		check.Warnings = append(check.Warnings,
			fmt.Sprintf("USDC balance %.2f is within %.0f%% of the minimum %.2f", balances.USDC, bufferFraction*100, minimum))
	}

	if balances.Gas <= 0 {
		check.Warnings = append(check.Warnings, "no POL balance for gas")
	}

	return check
}

// BalanceChecker reads collateral from the exchange and gas from a Polygon RPC node.
type BalanceChecker struct {
	clob       *Client
	rpcURL     string
	httpClient *http.Client
}

func NewBalanceChecker(clob *Client, rpcURL string) *BalanceChecker {
	return &BalanceChecker{
		clob:       clob,
		rpcURL:     rpcURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// CheckBalances returns the wallet's USDC and gas balances. Gas is skipped
// when no RPC endpoint is configured.
func (b *BalanceChecker) CheckBalances(ctx context.Context, address string) (models.Balances, error) {
	balances := models.Balances{Address: address}

	usdc, err := b.clob.CollateralBalance(ctx)
	if err != nil {
		return balances, fmt.Errorf("failed to get collateral balance: %w", err)
	}
	balances.USDC = usdc

	if b.rpcURL == "" {
		return balances, nil
	}
	gas, err := b.nativeBalance(ctx, address)
	if err != nil {
		return balances, fmt.Errorf("failed to get gas balance: %w", err)
	}
	balances.Gas = gas

	return balances, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

func (b *BalanceChecker) nativeBalance(ctx context.Context, address string) (float64, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "eth_getBalance",
		Params:  []interface{}{address, "latest"},
		ID:      1,
	})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.rpcURL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}

	result := gjson.ParseBytes(data)
	if msg := result.Get("error.message"); msg.Exists() {
		return 0, fmt.Errorf("rpc error: %s", msg.String())
	}

	hex := strings.TrimPrefix(result.Get("result").String(), "0x")
	wei, ok := new(big.Int).SetString(hex, 16)
	if !ok {
		return 0, fmt.Errorf("invalid balance %q", result.Get("result").String())
	}
	return decimal.NewFromBigInt(wei, -gasDecimals).InexactFloat64(), nil
}
