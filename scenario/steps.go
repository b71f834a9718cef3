package scenario

import (
	"context"
	"fmt"

	"github.com/KyberNetwork/dmm-smart-contracts/periphery/router"
	"github.com/KyberNetwork/dmm-smart-contracts/periphery/zap"
	"github.com/KyberNetwork/dmm-smart-contracts/protocols/dmm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Result is the outcome of one step.
type Result struct {
	Index  int
	Action string
	// Block is the last committed block after the step.
	Block   uint64
	Amounts []*uint256.Int
	// Err is the error the step failed with, also when it was expected.
	Err error
}

// Run executes every step of the configuration in order. It stops at the first step
// whose outcome differs from its Expect field.
func (d *Deployment) Run(ctx context.Context) ([]Result, error) {
	results := make([]Result, 0, len(d.cfg.Steps))
	for i, step := range d.cfg.Steps {
		res, err := d.Step(ctx, i, step)
		results = append(results, res)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// Step executes step and checks it against its Expect field.
func (d *Deployment) Step(ctx context.Context, index int, step Step) (Result, error) {
	amounts, err := d.execute(ctx, step)
	res := Result{
		Index:   index,
		Action:  step.Action,
		Block:   d.Chain.BlockNumber(),
		Amounts: amounts,
		Err:     err,
	}
	reason := dmm.Reason(err)
	switch {
	case step.Expect == "" && err != nil:
		return res, fmt.Errorf("step %d (%s): %w", index, step.Action, err)
	case step.Expect != "" && err == nil:
		return res, fmt.Errorf("step %d (%s): succeeded, expected %s", index, step.Action, step.Expect)
	case step.Expect != "" && reason != step.Expect:
		return res, fmt.Errorf("step %d (%s): failed with %q, expected %s: %w", index, step.Action, reason, step.Expect, err)
	}
	d.logger.Info("step executed",
		"index", index,
		"action", step.Action,
		"account", step.Account,
		"block", res.Block,
		"amounts", amounts,
		"reason", reason,
	)
	return res, nil
}

func (d *Deployment) execute(ctx context.Context, s Step) ([]*uint256.Int, error) {
	caller := d.Accounts[s.Account]
	amt, err := amount(s.Amount)
	if err != nil {
		return nil, err
	}
	minOut, err := amount(s.MinOut)
	if err != nil {
		return nil, err
	}

	switch s.Action {
	case ActionWrap:
		if err := d.WETH.Deposit(ctx, caller, amt); err != nil {
			return nil, err
		}
		return []*uint256.Int{amt}, nil

	case ActionSwap:
		path := make([]common.Address, len(s.Path))
		for i, symbol := range s.Path {
			path[i] = d.Token(symbol)
		}
		pools := make([]common.Address, len(s.Pools))
		for i, name := range s.Pools {
			pools[i] = d.Pools[name].Address()
		}
		return d.Router.SwapExactTokensForTokens(ctx, caller, amt, minOut, router.SwapParams{
			PoolsPath: pools,
			Path:      path,
			To:        caller,
			Deadline:  d.deadline(),
		})

	case ActionAddLiquidity:
		cfg := d.poolConfig(s.Pool)
		amountB, err := amount(s.AmountB)
		if err != nil {
			return nil, err
		}
		a, b, liquidity, err := d.Router.AddLiquidity(ctx, caller, router.AddLiquidityParams{
			TokenA:         d.Token(cfg.TokenA),
			TokenB:         d.Token(cfg.TokenB),
			Pool:           d.Pools[s.Pool].Address(),
			AmountADesired: amt,
			AmountBDesired: amountB,
			To:             caller,
			Deadline:       d.deadline(),
		})
		if err != nil {
			return nil, err
		}
		return []*uint256.Int{a, b, liquidity}, nil

	case ActionRemoveLiquidity:
		cfg := d.poolConfig(s.Pool)
		a, b, err := d.Router.RemoveLiquidity(ctx, caller, router.RemoveLiquidityParams{
			TokenA:    d.Token(cfg.TokenA),
			TokenB:    d.Token(cfg.TokenB),
			Pool:      d.Pools[s.Pool].Address(),
			Liquidity: amt,
			To:        caller,
			Deadline:  d.deadline(),
		})
		if err != nil {
			return nil, err
		}
		return []*uint256.Int{a, b}, nil

	case ActionZapIn:
		pool := d.Pools[s.Pool]
		tokenIn := d.Token(s.TokenIn)
		liquidity, err := d.Zap.ZapIn(ctx, caller, zap.ZapInParams{
			Factory:      d.Factory.Address(),
			TokenIn:      tokenIn,
			TokenOut:     other(pool, tokenIn),
			AmountIn:     amt,
			Pool:         pool.Address(),
			To:           caller,
			MinLiquidity: minOut,
			Deadline:     d.deadline(),
		})
		if err != nil {
			return nil, err
		}
		return []*uint256.Int{liquidity}, nil

	case ActionZapOut:
		pool := d.Pools[s.Pool]
		tokenOut := d.Token(s.TokenOut)
		out, err := d.Zap.ZapOut(ctx, caller, zap.ZapOutParams{
			Factory:     d.Factory.Address(),
			TokenOut:    tokenOut,
			TokenOther:  other(pool, tokenOut),
			Liquidity:   amt,
			Pool:        pool.Address(),
			To:          caller,
			MinTokenOut: minOut,
			Deadline:    d.deadline(),
		})
		if err != nil {
			return nil, err
		}
		return []*uint256.Int{out}, nil
	}
	return nil, fmt.Errorf("unknown action %q", s.Action)
}

func (d *Deployment) poolConfig(name string) PoolConfig {
	for _, p := range d.cfg.Pools {
		if p.Name == name {
			return p
		}
	}
	return PoolConfig{}
}

// other returns the token of pool that is not token. A token outside the pool yields
// token0, which the zap then rejects.
func other(pool *dmm.Pool, token common.Address) common.Address {
	if token == pool.Token0() {
		return pool.Token1()
	}
	return pool.Token0()
}
