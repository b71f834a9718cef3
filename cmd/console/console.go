package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"github.com/KyberNetwork/dmm-smart-contracts/chains/exchange"
	"github.com/KyberNetwork/dmm-smart-contracts/engine"
	"github.com/KyberNetwork/dmm-smart-contracts/protocols/dmm"
	tokenregistry "github.com/KyberNetwork/dmm-smart-contracts/protocols/tokenregistry"
	"github.com/KyberNetwork/dmm-smart-contracts/routing"
	"github.com/ethereum/go-ethereum/common"
)

const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	cyan   = "\033[36m"
	gray   = "\033[37m"

	clearScreen = "\033[H\033[2J"
)

var errQuit = errors.New("quit")

// command is one entry of the menu.
type command struct {
	key   string
	title string
	hint  string
	// stateless commands run before the first state arrives
	stateless bool
	run       func(c *console, state *exchange.State) error
}

var commands = []command{
	{key: "1", title: "Current Block Info", run: (*console).blockInfo},
	{key: "2", title: "Protocol Summary", run: (*console).protocolSummary},
	{key: "3", title: "Find Pool", hint: "by Address", run: (*console).findPool},
	{key: "4", title: "Find Pools", hint: "by Token", run: (*console).findPoolsByToken},
	{key: "5", title: "Watch Pool", hint: "Live Monitor", run: (*console).watchPool},
	{key: "6", title: "Route", hint: "Best Path", run: (*console).findRoute},
	{key: "h", title: "Help", stateless: true, run: (*console).help},
	{key: "q", title: "Quit", stateless: true, run: func(*console, *exchange.State) error { return errQuit }},
}

// console reads commands from in and renders the latest state to out.
type console struct {
	in    *bufio.Reader
	out   io.Writer
	state atomic.Pointer[exchange.State]
	// refresh is the polling period of the live pool monitor.
	refresh time.Duration
}

func newConsole(in io.Reader, out io.Writer) *console {
	return &console{in: bufio.NewReader(in), out: out, refresh: 100 * time.Millisecond}
}

func (c *console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

func (c *console) header(title string) {
	c.printf("\n%s%s:: %s ::%s\n", bold, cyan, title, reset)
}

// run shows the menu until the input ends, ctx is done or the user quits.
func (c *console) run(ctx context.Context) error {
	for ctx.Err() == nil {
		c.menu()
		c.printf("%sEnter selection: %s", bold, reset)
		input, err := c.readLine()
		if err != nil {
			return err
		}
		if err := c.dispatch(input); err != nil {
			return err
		}
		c.printf("\n%s[Press Enter to continue]%s\n", gray, reset)
		if _, err := c.readLine(); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (c *console) readLine() (string, error) {
	line, err := c.in.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (c *console) menu() {
	c.printf("%s%sDMM STATE CONSOLE%s\n", clearScreen, bold, reset)
	c.printf("%s-----------------------------------%s\n", gray, reset)
	for _, cmd := range commands {
		color := cyan
		switch cmd.key {
		case "h":
			color = yellow
		case "q":
			color = red
		}
		c.printf(" %s%s.%s %-11s", color, cmd.key, reset, cmd.title)
		if cmd.hint != "" {
			c.printf("%s(%s)%s", gray, cmd.hint, reset)
		}
		c.printf("\n")
	}
	c.printf("\n")
}

// dispatch runs the command bound to input. Only errQuit and read errors stop the
// console; everything else is reported inline.
func (c *console) dispatch(input string) error {
	i := slices.IndexFunc(commands, func(cmd command) bool { return cmd.key == input })
	if i < 0 {
		c.printf("%sUnknown command.%s\n", red, reset)
		return nil
	}
	cmd := commands[i]
	state := c.state.Load()
	if state == nil && !cmd.stateless {
		c.printf("\n%s[INFO] Waiting for first state update... (Check connection/logs)%s\n", yellow, reset)
		return nil
	}
	err := cmd.run(c, state)
	var bad *inputError
	if errors.As(err, &bad) {
		c.printf("%s%s%s\n", red, err, reset)
		return nil
	}
	return err
}

// inputError is a rejected user entry.
type inputError struct{ msg string }

func (e *inputError) Error() string { return "[ERROR] " + e.msg }

func badInput(format string, args ...any) error {
	return &inputError{msg: fmt.Sprintf(format, args...)}
}

func (c *console) help(*exchange.State) error {
	c.printf("%s", clearScreen)
	c.header("DMM STATE STREAM")
	c.printf("Every committed transaction of the exchange produces a new state. The\n")
	c.printf("stream sends one full state on subscription, then diffs.\n\n")
	c.printf("%sPROTOCOLS%s\n", bold, reset)
	for _, p := range [][2]string{
		{"tokens", "every token of the chain, with its fee on transfer"},
		{"pools", "every pool, mapped to the factory that created it"},
		{"token-pool-graph", "which pools connect which tokens"},
		{"dmm-<factory>", "reserves, virtual reserves and fees of each pool"},
	} {
		c.printf("   %s%-17s%s %s\n", cyan, p[0], reset, p[1])
	}
	c.printf("\n%sAMPLIFICATION%s\n", bold, reset)
	c.printf("   A pool with amplification above 1x prices trades on virtual reserves,\n")
	c.printf("   which deepen the curve around the current price.\n")
	return nil
}

func (c *console) blockInfo(state *exchange.State) error {
	ts := time.Unix(int64(state.Block.Timestamp), 0).UTC().Format(time.DateTime)
	c.printf("\n%sSTATUS  ::%s Block %s#%d%s | Chain %s%d%s | Time %s%s%s | Events %d\n",
		green, reset,
		bold, state.Block.Number, reset,
		bold, state.ChainID, reset,
		bold, ts, reset,
		state.Block.EventCount,
	)
	c.printf("%sHash:%s %s\n", gray, reset, state.Block.Hash.Hex())
	lag := time.Duration(int64(state.ProcessedAtUnixNs) - state.Block.ReceivedAt)
	c.printf("%sProcessed %s after the snapshot.%s\n", gray, lag, reset)
	return nil
}

func (c *console) protocolSummary(state *exchange.State) error {
	c.header("PROTOCOL SUMMARY")

	protocols := state.IndexedPoolRegistry.GetProtocols()
	counts := make(map[string]int)
	for _, pool := range state.IndexedPoolRegistry.All() {
		id, ok := protocols[pool.Protocol]
		if !ok {
			counts["unknown"]++
			continue
		}
		counts[string(id)]++
	}
	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	w := tabwriter.NewWriter(c.out, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "PROTOCOL ID\tSCHEMA\tPOOLS\t")
	fmt.Fprintln(w, "-----------\t------\t-----\t")
	for _, id := range ids {
		schema, _ := state.ProtocolResolver.ResolveSchema(engine.ProtocolID(id))
		fmt.Fprintf(w, "%s\t%s\t%d\t\n", id, schema, counts[id])
	}
	w.Flush()

	c.printf("\n%sTokens: %d | Fee-on-transfer tokens: %d%s\n",
		bold, len(state.IndexedTokenSystem.All()), len(state.IndexedTokenSystem.FeeOnTransfer()), reset)
	return nil
}

func (c *console) findPool(state *exchange.State) error {
	c.printf("\n%s[Find Pool] Enter Pool Address: %s", bold, reset)
	address, err := c.readAddress()
	if err != nil {
		return err
	}
	c.printPool(state, address)
	return nil
}

func (c *console) findPoolsByToken(state *exchange.State) error {
	c.printf("\n%s[Find Pools] Enter Token Address or Symbol: %s", bold, reset)
	token, err := c.readToken(state)
	if err != nil {
		return err
	}

	c.header("TOKEN DETAILS")
	field := func(key string, value any) {
		c.printf(" %s%-14s%s %v\n", gray, key+":", reset, value)
	}
	field("ID", token.ID)
	field("Symbol", token.Symbol)
	field("Name", token.Name)
	field("Decimals", token.Decimals)
	field("Address", token.Address.Hex())
	if token.FeeOnTransferBps > 0 {
		field("Transfer fee", fmt.Sprintf("%s%d bps%s", yellow, token.FeeOnTransferBps, reset))
	}

	var pools []dmm.PoolView
	for _, pool := range state.IndexedDMM.All() {
		if pool.Token0 == token.Address || pool.Token1 == token.Address {
			pools = append(pools, pool)
		}
	}
	if len(pools) == 0 {
		c.printf("%s[INFO] Token has no pools.%s\n", yellow, reset)
		return nil
	}

	c.header("POOLS FOR " + strings.ToUpper(token.Symbol))
	w := tabwriter.NewWriter(c.out, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "ID\tPAIRED TOKEN\tAMP\tFEE\tPOOL ADDRESS\t")
	fmt.Fprintln(w, "--\t------------\t---\t---\t------------\t")
	for _, pool := range pools {
		paired := pool.Token1
		if paired == token.Address {
			paired = pool.Token0
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d bps\t%s\t\n",
			pool.ID, symbol(state, paired), amp(pool.AmpBps), pool.FeeBps, pool.Address.Hex())
	}
	w.Flush()
	return nil
}

// watchPool redraws a pool on every new block until a line is entered.
func (c *console) watchPool(*exchange.State) error {
	c.printf("\n%s[Watch Pool] Enter Pool Address: %s", bold, reset)
	address, err := c.readAddress()
	if err != nil {
		return err
	}
	c.printf("%sStarting Live Watch... (Press 'Enter' to stop)%s\n", green, reset)

	stop := make(chan struct{})
	go func() {
		c.in.ReadString('\n')
		close(stop)
	}()

	ticker := time.NewTicker(c.refresh)
	defer ticker.Stop()
	var lastBlock uint64
	for {
		select {
		case <-stop:
			return nil
		case <-ticker.C:
			state := c.state.Load()
			if state == nil || (lastBlock != 0 && state.Block.Number <= lastBlock) {
				continue
			}
			lastBlock = state.Block.Number
			c.printf("%s%s\n--- LIVE MONITOR (Block: %d) ---%s\n", clearScreen, bold, state.Block.Number, reset)
			c.printf("%sPress ENTER to return to menu.%s\n", gray, reset)
			c.printPool(state, address)
		}
	}
}

func (c *console) findRoute(state *exchange.State) error {
	c.header("ROUTE FINDER")

	c.printf("%s1. Enter Input Token (Address or Symbol): %s", bold, reset)
	tokenIn, err := c.readToken(state)
	if err != nil {
		return err
	}
	c.printf("%s   Selected Input: %s (%d decimals)%s\n", green, tokenIn.Symbol, tokenIn.Decimals, reset)

	c.printf("%s2. Enter Output Token (Address or Symbol): %s", bold, reset)
	tokenOut, err := c.readToken(state)
	if err != nil {
		return err
	}
	c.printf("%s   Selected Output: %s (%d decimals)%s\n", green, tokenOut.Symbol, tokenOut.Decimals, reset)

	c.printf("%s3. Enter Input Amount (e.g. 1.5): %s", bold, reset)
	input, err := c.readLine()
	if err != nil {
		return err
	}
	amountIn, err := parseAmount(input, tokenIn.Decimals)
	if err != nil {
		return badInput("%v", err)
	}

	c.printf("\nRouting %s %s (Raw: %s)... calculating best path...\n", input, tokenIn.Symbol, amountIn.Dec())
	hops, amountOut, err := state.Graph.FindBestSwapPath(tokenIn.Address, tokenOut.Address, amountIn, routing.DefaultRuns)
	if err != nil {
		return badInput("pathfinding failed: %v", err)
	}

	c.header("BEST ROUTE FOUND")
	c.printf("%sEst. Output:%s %s %s (Raw: %s)\n\n", bold, reset, formatAmount(amountOut, tokenOut.Decimals), tokenOut.Symbol, amountOut.Dec())
	c.printf("%sRoute Path:%s\n", bold, reset)
	for i, hop := range hops {
		desc := "unknown pool"
		if pool, ok := state.IndexedDMM.GetByAddress(hop.Pool); ok {
			desc = fmt.Sprintf("%s amp, %d bps", amp(pool.AmpBps), pool.FeeBps)
		}
		c.printf(" [ Step %d ]\n", i+1)
		c.printf("  %s%-6s%s\n", cyan, symbol(state, hop.TokenIn), reset)
		c.printf("    %s|%s\n", gray, reset)
		c.printf("    %s+---[%s%s %s]--->%s  %s%-6s%s\n\n",
			gray, reset, desc, hop.Pool.Hex(), reset, cyan, symbol(state, hop.TokenOut), reset)
	}
	return nil
}

func (c *console) printPool(state *exchange.State, address common.Address) {
	entry, ok := state.IndexedPoolRegistry.GetByAddress(address)
	if !ok {
		c.printf("%s[NOT FOUND] Pool address not found in registry.%s\n", red, reset)
		return
	}

	c.header("POOL REGISTRY MATCH")
	c.printf("Registry ID:     %d\n", entry.ID)
	c.printf("Pool Key:        0x%x\n", entry.Key[:])
	protocolID, _ := state.ProtocolResolver.ResolveProtocol(address)
	c.printf("Protocol:        %s%s%s (ID: %d)\n", cyan, protocolID, reset, entry.Protocol)

	if schema, _ := state.ProtocolResolver.ResolveSchemaFromPool(address); schema != dmm.Schema {
		c.printf("%s[INFO] No inspector implemented for schema type: %s%s\n", gray, schema, reset)
		return
	}
	pool, ok := state.IndexedDMM.GetByAddress(address)
	if !ok {
		c.printf("%s[WARN] Pool %s missing from %s state.%s\n", yellow, address.Hex(), protocolID, reset)
		return
	}

	field := func(key string, value any) {
		c.printf("  %s%-16s%s %v\n", gray, key+":", reset, value)
	}
	token0, _ := state.IndexedTokenSystem.GetByAddress(pool.Token0)
	token1, _ := state.IndexedTokenSystem.GetByAddress(pool.Token1)

	c.header(strings.ToUpper(string(protocolID) + " data"))
	field("Pair", symbol(state, pool.Token0)+"/"+symbol(state, pool.Token1))
	field("Amplification", amp(pool.AmpBps))
	field("Fee", fmt.Sprintf("%d bps", pool.FeeBps))
	field("Reserve0", formatAmount(pool.Reserve0, token0.Decimals))
	field("Reserve1", formatAmount(pool.Reserve1, token1.Decimals))
	field("VReserve0", formatAmount(pool.VReserve0, token0.Decimals))
	field("VReserve1", formatAmount(pool.VReserve1, token1.Decimals))
	field("Total supply", formatAmount(pool.TotalSupply, 18))
}

func (c *console) readAddress() (common.Address, error) {
	input, err := c.readLine()
	if err != nil {
		return common.Address{}, err
	}
	if !common.IsHexAddress(input) {
		return common.Address{}, badInput("invalid address %q", input)
	}
	return common.HexToAddress(input), nil
}

// readToken resolves an address or an unambiguous symbol to a registered token.
func (c *console) readToken(state *exchange.State) (tokenregistry.Token, error) {
	input, err := c.readLine()
	if err != nil {
		return tokenregistry.Token{}, err
	}
	if input == "" {
		return tokenregistry.Token{}, badInput("empty input")
	}
	if common.IsHexAddress(input) {
		token, ok := state.IndexedTokenSystem.GetByAddress(common.HexToAddress(input))
		if !ok {
			return tokenregistry.Token{}, badInput("token address not found in registry")
		}
		return token, nil
	}
	switch matches := state.IndexedTokenSystem.GetBySymbol(input); len(matches) {
	case 0:
		return tokenregistry.Token{}, badInput("token symbol %s not found in registry", input)
	case 1:
		return matches[0], nil
	default:
		return tokenregistry.Token{}, badInput("symbol %s is ambiguous (%d tokens), use the address", input, len(matches))
	}
}

func symbol(state *exchange.State, address common.Address) string {
	if token, ok := state.IndexedTokenSystem.GetByAddress(address); ok {
		return token.Symbol
	}
	return address.Hex()[:10]
}
