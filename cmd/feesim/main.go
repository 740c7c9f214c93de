// feesim drives the fee market core with synthetic blocks. It is the
// development tool for watching price dynamics under a chosen load shape
// without a full node around the core.
package main

import (
	"fmt"
	"math/rand"
	"net/http"
	"os"

	"github.com/ccoveille/go-safecast"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/rollupgas/feemarket/collector"
	"github.com/rollupgas/feemarket/feehistory"
	"github.com/rollupgas/feemarket/feemarket"
	"github.com/rollupgas/feemarket/gas"
	"github.com/rollupgas/feemarket/ledger"
	"github.com/rollupgas/feemarket/params"
)

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "Path to a TOML fee config; defaults apply when omitted",
	}
	blocksFlag = &cli.IntFlag{
		Name:  "blocks",
		Usage: "Number of blocks to simulate",
		Value: 100,
	}
	txsFlag = &cli.IntFlag{
		Name:  "txs",
		Usage: "Transactions per block",
		Value: 20,
	}
	seedFlag = &cli.Int64Flag{
		Name:  "seed",
		Usage: "Seed for the simulated load",
		Value: 1,
	}
	accountsFlag = &cli.IntFlag{
		Name:  "accounts",
		Usage: "Number of funded payer accounts",
		Value: 16,
	}
	datadirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "Directory for the fee history database (in-memory when empty)",
	}
	collectDirFlag = &cli.StringFlag{
		Name:  "collect.dir",
		Usage: "Directory for fee stats batch files (collection disabled when empty)",
	}
	collectBatchFlag = &cli.IntFlag{
		Name:  "collect.batchsize",
		Usage: "Blocks per fee stats batch file",
		Value: 8,
	}
	metricsAddrFlag = &cli.StringFlag{
		Name:  "metrics.addr",
		Usage: "Prometheus HTTP endpoint (disabled when empty)",
	}
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
		Value: 3,
	}
)

func main() {
	app := &cli.App{
		Name:  "feesim",
		Usage: "simulate the multi-dimensional fee market under synthetic load",
		Flags: []cli.Flag{
			configFlag,
			blocksFlag,
			txsFlag,
			seedFlag,
			accountsFlag,
			datadirFlag,
			collectDirFlag,
			collectBatchFlag,
			metricsAddrFlag,
			verbosityFlag,
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	setupLogging(ctx.Int(verbosityFlag.Name))

	cfg := params.DefaultFeeConfig()
	if path := ctx.String(configFlag.Name); path != "" {
		var err error
		if cfg, err = params.LoadFeeConfig(path); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	blocks, err := safecast.ToUint64(ctx.Int(blocksFlag.Name))
	if err != nil {
		return fmt.Errorf("invalid --blocks: %w", err)
	}
	txsPerBlock := ctx.Int(txsFlag.Name)
	accounts := ctx.Int(accountsFlag.Name)
	if txsPerBlock <= 0 || accounts <= 0 {
		return fmt.Errorf("--txs and --accounts must be positive")
	}

	oracle, err := feemarket.NewOracle(cfg)
	if err != nil {
		return err
	}

	history, err := openHistory(ctx.String(datadirFlag.Name))
	if err != nil {
		return err
	}
	defer history.Close()

	var (
		statsCh    chan *collector.BlockStats
		statsSink  *collector.Collector
		collectDir = ctx.String(collectDirFlag.Name)
	)
	if collectDir != "" {
		batchSize, err := safecast.ToUint64(ctx.Int(collectBatchFlag.Name))
		if err != nil {
			return fmt.Errorf("invalid --collect.batchsize: %w", err)
		}
		statsCh = make(chan *collector.BlockStats, 64)
		statsSink, err = collector.NewCollector(collector.Config{
			OutputDir: collectDir,
			BatchSize: batchSize,
		}, statsCh)
		if err != nil {
			return err
		}
	}

	l := ledger.NewMemoryLedger()
	processor := feemarket.NewBlockProcessor(cfg, oracle, l, gas.NewMemoryStore(), simAddresses())

	if addr := ctx.String(metricsAddrFlag.Name); addr != "" {
		reg := prometheus.NewRegistry()
		m, err := feemarket.NewMetrics(reg)
		if err != nil {
			return err
		}
		processor.SetMetrics(m)
		go serveMetrics(addr, reg)
	}

	sim := newSimulator(ctx.Int64(seedFlag.Name), cfg, accounts, l)

	log.Info("Starting fee market simulation",
		"blocks", blocks, "txs", txsPerBlock, "accounts", accounts,
		"chainID", cfg.ChainID)

	for number := uint64(1); number <= blocks; number++ {
		res, err := processor.ProcessBlock(number, sim.makeBlock(txsPerBlock))
		if err != nil {
			return fmt.Errorf("block %d: %w", number, err)
		}

		rec, stats := summarize(res)
		if err := history.Put(rec); err != nil {
			return err
		}
		if statsCh != nil {
			statsCh <- stats
		}
	}

	if statsCh != nil {
		close(statsCh)
		statsSink.Wait()
	}

	suggested, err := history.SuggestPrice(20, 60)
	if err != nil {
		return err
	}
	log.Info("Simulation finished",
		"finalPrice", oracle.Price().SingleGas(),
		"suggestedPrice", suggested.SingleGas(),
		"sequencerBalance", l.BalanceOf(simAddresses().Sequencer),
		"burned", l.BalanceOf(simAddresses().BurnSink))
	return nil
}

func setupLogging(verbosity int) {
	usecolor := isatty.IsTerminal(os.Stderr.Fd())
	handler := log.NewTerminalHandlerWithLevel(os.Stderr, log.FromLegacyLevel(verbosity), usecolor)
	log.SetDefault(log.NewLogger(handler))
}

func openHistory(dir string) (*feehistory.Store, error) {
	if dir == "" {
		return feehistory.OpenMemory()
	}
	return feehistory.Open(dir)
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	log.Info("Serving metrics", "addr", fmt.Sprintf("http://%s/metrics", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("Metrics server failed", "err", err)
	}
}

func simAddresses() feemarket.Addresses {
	return feemarket.Addresses{
		BurnSink:   common.HexToAddress("0x0000000000000000000000000000000000000001"),
		ProverPool: common.HexToAddress("0x0000000000000000000000000000000000000002"),
		Sequencer:  common.HexToAddress("0x0000000000000000000000000000000000000003"),
	}
}

// simulator produces a randomized but reproducible transaction load: mostly
// well-funded reads and writes, with a sprinkle of underfunded and
// wrong-chain transactions so the rejection paths stay exercised.
type simulator struct {
	rng    *rand.Rand
	cfg    *params.FeeConfig
	payers []common.Address
}

func newSimulator(seed int64, cfg *params.FeeConfig, accounts int, l *ledger.MemoryLedger) *simulator {
	sim := &simulator{
		rng: rand.New(rand.NewSource(seed)),
		cfg: cfg,
	}
	for i := 0; i < accounts; i++ {
		var addr common.Address
		addr[0] = 0x10
		addr[19] = byte(i)
		sim.payers = append(sim.payers, addr)
		l.Credit(addr, 1_000_000_000)
	}
	l.Credit(simAddresses().Sequencer, 1_000_000_000)
	return sim
}

func (sim *simulator) makeBlock(txs int) []*feemarket.Tx {
	block := make([]*feemarket.Tx, 0, txs)
	for i := 0; i < txs; i++ {
		block = append(block, sim.makeTx())
	}
	return block
}

func (sim *simulator) makeTx() *feemarket.Tx {
	payer := sim.payers[sim.rng.Intn(len(sim.payers))]
	details := feemarket.TxGasDetails{
		MaxFee:             1_000_000 + uint64(sim.rng.Intn(9_000_000)),
		MaxPriorityFeeBips: uint32(sim.rng.Intn(2_000)),
		ChainID:            sim.cfg.ChainID,
	}

	switch sim.rng.Intn(20) {
	case 0:
		// Stale chain ID, as from a replayed transaction.
		details.ChainID++
	case 1:
		// Asking for more than any payer holds.
		details.MaxFee = 2_000_000_000
	case 2:
		// Vector-mode transaction with a tight declared limit.
		limit := gas.Vector{
			5_000 + uint64(sim.rng.Intn(50_000)),
			5_000 + uint64(sim.rng.Intn(50_000)),
			5_000 + uint64(sim.rng.Intn(50_000)),
			5_000 + uint64(sim.rng.Intn(50_000)),
		}
		details.GasLimit = &limit
	}

	reads := sim.rng.Intn(8)
	writes := sim.rng.Intn(4)
	keyspace := byte(sim.rng.Intn(64))
	return &feemarket.Tx{
		Payer:   payer,
		Details: details,
		Body: func(state *gas.MeteredState) error {
			var key gas.AccessKey
			for i := 0; i < reads; i++ {
				key[0] = keyspace
				key[1] = byte(i)
				if _, err := state.Get(key); err != nil {
					return err
				}
			}
			for i := 0; i < writes; i++ {
				key[0] = keyspace
				key[1] = byte(i)
				if err := state.Set(key, []byte{byte(i)}); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// summarize converts a block result into its fee history record and its
// collector stats entry.
func summarize(res *feemarket.BlockResult) (*feehistory.Record, *collector.BlockStats) {
	var refunded uint64
	for _, r := range res.Results {
		if r.Settlement != nil {
			refunded += r.Settlement.Refund
		}
	}
	txCount, err := safecast.ToUint32(len(res.Results))
	if err != nil {
		txCount = ^uint32(0)
	}

	rec := &feehistory.Record{
		BlockNumber:     res.Number,
		Price:           res.Price,
		GasUsed:         res.GasUsed,
		Burned:          res.Burned,
		ProverReward:    res.Prover,
		SequencerReward: res.SeqPay,
		Refunded:        refunded,
		TxCount:         txCount,
	}
	stats := &collector.BlockStats{
		BlockNumber:     res.Number,
		GasUsed:         res.GasUsed,
		Burned:          res.Burned,
		ProverReward:    res.Prover,
		SequencerReward: res.SeqPay,
		Refunded:        refunded,
		TxCount:         txCount,
	}
	return rec, stats
}
