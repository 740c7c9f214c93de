// Package collector batches per-block fee settlement statistics and writes
// them to disk asynchronously, off the block processing path.
package collector

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/rollupgas/feemarket/gas"
)

// batchFilenameFormat defines the naming pattern for batch files.
// Format: fees_batch_<batch_number>_<timestamp>.rlp
const batchFilenameFormat = "fees_batch_%010d_%d.rlp"

var (
	ErrOutputDirRequired = errors.New("output directory is required")
	ErrBatchSizeRequired = errors.New("batch size must be greater than zero")
	ErrCreateOutputDir   = errors.New("failed to create output directory")
	ErrEncodeBatch       = errors.New("failed to encode batch")
	ErrWriteBatchFile    = errors.New("failed to write batch file")
)

// BlockStats is the settlement summary of one block. All fields are unsigned
// integers so the RLP encoding stays canonical.
type BlockStats struct {
	BlockNumber     uint64
	GasUsed         gas.Vector
	Burned          uint64
	ProverReward    uint64
	SequencerReward uint64
	Refunded        uint64
	TxCount         uint32
}

// Batch is the on-disk unit: a timestamp plus the buffered block stats.
type Batch struct {
	Timestamp uint64
	Stats     []*BlockStats
}

// Config holds the configuration for the fee stats collector.
type Config struct {
	OutputDir string
	BatchSize uint64
}

// Collector receives BlockStats through a channel, buffers them in memory,
// and writes RLP-encoded batches to disk when the buffer fills or the input
// channel closes.
type Collector struct {
	config   Config
	input    <-chan *BlockStats
	wg       sync.WaitGroup
	buffer   []*BlockStats
	batchNum uint64
	mu       sync.Mutex
}

// NewCollector validates the config, creates the output directory, and starts
// the background processing goroutine. The collector takes ownership of the
// input channel: close it when done sending, then call Wait.
func NewCollector(config Config, input <-chan *BlockStats) (*Collector, error) {
	if config.OutputDir == "" {
		return nil, ErrOutputDirRequired
	}

	if config.BatchSize == 0 {
		return nil, ErrBatchSizeRequired
	}

	if err := os.MkdirAll(config.OutputDir, 0755); err != nil {
		return nil, ErrCreateOutputDir
	}

	c := &Collector{
		config: config,
		input:  input,
		buffer: make([]*BlockStats, 0, config.BatchSize),
	}

	c.wg.Add(1)
	go c.processData()

	return c, nil
}

// processData is the main loop of the background goroutine. It buffers
// incoming stats and flushes full batches; a closed channel flushes the tail.
func (c *Collector) processData() {
	defer c.wg.Done()

	for stats := range c.input {
		c.mu.Lock()
		c.buffer = append(c.buffer, stats)

		if uint64(len(c.buffer)) >= c.config.BatchSize {
			if err := c.flushBatch(); err != nil {
				log.Error("Failed to flush fee stats batch", "error", err)
			}
		}
		c.mu.Unlock()
	}

	c.mu.Lock()
	if len(c.buffer) > 0 {
		if err := c.flushBatch(); err != nil {
			log.Error("Failed to flush final fee stats batch", "error", err)
		}
	}
	c.mu.Unlock()
}

// flushBatch writes the current buffer to a uniquely named RLP file, then
// clears the buffer and bumps the batch counter. Callers hold c.mu.
func (c *Collector) flushBatch() error {
	if len(c.buffer) == 0 {
		return nil
	}

	batch := &Batch{
		Timestamp: uint64(time.Now().Unix()),
		Stats:     make([]*BlockStats, len(c.buffer)),
	}
	copy(batch.Stats, c.buffer)

	data, err := rlp.EncodeToBytes(batch)
	if err != nil {
		return fmt.Errorf("%s: %w", ErrEncodeBatch, err)
	}

	filename := fmt.Sprintf(batchFilenameFormat, c.batchNum, time.Now().Unix())
	path := filepath.Join(c.config.OutputDir, filename)

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("%s: %w", ErrWriteBatchFile, err)
	}

	log.Info("Wrote fee stats batch",
		"file", filename,
		"count", len(c.buffer),
		"size_bytes", len(data))

	c.buffer = c.buffer[:0]
	c.batchNum++

	return nil
}

// Wait blocks until the collector has drained its input channel and written
// every batch. Call it after closing the input channel.
func (c *Collector) Wait() {
	c.wg.Wait()
	log.Info("Fee stats collector stopped")
}
