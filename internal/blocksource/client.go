// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package blocksource

import (
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/BoostyLabs/ordindex/internal/logging"
)

// Client is a Source backed by a bitcoin full node over JSON-RPC.
// Transient failures are retried with exponential backoff.
type Client struct {
	rpc *rpcclient.Client
	log *zap.SugaredLogger
}

// NewClient dials the node and verifies the connection.
func NewClient(host, user, pass string) (*Client, error) {
	connCfg := &rpcclient.ConnConfig{
		Host:         host,
		User:         user,
		Pass:         pass,
		HTTPPostMode: true, // bitcoind only supports HTTP POST mode.
		DisableTLS:   true,
	}

	rpc, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, err
	}

	client := &Client{rpc: rpc, log: logging.GetLogger()}
	if _, err = client.BlockCount(); err != nil {
		rpc.Shutdown()
		return nil, err
	}

	return client, nil
}

// Shutdown releases the RPC connection.
func (c *Client) Shutdown() {
	c.rpc.Shutdown()
}

// retryPolicy returns the backoff schedule for transient RPC failures.
func retryPolicy() backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 30 * time.Second
	policy.MaxElapsedTime = 5 * time.Minute

	return policy
}

// retry runs op until it succeeds, a permanent error surfaces, or the
// backoff schedule is exhausted.
func (c *Client) retry(name string, op func() error) error {
	attempt := 0

	return backoff.RetryNotify(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}

		if permanent(err) {
			return backoff.Permanent(err)
		}

		return err
	}, retryPolicy(), func(err error, next time.Duration) {
		c.log.Warnw("rpc call failed, retrying", "call", name, "attempt", attempt, "backoff", next, "error", err)
	})
}

// permanent reports whether the error cannot be fixed by retrying.
func permanent(err error) bool {
	msg := err.Error()

	// bitcoind error codes for missing data; everything network-shaped retries.
	return strings.Contains(msg, "-5:") || strings.Contains(msg, "-8:")
}

// BlockCount returns the height of the best block.
func (c *Client) BlockCount() (uint32, error) {
	var count int64
	err := c.retry("getblockcount", func() (err error) {
		count, err = c.rpc.GetBlockCount()
		return err
	})

	return uint32(count), err
}

// BlockHash returns the hash of the block at height.
func (c *Client) BlockHash(height uint32) (*chainhash.Hash, error) {
	var hash *chainhash.Hash
	err := c.retry("getblockhash", func() (err error) {
		hash, err = c.rpc.GetBlockHash(int64(height))
		return err
	})
	if err != nil && permanent(err) {
		return nil, ErrBlockNotFound
	}

	return hash, err
}

// BestBlockHash returns the hash of the best block.
func (c *Client) BestBlockHash() (*chainhash.Hash, error) {
	var hash *chainhash.Hash
	err := c.retry("getbestblockhash", func() (err error) {
		hash, err = c.rpc.GetBestBlockHash()
		return err
	})

	return hash, err
}

// Block returns the block with the hash.
func (c *Client) Block(hash *chainhash.Hash) (*wire.MsgBlock, error) {
	var block *wire.MsgBlock
	err := c.retry("getblock", func() (err error) {
		block, err = c.rpc.GetBlock(hash)
		return err
	})
	if err != nil && permanent(err) {
		return nil, ErrBlockNotFound
	}

	return block, err
}

// BlockHeader returns the header of the block with the hash.
func (c *Client) BlockHeader(hash *chainhash.Hash) (*wire.BlockHeader, error) {
	var header *wire.BlockHeader
	err := c.retry("getblockheader", func() (err error) {
		header, err = c.rpc.GetBlockHeader(hash)
		return err
	})

	return header, err
}

// BlockHeight returns the height of the block with the hash.
func (c *Client) BlockHeight(hash *chainhash.Hash) (uint32, error) {
	var height uint32
	err := c.retry("getblockheader.verbose", func() error {
		header, err := c.rpc.GetBlockHeaderVerbose(hash)
		if err != nil {
			return err
		}
		height = uint32(header.Height)

		return nil
	})

	return height, err
}

// Transaction returns the raw transaction.
func (c *Client) Transaction(txid *chainhash.Hash) (*wire.MsgTx, error) {
	var tx *wire.MsgTx
	err := c.retry("getrawtransaction", func() (err error) {
		raw, err := c.rpc.GetRawTransaction(txid)
		if err != nil {
			return err
		}
		tx = raw.MsgTx()

		return nil
	})
	if err != nil && permanent(err) {
		return nil, ErrTxNotFound
	}

	return tx, err
}

// TxBlockHash returns the hash of the block containing the transaction.
func (c *Client) TxBlockHash(txid *chainhash.Hash) (*chainhash.Hash, error) {
	var blockHash *chainhash.Hash
	err := c.retry("getrawtransaction.verbose", func() error {
		verbose, err := c.rpc.GetRawTransactionVerbose(txid)
		if err != nil {
			return err
		}

		if verbose.BlockHash != "" {
			blockHash, err = chainhash.NewHashFromStr(verbose.BlockHash)
			if err != nil {
				return err
			}
		}

		return nil
	})

	return blockHash, err
}
