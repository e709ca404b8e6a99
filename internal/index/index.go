// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package index

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"

	"github.com/BoostyLabs/ordindex/bitcoin"
	"github.com/BoostyLabs/ordindex/bitcoin/ord"
	"github.com/BoostyLabs/ordindex/bitcoin/ord/inscriptions"
	"github.com/BoostyLabs/ordindex/bitcoin/ord/runes"
	"github.com/BoostyLabs/ordindex/bitcoin/ord/sat"
	"github.com/BoostyLabs/ordindex/bitcoin/utils"
	"github.com/BoostyLabs/ordindex/internal/blocksource"
	"github.com/BoostyLabs/ordindex/internal/config"
	"github.com/BoostyLabs/ordindex/internal/logging"
	"github.com/BoostyLabs/ordindex/internal/store"
)

// ErrSchemaMismatch defines that the on-disk index was written by an
// incompatible version and must be rebuilt.
var ErrSchemaMismatch = errors.New("incompatible index schema")

// Index owns the store and drives protocol interpretation over it.
type Index struct {
	db     *store.DB
	source blocksource.Source
	chain  ord.Chain
	log    *zap.SugaredLogger

	indexSats         bool
	indexRunes        bool
	indexTransactions bool
	indexAddresses    bool
	commitInterval    uint32
	heightLimit       uint32
	reorgHorizon      uint32
	rpcLimit          int

	hidden map[string]struct{}

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// Open opens the index at the configured path, guarding the schema version
// and the feature flag combination it was built with.
func Open(cfg *config.Config, source blocksource.Source) (*Index, error) {
	db, err := store.Open(cfg.IndexPath)
	if err != nil {
		return nil, err
	}

	index := &Index{
		db:                db,
		source:            source,
		chain:             cfg.Chain,
		log:               logging.GetLogger(),
		indexSats:         cfg.Index.Sats,
		indexRunes:        cfg.Index.Runes,
		indexTransactions: cfg.Index.Transactions,
		indexAddresses:    cfg.Index.Addresses,
		commitInterval:    cfg.Index.CommitInterval,
		heightLimit:       cfg.Index.HeightLimit,
		reorgHorizon:      cfg.Index.ReorgHorizon,
		rpcLimit:          cfg.Bitcoin.RPCLimit,
		hidden:            make(map[string]struct{}, len(cfg.Index.HiddenInscriptions)),
		shutdown:          make(chan struct{}),
	}

	for _, id := range cfg.Index.HiddenInscriptions {
		index.hidden[id] = struct{}{}
	}

	if err = index.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return index, nil
}

// Close releases the store.
func (i *Index) Close() error {
	return i.db.Close()
}

// initSchema writes the schema version and feature flags on first open and
// verifies them afterwards.
func (i *Index) initSchema() error {
	wtx := i.db.Begin()
	defer wtx.Discard()

	version, err := getStat(wtx, statSchemaVersion)
	if err != nil {
		return err
	}

	flags := map[byte]bool{
		statIndexSats:         i.indexSats,
		statIndexRunes:        i.indexRunes,
		statIndexTransactions: i.indexTransactions,
		statIndexAddresses:    i.indexAddresses,
	}

	if version == 0 {
		if err = setStat(wtx, statSchemaVersion, SchemaVersion); err != nil {
			return err
		}
		for stat, enabled := range flags {
			var v uint64
			if enabled {
				v = 1
			}
			if err = setStat(wtx, stat, v); err != nil {
				return err
			}
		}

		return wtx.Commit()
	}

	if version != SchemaVersion {
		return fmt.Errorf("%w: index version %d, supported version %d", ErrSchemaMismatch, version, SchemaVersion)
	}

	for stat, enabled := range flags {
		stored, err := getStat(wtx, stat)
		if err != nil {
			return err
		}
		if (stored == 1) != enabled {
			return fmt.Errorf("%w: index flag %d changed, delete the index and reindex", ErrSchemaMismatch, stat)
		}
	}

	return nil
}

// shuttingDown reports whether Shutdown was requested.
func (i *Index) shuttingDown() bool {
	select {
	case <-i.shutdown:
		return true
	default:
		return false
	}
}

// IsHidden reports whether the inscription is configured as hidden.
func (i *Index) IsHidden(id inscriptions.ID) bool {
	_, ok := i.hidden[id.String()]

	return ok
}

// getStat reads a statistics row; missing rows read as zero.
func getStat(wtx *store.WriteTxn, stat byte) (uint64, error) {
	raw, err := wtx.Get(tableStatistics, []byte{stat})
	if err != nil || raw == nil {
		return 0, err
	}

	return parseU64(raw), nil
}

// setStat writes a statistics row.
func setStat(wtx *store.WriteTxn, stat byte, value uint64) error {
	return wtx.Set(tableStatistics, []byte{stat}, u64Key(value))
}

// loadCounters reads the writer's mutable totals.
func (i *Index) loadCounters(wtx *store.WriteTxn) (counters, error) {
	var (
		c   counters
		err error
	)
	for stat, target := range map[byte]*uint64{
		statBlessedInscriptions: &c.blessed,
		statCursedInscriptions:  &c.cursed,
		statLostSats:            &c.lostSats,
		statUnboundInscriptions: &c.unbound,
		statRunes:               &c.runes,
		statReservedRunes:       &c.reservedRunes,
	} {
		if *target, err = getStat(wtx, stat); err != nil {
			return c, err
		}
	}

	return c, nil
}

// storeCounters persists the writer's mutable totals.
func (i *Index) storeCounters(wtx *store.WriteTxn, c counters) error {
	for stat, value := range map[byte]uint64{
		statBlessedInscriptions: c.blessed,
		statCursedInscriptions:  c.cursed,
		statLostSats:            c.lostSats,
		statUnboundInscriptions: c.unbound,
		statRunes:               c.runes,
		statReservedRunes:       c.reservedRunes,
	} {
		if err := setStat(wtx, stat, value); err != nil {
			return err
		}
	}

	return nil
}

// Statistic reads a committed statistics row by its public name.
func (i *Index) Statistic(stat byte) (uint64, error) {
	var value uint64
	err := i.db.View(func(rtx *store.ReadTxn) error {
		raw, err := rtx.Get(tableStatistics, []byte{stat})
		if err != nil || raw == nil {
			return err
		}
		value = parseU64(raw)

		return nil
	})

	return value, err
}

// Public statistic names for external monitoring.
const (
	StatBlessedInscriptions  = statBlessedInscriptions
	StatCursedInscriptions   = statCursedInscriptions
	StatLostSats             = statLostSats
	StatUnboundInscriptions  = statUnboundInscriptions
	StatRunes                = statRunes
	StatUnrecoverablyReorged = statUnrecoverablyReorged
)

// BlockHashAt returns the committed block hash at the height.
func (i *Index) BlockHashAt(height uint32) (*chainhash.Hash, error) {
	var hash *chainhash.Hash
	err := i.db.View(func(rtx *store.ReadTxn) error {
		raw, err := rtx.Get(tableHeightToBlockHash, u32Key(height))
		if err != nil || raw == nil {
			return err
		}
		hash = mustHash(raw)

		return nil
	})

	return hash, err
}

// Height returns the height of the last committed block, or false when the
// index is empty.
func (i *Index) Height() (uint32, bool, error) {
	var (
		next  uint64
		found bool
	)
	err := i.db.View(func(rtx *store.ReadTxn) error {
		raw, err := rtx.Get(tableStatistics, []byte{statNextHeight})
		if err != nil || raw == nil {
			return err
		}
		next = parseU64(raw)
		found = next > 0

		return nil
	})
	if !found {
		return 0, false, err
	}

	return uint32(next - 1), true, err
}

// InscriptionByID returns the committed entry of the inscription.
func (i *Index) InscriptionByID(id inscriptions.ID) (*InscriptionEntry, error) {
	return i.inscriptionEntry(tableIDToEntry, idKey(id))
}

// InscriptionByNumber returns the entry of the inscription with the number.
func (i *Index) InscriptionByNumber(number int64) (*InscriptionEntry, error) {
	return i.inscriptionByRef(tableNumberToID, i64Key(number))
}

// InscriptionBySequence returns the entry of the inscription with the
// sequence number.
func (i *Index) InscriptionBySequence(sequence uint64) (*InscriptionEntry, error) {
	return i.inscriptionByRef(tableSequenceToID, u64Key(sequence))
}

// inscriptionByRef resolves an id reference table row into its entry.
func (i *Index) inscriptionByRef(table store.Table, key []byte) (*InscriptionEntry, error) {
	var entry *InscriptionEntry
	err := i.db.View(func(rtx *store.ReadTxn) error {
		ref, err := rtx.Get(table, key)
		if err != nil || ref == nil {
			return err
		}

		raw, err := rtx.Get(tableIDToEntry, ref)
		if err != nil || raw == nil {
			return err
		}

		entry, err = ParseInscriptionEntry(raw)

		return err
	})

	return entry, err
}

// inscriptionEntry reads and parses one entry row.
func (i *Index) inscriptionEntry(table store.Table, key []byte) (*InscriptionEntry, error) {
	var entry *InscriptionEntry
	err := i.db.View(func(rtx *store.ReadTxn) error {
		raw, err := rtx.Get(table, key)
		if err != nil || raw == nil {
			return err
		}

		entry, err = ParseInscriptionEntry(raw)

		return err
	})

	return entry, err
}

// SatPointOf returns the current location of the inscription.
func (i *Index) SatPointOf(id inscriptions.ID) (*SatPoint, error) {
	var satPoint *SatPoint
	err := i.db.View(func(rtx *store.ReadTxn) error {
		raw, err := rtx.Get(tableIDToSatpoint, idKey(id))
		if err != nil || raw == nil {
			return err
		}

		parsed := parseSatpointKey(raw)
		satPoint = &parsed

		return nil
	})

	return satPoint, err
}

// InscriptionsOnOutput returns the ids of the inscriptions located on the
// outpoint in offset order.
func (i *Index) InscriptionsOnOutput(outpoint wire.OutPoint) ([]inscriptions.ID, error) {
	var ids []inscriptions.ID
	err := i.db.View(func(rtx *store.ReadTxn) error {
		return rtx.Iterate(tableSatpointToID, outpointKey(outpoint), func(key, _ []byte) (bool, error) {
			if len(key) != 8+36 {
				return false, errCorruptEntry
			}
			ids = append(ids, parseIDKey(key[8:]))

			return true, nil
		})
	})

	return ids, err
}

// InscriptionsOnSat returns the ids inscribed on the satoshi in creation order.
func (i *Index) InscriptionsOnSat(s sat.Sat) ([]inscriptions.ID, error) {
	return i.idList(tableSatToInscription, u64Key(s.N()))
}

// ChildrenOf returns the ids of the inscriptions claiming the parent.
func (i *Index) ChildrenOf(parent inscriptions.ID) ([]inscriptions.ID, error) {
	return i.idList(tableParentToChild, idKey(parent))
}

// idList reads a multimap of inscription ids.
func (i *Index) idList(table store.Table, key []byte) ([]inscriptions.ID, error) {
	var ids []inscriptions.ID
	err := i.db.View(func(rtx *store.ReadTxn) error {
		values, err := rtx.List(table, key)
		if err != nil {
			return err
		}
		for _, value := range values {
			if len(value) != 36 {
				return errCorruptEntry
			}
			ids = append(ids, parseIDKey(value))
		}

		return nil
	})

	return ids, err
}

// RuneByID returns the committed entry of the rune.
func (i *Index) RuneByID(id runes.RuneID) (*RuneEntry, error) {
	return i.runeEntry(id.Bytes())
}

// RuneByName returns the committed entry of the rune with the name.
func (i *Index) RuneByName(rune_ *runes.Rune) (*RuneEntry, error) {
	var entry *RuneEntry
	err := i.db.View(func(rtx *store.ReadTxn) error {
		ref, err := rtx.Get(tableRuneToRuneID, runeNameKey(rune_))
		if err != nil || ref == nil {
			return err
		}

		raw, err := rtx.Get(tableRuneIDToEntry, ref)
		if err != nil || raw == nil {
			return err
		}

		entry, err = ParseRuneEntry(raw)

		return err
	})

	return entry, err
}

// runeEntry reads and parses one rune entry row.
func (i *Index) runeEntry(key []byte) (*RuneEntry, error) {
	var entry *RuneEntry
	err := i.db.View(func(rtx *store.ReadTxn) error {
		raw, err := rtx.Get(tableRuneIDToEntry, key)
		if err != nil || raw == nil {
			return err
		}

		entry, err = ParseRuneEntry(raw)

		return err
	})

	return entry, err
}

// RuneBalancesOf returns the rune balances held by the outpoint.
func (i *Index) RuneBalancesOf(outpoint wire.OutPoint) ([]RuneBalance, error) {
	var balances []RuneBalance
	err := i.db.View(func(rtx *store.ReadTxn) error {
		raw, err := rtx.Get(tableOutpointToBalances, outpointKey(outpoint))
		if err != nil || raw == nil {
			return err
		}

		balances, err = parseBalances(raw)

		return err
	})

	return balances, err
}

// SatRangesOf returns the satoshi ranges held by the outpoint, when sat
// indexing is enabled.
func (i *Index) SatRangesOf(outpoint wire.OutPoint) ([]SatRange, error) {
	var ranges []SatRange
	err := i.db.View(func(rtx *store.ReadTxn) error {
		raw, err := rtx.Get(tableOutpointToSatRange, outpointKey(outpoint))
		if err != nil || raw == nil {
			return err
		}

		ranges, err = parseSatRanges(raw)

		return err
	})

	return ranges, err
}

// OutputInfo assembles the wallet-facing view of an unspent output: its
// value, script, rune balances and inscriptions.
func (i *Index) OutputInfo(outpoint wire.OutPoint) (*bitcoin.UTXO, error) {
	utxo := &bitcoin.UTXO{
		TxHash: outpoint.Hash.String(),
		Index:  outpoint.Index,
		Amount: big.NewInt(0),
	}

	err := i.db.View(func(rtx *store.ReadTxn) error {
		if raw, err := rtx.Get(tableOutpointToValue, outpointKey(outpoint)); err != nil {
			return err
		} else if raw != nil {
			utxo.Amount = new(big.Int).SetUint64(parseU64(raw))
		}

		if raw, err := rtx.Get(tableOutpointToScript, outpointKey(outpoint)); err != nil {
			return err
		} else if raw != nil {
			utxo.Script = raw
			utxo.Address = utils.ExtractAddress(raw, i.chain.Params())
		}

		raw, err := rtx.Get(tableOutpointToBalances, outpointKey(outpoint))
		if err != nil || raw == nil {
			return err
		}

		balances, err := parseBalances(raw)
		if err != nil {
			return err
		}
		for _, balance := range balances {
			utxo.Runes = append(utxo.Runes, bitcoin.RuneUTXO{
				RuneID: balance.RuneID,
				Amount: balance.Amount,
			})
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	ids, err := i.InscriptionsOnOutput(outpoint)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		id := id
		utxo.Inscriptions = append(utxo.Inscriptions, &id)
	}

	return utxo, nil
}

// OutpointsByScript returns the unspent outpoints paying the script, when
// address indexing is enabled.
func (i *Index) OutpointsByScript(script []byte) ([]wire.OutPoint, error) {
	var outpoints []wire.OutPoint
	err := i.db.View(func(rtx *store.ReadTxn) error {
		values, err := rtx.List(tableScriptToOutpoint, chainhash.HashB(script))
		if err != nil {
			return err
		}
		for _, value := range values {
			if len(value) != 36 {
				return errCorruptEntry
			}
			outpoints = append(outpoints, parseOutpointKey(value))
		}

		return nil
	})

	return outpoints, err
}

// Transaction returns the stored raw transaction, when transaction indexing
// is enabled.
func (i *Index) Transaction(txid chainhash.Hash) (*wire.MsgTx, error) {
	var tx *wire.MsgTx
	err := i.db.View(func(rtx *store.ReadTxn) error {
		raw, err := rtx.Get(tableTransactions, txid[:])
		if err != nil || raw == nil {
			return err
		}

		tx = wire.NewMsgTx(0)

		return tx.Deserialize(bytes.NewReader(raw))
	})

	return tx, err
}

// mustHash converts stored hash bytes back into a chainhash.
func mustHash(raw []byte) *chainhash.Hash {
	hash, _ := chainhash.NewHash(raw)

	return hash
}
