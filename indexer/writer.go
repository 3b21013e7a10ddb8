package indexer

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/jmoiron/sqlx"

	"github.com/pulsedao/pulse-indexer/aggregate"
	"github.com/pulsedao/pulse-indexer/db"
	"github.com/pulsedao/pulse-indexer/dbtypes"
	"github.com/pulsedao/pulse-indexer/events"
	"github.com/pulsedao/pulse-indexer/metrics"
)

type epochKey struct {
	contract common.Address
	epoch    uint64
}

type userEpochKey struct {
	user     events.UserID
	contract common.Address
	epoch    uint64
}

// batchWriter merges deltas into aggregate rows within one transaction.
// Rows are loaded once per batch and cached, so several events touching the
// same entity read their predecessors' in-batch writes instead of the
// pre-batch database state. flush persists the touched rows.
type batchWriter struct {
	tx  *sqlx.Tx
	now int64

	contracts  map[common.Address]*dbtypes.ContractState
	epochs     map[epochKey]*dbtypes.EpochState
	users      map[events.UserID]*dbtypes.UserProfile
	userEpochs map[userEpochKey]*dbtypes.UserEpochState

	dirtyContracts  map[common.Address]bool
	dirtyEpochs     map[epochKey]bool
	dirtyUsers      map[events.UserID]bool
	dirtyUserEpochs map[userEpochKey]bool
}

func newBatchWriter(tx *sqlx.Tx, now int64) *batchWriter {
	return &batchWriter{
		tx:  tx,
		now: now,

		contracts:  map[common.Address]*dbtypes.ContractState{},
		epochs:     map[epochKey]*dbtypes.EpochState{},
		users:      map[events.UserID]*dbtypes.UserProfile{},
		userEpochs: map[userEpochKey]*dbtypes.UserEpochState{},

		dirtyContracts:  map[common.Address]bool{},
		dirtyEpochs:     map[epochKey]bool{},
		dirtyUsers:      map[events.UserID]bool{},
		dirtyUserEpochs: map[userEpochKey]bool{},
	}
}

func (w *batchWriter) getContractState(contract common.Address) (*dbtypes.ContractState, error) {
	if row := w.contracts[contract]; row != nil {
		return row, nil
	}
	row, err := db.GetContractState(contract.Bytes(), w.tx)
	if err != nil {
		return nil, err
	}
	if row == nil {
		row = aggregate.NewContractState(contract.Bytes())
	}
	w.contracts[contract] = row
	return row, nil
}

func (w *batchWriter) getEpochState(contract common.Address, epoch uint64) (*dbtypes.EpochState, error) {
	key := epochKey{contract, epoch}
	if row := w.epochs[key]; row != nil {
		return row, nil
	}
	row, err := db.GetEpochState(contract.Bytes(), epoch, w.tx)
	if err != nil {
		return nil, err
	}
	if row == nil {
		row = aggregate.NewEpochState(contract.Bytes(), epoch)
	}
	w.epochs[key] = row
	return row, nil
}

func (w *batchWriter) getUserProfile(userId events.UserID) (*dbtypes.UserProfile, error) {
	if row := w.users[userId]; row != nil {
		return row, nil
	}
	row, err := db.GetUserProfile(userId.Bytes(), w.tx)
	if err != nil {
		return nil, err
	}
	if row == nil {
		row = aggregate.NewUserProfile(userId.Bytes())
	}
	w.users[userId] = row
	return row, nil
}

func (w *batchWriter) getUserEpochState(userId events.UserID, contract common.Address, epoch uint64) (*dbtypes.UserEpochState, error) {
	key := userEpochKey{userId, contract, epoch}
	if row := w.userEpochs[key]; row != nil {
		return row, nil
	}
	row, err := db.GetUserEpochState(userId.Bytes(), contract.Bytes(), epoch, w.tx)
	if err != nil {
		return nil, err
	}
	if row == nil {
		row = aggregate.NewUserEpochState(userId.Bytes(), contract.Bytes(), epoch)
	}
	w.userEpochs[key] = row
	return row, nil
}

// applyDeltas merges one event's coalesced deltas into the cached rows.
func (w *batchWriter) applyDeltas(deltas *aggregate.Deltas) error {
	for _, delta := range deltas.Contracts {
		row, err := w.getContractState(delta.Contract)
		if err != nil {
			return err
		}
		changed, err := aggregate.ApplyContractDelta(row, delta, w.now)
		if err != nil {
			return err
		}
		if changed {
			w.dirtyContracts[delta.Contract] = true
		}
	}

	for _, delta := range deltas.Epochs {
		row, err := w.getEpochState(delta.Contract, delta.Epoch)
		if err != nil {
			return err
		}
		changed, err := aggregate.ApplyEpochDelta(row, delta, w.now)
		if err != nil {
			return err
		}
		if changed {
			w.dirtyEpochs[epochKey{delta.Contract, delta.Epoch}] = true
		}
	}

	for _, delta := range deltas.Users {
		row, err := w.getUserProfile(delta.UserID)
		if err != nil {
			return err
		}
		changed, err := aggregate.ApplyUserDelta(row, delta, w.now)
		if err != nil {
			return err
		}
		if changed {
			w.dirtyUsers[delta.UserID] = true
		}
	}

	for _, delta := range deltas.UserEpochs {
		row, err := w.getUserEpochState(delta.UserID, delta.Contract, delta.Epoch)
		if err != nil {
			return err
		}
		changed, err := aggregate.ApplyUserEpochDelta(row, delta, w.now)
		if err != nil {
			return err
		}
		if changed {
			w.dirtyUserEpochs[userEpochKey{delta.UserID, delta.Contract, delta.Epoch}] = true
		}
	}

	return nil
}

// flush upserts every touched row. Untouched cached rows (all deltas were
// replays) are left alone.
func (w *batchWriter) flush() error {
	for contract := range w.dirtyContracts {
		if err := db.UpsertContractState(w.contracts[contract], w.tx); err != nil {
			return err
		}
		metrics.EntityUpserts.WithLabelValues("contract_state").Inc()
	}
	for key := range w.dirtyEpochs {
		if err := db.UpsertEpochState(w.epochs[key], w.tx); err != nil {
			return err
		}
		metrics.EntityUpserts.WithLabelValues("epoch_state").Inc()
	}
	for userId := range w.dirtyUsers {
		if err := db.UpsertUserProfile(w.users[userId], w.tx); err != nil {
			return err
		}
		metrics.EntityUpserts.WithLabelValues("user_profile").Inc()
	}
	for key := range w.dirtyUserEpochs {
		if err := db.UpsertUserEpochState(w.userEpochs[key], w.tx); err != nil {
			return err
		}
		metrics.EntityUpserts.WithLabelValues("user_epoch_state").Inc()
	}
	return nil
}
