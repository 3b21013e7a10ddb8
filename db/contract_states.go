package db

import (
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/pulsedao/pulse-indexer/dbtypes"
)

func GetContractState(contract []byte, tx *sqlx.Tx) (*dbtypes.ContractState, error) {
	state := dbtypes.ContractState{}
	err := tx.Get(&state, `
	SELECT
		contract, creator, name, description, keywords, current_epoch, epoch_start_time, epoch_end_time,
		total_deposited, total_claimed, total_algo, total_vote, latest_score, last_event_ord, updated_at
	FROM contract_states
	WHERE contract = $1
	`, contract)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func UpsertContractState(state *dbtypes.ContractState, tx *sqlx.Tx) error {
	_, err := tx.Exec(EngineQuery(map[dbtypes.DBEngineType]string{
		dbtypes.DBEnginePgsql: `
			INSERT INTO contract_states (
				contract, creator, name, description, keywords, current_epoch, epoch_start_time, epoch_end_time,
				total_deposited, total_claimed, total_algo, total_vote, latest_score, last_event_ord, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT (contract) DO UPDATE SET
				creator = excluded.creator,
				name = excluded.name,
				description = excluded.description,
				keywords = excluded.keywords,
				current_epoch = excluded.current_epoch,
				epoch_start_time = excluded.epoch_start_time,
				epoch_end_time = excluded.epoch_end_time,
				total_deposited = excluded.total_deposited,
				total_claimed = excluded.total_claimed,
				total_algo = excluded.total_algo,
				total_vote = excluded.total_vote,
				latest_score = excluded.latest_score,
				last_event_ord = excluded.last_event_ord,
				updated_at = excluded.updated_at`,
		dbtypes.DBEngineSqlite: `
			INSERT OR REPLACE INTO contract_states (
				contract, creator, name, description, keywords, current_epoch, epoch_start_time, epoch_end_time,
				total_deposited, total_claimed, total_algo, total_vote, latest_score, last_event_ord, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
	}),
		state.Contract, state.Creator, state.Name, state.Description, state.Keywords, state.CurrentEpoch,
		state.EpochStartTime, state.EpochEndTime, state.TotalDeposited, state.TotalClaimed, state.TotalAlgo,
		state.TotalVote, state.LatestScore, state.LastEventOrd, state.UpdatedAt)
	if err != nil {
		return err
	}
	return nil
}

func GetContractStates(offset uint64, limit uint32) []*dbtypes.ContractState {
	states := []*dbtypes.ContractState{}
	err := ReaderDb.Select(&states, `
	SELECT
		contract, creator, name, description, keywords, current_epoch, epoch_start_time, epoch_end_time,
		total_deposited, total_claimed, total_algo, total_vote, latest_score, last_event_ord, updated_at
	FROM contract_states
	ORDER BY contract ASC
	LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		logger.Errorf("Error while fetching contract states: %v", err)
		return nil
	}
	return states
}
