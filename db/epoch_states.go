package db

import (
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/pulsedao/pulse-indexer/dbtypes"
)

func GetEpochState(contract []byte, epoch uint64, tx *sqlx.Tx) (*dbtypes.EpochState, error) {
	state := dbtypes.EpochState{}
	err := tx.Get(&state, `
	SELECT
		contract, epoch, start_time, end_time, total_deposited, total_claimed, total_algo, total_vote,
		latest_score, last_event_ord, updated_at
	FROM epoch_states
	WHERE contract = $1 AND epoch = $2
	`, contract, epoch)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func UpsertEpochState(state *dbtypes.EpochState, tx *sqlx.Tx) error {
	_, err := tx.Exec(EngineQuery(map[dbtypes.DBEngineType]string{
		dbtypes.DBEnginePgsql: `
			INSERT INTO epoch_states (
				contract, epoch, start_time, end_time, total_deposited, total_claimed, total_algo, total_vote,
				latest_score, last_event_ord, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (contract, epoch) DO UPDATE SET
				start_time = excluded.start_time,
				end_time = excluded.end_time,
				total_deposited = excluded.total_deposited,
				total_claimed = excluded.total_claimed,
				total_algo = excluded.total_algo,
				total_vote = excluded.total_vote,
				latest_score = excluded.latest_score,
				last_event_ord = excluded.last_event_ord,
				updated_at = excluded.updated_at`,
		dbtypes.DBEngineSqlite: `
			INSERT OR REPLACE INTO epoch_states (
				contract, epoch, start_time, end_time, total_deposited, total_claimed, total_algo, total_vote,
				latest_score, last_event_ord, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
	}),
		state.Contract, state.Epoch, state.StartTime, state.EndTime, state.TotalDeposited, state.TotalClaimed,
		state.TotalAlgo, state.TotalVote, state.LatestScore, state.LastEventOrd, state.UpdatedAt)
	if err != nil {
		return err
	}
	return nil
}

func GetEpochStates(contract []byte, firstEpoch uint64, limit uint32) []*dbtypes.EpochState {
	states := []*dbtypes.EpochState{}
	err := ReaderDb.Select(&states, `
	SELECT
		contract, epoch, start_time, end_time, total_deposited, total_claimed, total_algo, total_vote,
		latest_score, last_event_ord, updated_at
	FROM epoch_states
	WHERE contract = $1 AND epoch <= $2
	ORDER BY epoch DESC
	LIMIT $3
	`, contract, firstEpoch, limit)
	if err != nil {
		logger.Errorf("Error while fetching epoch states: %v", err)
		return nil
	}
	return states
}
