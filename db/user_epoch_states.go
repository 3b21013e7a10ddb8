package db

import (
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/pulsedao/pulse-indexer/dbtypes"
)

func GetUserEpochState(userId []byte, contract []byte, epoch uint64, tx *sqlx.Tx) (*dbtypes.UserEpochState, error) {
	state := dbtypes.UserEpochState{}
	err := tx.Get(&state, `
	SELECT
		user_id, contract, epoch, total_deposited, total_claimed, total_algo, total_vote,
		latest_score, last_event_ord, updated_at
	FROM user_epoch_states
	WHERE user_id = $1 AND contract = $2 AND epoch = $3
	`, userId, contract, epoch)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func UpsertUserEpochState(state *dbtypes.UserEpochState, tx *sqlx.Tx) error {
	_, err := tx.Exec(EngineQuery(map[dbtypes.DBEngineType]string{
		dbtypes.DBEnginePgsql: `
			INSERT INTO user_epoch_states (
				user_id, contract, epoch, total_deposited, total_claimed, total_algo, total_vote,
				latest_score, last_event_ord, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (user_id, contract, epoch) DO UPDATE SET
				total_deposited = excluded.total_deposited,
				total_claimed = excluded.total_claimed,
				total_algo = excluded.total_algo,
				total_vote = excluded.total_vote,
				latest_score = excluded.latest_score,
				last_event_ord = excluded.last_event_ord,
				updated_at = excluded.updated_at`,
		dbtypes.DBEngineSqlite: `
			INSERT OR REPLACE INTO user_epoch_states (
				user_id, contract, epoch, total_deposited, total_claimed, total_algo, total_vote,
				latest_score, last_event_ord, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
	}),
		state.UserId, state.Contract, state.Epoch, state.TotalDeposited, state.TotalClaimed,
		state.TotalAlgo, state.TotalVote, state.LatestScore, state.LastEventOrd, state.UpdatedAt)
	if err != nil {
		return err
	}
	return nil
}

func GetUserEpochStates(userId []byte, contract []byte, firstEpoch uint64, limit uint32) []*dbtypes.UserEpochState {
	states := []*dbtypes.UserEpochState{}
	err := ReaderDb.Select(&states, `
	SELECT
		user_id, contract, epoch, total_deposited, total_claimed, total_algo, total_vote,
		latest_score, last_event_ord, updated_at
	FROM user_epoch_states
	WHERE user_id = $1 AND contract = $2 AND epoch <= $3
	ORDER BY epoch DESC
	LIMIT $4
	`, userId, contract, firstEpoch, limit)
	if err != nil {
		logger.Errorf("Error while fetching user epoch states: %v", err)
		return nil
	}
	return states
}
