package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/mitchellh/mapstructure"

	"github.com/pulsedao/pulse-indexer/dbtypes"
)

func GetUserProfile(userId []byte, tx *sqlx.Tx) (*dbtypes.UserProfile, error) {
	profile := dbtypes.UserProfile{}
	err := tx.Get(&profile, `
	SELECT
		user_id, display_name, bio, interests, linked_address, linked_by_admin,
		total_deposited, total_claimed, latest_score, last_event_ord, updated_at
	FROM user_profiles
	WHERE user_id = $1
	`, userId)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func UpsertUserProfile(profile *dbtypes.UserProfile, tx *sqlx.Tx) error {
	_, err := tx.Exec(EngineQuery(map[dbtypes.DBEngineType]string{
		dbtypes.DBEnginePgsql: `
			INSERT INTO user_profiles (
				user_id, display_name, bio, interests, linked_address, linked_by_admin,
				total_deposited, total_claimed, latest_score, last_event_ord, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (user_id) DO UPDATE SET
				display_name = excluded.display_name,
				bio = excluded.bio,
				interests = excluded.interests,
				linked_address = excluded.linked_address,
				linked_by_admin = excluded.linked_by_admin,
				total_deposited = excluded.total_deposited,
				total_claimed = excluded.total_claimed,
				latest_score = excluded.latest_score,
				last_event_ord = excluded.last_event_ord,
				updated_at = excluded.updated_at`,
		dbtypes.DBEngineSqlite: `
			INSERT OR REPLACE INTO user_profiles (
				user_id, display_name, bio, interests, linked_address, linked_by_admin,
				total_deposited, total_claimed, latest_score, last_event_ord, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
	}),
		profile.UserId, profile.DisplayName, profile.Bio, profile.Interests, profile.LinkedAddress,
		profile.LinkedByAdmin, profile.TotalDeposited, profile.TotalClaimed, profile.LatestScore,
		profile.LastEventOrd, profile.UpdatedAt)
	if err != nil {
		return err
	}
	return nil
}

// GetUserProfilesWithEpochStates returns profiles together with their epoch
// rows for one topic contract, newest epoch first.
func GetUserProfilesWithEpochStates(contract []byte, epoch uint64, limit uint32) []*dbtypes.UserProfileWithEpochs {
	results := []*dbtypes.UserProfileWithEpochs{}

	epochFields := []string{
		"user_id", "contract", "epoch", "total_deposited", "total_claimed", "total_algo", "total_vote",
		"latest_score", "last_event_ord", "updated_at",
	}

	var sqlStr strings.Builder
	fmt.Fprintf(&sqlStr, `SELECT user_profiles.user_id, user_profiles.display_name`)
	for _, field := range epochFields {
		fmt.Fprintf(&sqlStr, ", user_epoch_states.%v AS \"epoch_state.%v\"", field, field)
	}
	fmt.Fprintf(&sqlStr, `
	FROM user_profiles
	LEFT JOIN user_epoch_states ON user_epoch_states.user_id = user_profiles.user_id
		AND user_epoch_states.contract = $1 AND user_epoch_states.epoch = $2
	ORDER BY user_profiles.user_id ASC
	LIMIT $3
	`)

	rows, err := ReaderDb.Query(sqlStr.String(), contract, epoch, limit)
	if err != nil {
		logger.Errorf("Error while fetching user profiles with epoch states: %v", err)
		return nil
	}
	defer rows.Close()

	scanArgs := make([]interface{}, len(epochFields)+2)
	for rows.Next() {
		scanVals := make([]interface{}, len(epochFields)+2)
		for i := range scanArgs {
			scanArgs[i] = &scanVals[i]
		}
		err := rows.Scan(scanArgs...)
		if err != nil {
			logger.Errorf("Error while parsing user profile row: %v", err)
			continue
		}

		result := dbtypes.UserProfileWithEpochs{}
		result.UserId, _ = scanVals[0].([]byte)
		result.DisplayName, _ = scanVals[1].(string)

		if scanVals[2] != nil {
			epochValMap := map[string]interface{}{}
			for idx, fName := range epochFields {
				epochValMap[fName] = scanVals[idx+2]
			}
			var epochState dbtypes.UserEpochState
			cfg := &mapstructure.DecoderConfig{
				Metadata:         nil,
				Result:           &epochState,
				TagName:          "db",
				WeaklyTypedInput: true,
			}
			decoder, _ := mapstructure.NewDecoder(cfg)
			decoder.Decode(epochValMap)
			result.EpochState = &epochState
		}

		results = append(results, &result)
	}

	return results
}
