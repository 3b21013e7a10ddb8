package db

import (
	"bytes"
	"database/sql"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsedao/pulse-indexer/dbtypes"
)

// initTestDB points the package at a fresh in-memory sqlite database with the
// embedded schema applied.
func initTestDB(t *testing.T) {
	t.Helper()

	dbConn, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// every sqlite :memory: connection is its own database, pin to one
	dbConn.SetMaxOpenConns(1)

	DbEngine = dbtypes.DBEngineSqlite
	writerDb = dbConn
	ReaderDb = dbConn
	require.NoError(t, ApplyEmbeddedDbSchema(-2))

	t.Cleanup(func() {
		dbConn.Close()
	})
}

func testUserId(b byte) []byte {
	return bytes.Repeat([]byte{b}, 32)
}

func TestIndexerStateRoundTrip(t *testing.T) {
	initTestDB(t)

	cursor := dbtypes.IndexerCursorState{}
	_, err := GetIndexerState("indexer.cursor", &cursor)
	assert.ErrorIs(t, err, sql.ErrNoRows, "unset key reports no rows")

	err = RunDBTransaction(func(tx *sqlx.Tx) error {
		return SetIndexerState("indexer.cursor", &dbtypes.IndexerCursorState{
			BlockNumber: 1205,
			BlockHash:   "0xaabb",
		}, tx)
	})
	require.NoError(t, err)

	_, err = GetIndexerState("indexer.cursor", &cursor)
	require.NoError(t, err)
	assert.Equal(t, uint64(1205), cursor.BlockNumber)
	assert.Equal(t, "0xaabb", cursor.BlockHash)

	// overwriting the key replaces the value
	err = RunDBTransaction(func(tx *sqlx.Tx) error {
		return SetIndexerState("indexer.cursor", &dbtypes.IndexerCursorState{BlockNumber: 1206}, tx)
	})
	require.NoError(t, err)

	_, err = GetIndexerState("indexer.cursor", &cursor)
	require.NoError(t, err)
	assert.Equal(t, uint64(1206), cursor.BlockNumber)
}

func TestContractStateRoundTrip(t *testing.T) {
	initTestDB(t)

	contract := common.HexToAddress("0x1111111111111111111111111111111111111111").Bytes()
	state := &dbtypes.ContractState{
		Contract:       contract,
		Creator:        common.HexToAddress("0x2222222222222222222222222222222222222222").Bytes(),
		Name:           "DeFi Yield Strategies",
		Description:    "tracking yield strategies",
		Keywords:       `["defi","yield"]`,
		CurrentEpoch:   3,
		EpochStartTime: 1700000000,
		EpochEndTime:   1700604800,
		TotalDeposited: "500000000000000000000",
		TotalClaimed:   "0",
		TotalAlgo:      "0",
		TotalVote:      "0",
		LatestScore:    "8750",
		LastEventOrd:   42,
		UpdatedAt:      1700000100,
	}

	err := RunDBTransaction(func(tx *sqlx.Tx) error {
		if missing, err := GetContractState(contract, tx); err != nil || missing != nil {
			t.Errorf("expected no row before upsert, got %v / %v", missing, err)
		}
		return UpsertContractState(state, tx)
	})
	require.NoError(t, err)

	err = RunDBTransaction(func(tx *sqlx.Tx) error {
		loaded, err := GetContractState(contract, tx)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, state, loaded)

		// second upsert with changed totals replaces the row
		state.TotalDeposited = "600000000000000000000"
		state.LastEventOrd = 43
		return UpsertContractState(state, tx)
	})
	require.NoError(t, err)

	states := GetContractStates(0, 10)
	require.Len(t, states, 1)
	assert.Equal(t, "600000000000000000000", states[0].TotalDeposited)
	assert.Equal(t, uint64(43), states[0].LastEventOrd)
}

func TestGetContractStatesPagination(t *testing.T) {
	initTestDB(t)

	addrs := []string{
		"0x3333333333333333333333333333333333333333",
		"0x1111111111111111111111111111111111111111",
		"0x2222222222222222222222222222222222222222",
	}
	err := RunDBTransaction(func(tx *sqlx.Tx) error {
		for _, addr := range addrs {
			state := &dbtypes.ContractState{
				Contract:       common.HexToAddress(addr).Bytes(),
				Creator:        []byte{},
				TotalDeposited: "0",
				TotalClaimed:   "0",
				TotalAlgo:      "0",
				TotalVote:      "0",
				LatestScore:    "0",
			}
			if err := UpsertContractState(state, tx); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	page := GetContractStates(1, 1)
	require.Len(t, page, 1)
	assert.Equal(t, common.HexToAddress("0x2222222222222222222222222222222222222222").Bytes(), page[0].Contract)
}

func TestGetEpochStatesWindow(t *testing.T) {
	initTestDB(t)

	contract := common.HexToAddress("0x1111111111111111111111111111111111111111").Bytes()
	err := RunDBTransaction(func(tx *sqlx.Tx) error {
		for epoch := uint64(1); epoch <= 4; epoch++ {
			state := &dbtypes.EpochState{
				Contract:       contract,
				Epoch:          epoch,
				StartTime:      1700000000 + epoch,
				TotalDeposited: "100",
				TotalClaimed:   "0",
				TotalAlgo:      "0",
				TotalVote:      "0",
				LatestScore:    "0",
				LastEventOrd:   epoch,
			}
			if err := UpsertEpochState(state, tx); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	// newest-first window starting at epoch 3
	states := GetEpochStates(contract, 3, 2)
	require.Len(t, states, 2)
	assert.Equal(t, uint64(3), states[0].Epoch)
	assert.Equal(t, uint64(2), states[1].Epoch)
	assert.Equal(t, uint64(1700000003), states[0].StartTime)

	assert.Empty(t, GetEpochStates(testUserId(0xee)[:20], 3, 2), "unknown contract has no rows")
}

func TestGetUserEpochStatesWindow(t *testing.T) {
	initTestDB(t)

	contract := common.HexToAddress("0x1111111111111111111111111111111111111111").Bytes()
	userId := testUserId(0x07)
	err := RunDBTransaction(func(tx *sqlx.Tx) error {
		for epoch := uint64(1); epoch <= 3; epoch++ {
			state := &dbtypes.UserEpochState{
				UserId:         userId,
				Contract:       contract,
				Epoch:          epoch,
				TotalDeposited: "800",
				TotalClaimed:   "0",
				TotalAlgo:      "0",
				TotalVote:      "0",
				LatestScore:    "0",
				LastEventOrd:   epoch,
			}
			if err := UpsertUserEpochState(state, tx); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	err = RunDBTransaction(func(tx *sqlx.Tx) error {
		loaded, err := GetUserEpochState(userId, contract, 2, tx)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, "800", loaded.TotalDeposited)

		missing, err := GetUserEpochState(testUserId(0x08), contract, 2, tx)
		require.NoError(t, err)
		assert.Nil(t, missing)
		return nil
	})
	require.NoError(t, err)

	states := GetUserEpochStates(userId, contract, 10, 10)
	require.Len(t, states, 3)
	assert.Equal(t, uint64(3), states[0].Epoch)
	assert.Equal(t, uint64(1), states[2].Epoch)
}

func TestGetUserProfilesWithEpochStates(t *testing.T) {
	initTestDB(t)

	contract := common.HexToAddress("0x1111111111111111111111111111111111111111").Bytes()
	alice := testUserId(0x01)
	bob := testUserId(0x02)

	err := RunDBTransaction(func(tx *sqlx.Tx) error {
		profiles := []*dbtypes.UserProfile{
			{UserId: alice, DisplayName: "alice"},
			{UserId: bob, DisplayName: "bob"},
		}
		for _, seed := range profiles {
			profile := &dbtypes.UserProfile{
				UserId:         seed.UserId,
				DisplayName:    seed.DisplayName,
				Interests:      "[]",
				LinkedAddress:  []byte{},
				TotalDeposited: "0",
				TotalClaimed:   "0",
				LatestScore:    "0",
			}
			if err := UpsertUserProfile(profile, tx); err != nil {
				return err
			}
		}
		// only alice has activity in epoch 3
		return UpsertUserEpochState(&dbtypes.UserEpochState{
			UserId:         alice,
			Contract:       contract,
			Epoch:          3,
			TotalDeposited: "800",
			TotalClaimed:   "150",
			TotalAlgo:      "90",
			TotalVote:      "60",
			LatestScore:    "8750",
			LastEventOrd:   17,
			UpdatedAt:      1700000100,
		}, tx)
	})
	require.NoError(t, err)

	results := GetUserProfilesWithEpochStates(contract, 3, 10)
	require.Len(t, results, 2)

	assert.Equal(t, alice, results[0].UserId)
	assert.Equal(t, "alice", results[0].DisplayName)
	require.NotNil(t, results[0].EpochState)
	assert.Equal(t, uint64(3), results[0].EpochState.Epoch)
	assert.Equal(t, "800", results[0].EpochState.TotalDeposited)
	assert.Equal(t, "150", results[0].EpochState.TotalClaimed)
	assert.Equal(t, "8750", results[0].EpochState.LatestScore)
	assert.Equal(t, uint64(17), results[0].EpochState.LastEventOrd)

	assert.Equal(t, bob, results[1].UserId)
	assert.Nil(t, results[1].EpochState, "join miss leaves the epoch state unset")

	// a different epoch misses for everyone
	results = GetUserProfilesWithEpochStates(contract, 4, 10)
	require.Len(t, results, 2)
	assert.Nil(t, results[0].EpochState)
	assert.Nil(t, results[1].EpochState)
}
