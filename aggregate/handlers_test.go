package aggregate

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsedao/pulse-indexer/dbtypes"
	"github.com/pulsedao/pulse-indexer/events"
	"github.com/pulsedao/pulse-indexer/wire"
)

var testTopic = common.HexToAddress("0x1111111111111111111111111111111111111111")

func eventBase(block uint64, index uint32) events.EventBase {
	return events.EventBase{
		ID:        events.EventID{BlockNumber: block, EventIndex: index},
		Contract:  testTopic,
		Timestamp: 1700000000,
	}
}

// applyAll pushes one event through every default handler and merges the
// coalesced deltas into the given rows, mirroring the batch pipeline.
func applyAll(t *testing.T, ev events.DecodedEvent,
	contract *dbtypes.ContractState, epochs map[uint64]*dbtypes.EpochState,
	user *dbtypes.UserProfile, userEpochs map[uint64]*dbtypes.UserEpochState,
) {
	t.Helper()
	registry := events.NewRegistry()

	deltas := &Deltas{}
	for _, handler := range DefaultHandlers(registry) {
		handlerDeltas, err := handler.HandleEvent(ev)
		require.NoError(t, err)
		deltas.Append(handlerDeltas)
	}
	deltas.Coalesce()

	for _, delta := range deltas.Contracts {
		_, err := ApplyContractDelta(contract, delta, 1700000100)
		require.NoError(t, err)
	}
	for _, delta := range deltas.Epochs {
		row := epochs[delta.Epoch]
		if row == nil {
			row = NewEpochState(delta.Contract.Bytes(), delta.Epoch)
			epochs[delta.Epoch] = row
		}
		_, err := ApplyEpochDelta(row, delta, 1700000100)
		require.NoError(t, err)
	}
	for _, delta := range deltas.Users {
		_, err := ApplyUserDelta(user, delta, 1700000100)
		require.NoError(t, err)
	}
	for _, delta := range deltas.UserEpochs {
		row := userEpochs[delta.Epoch]
		if row == nil {
			row = NewUserEpochState(delta.UserID.Bytes(), delta.Contract.Bytes(), delta.Epoch)
			userEpochs[delta.Epoch] = row
		}
		_, err := ApplyUserEpochDelta(row, delta, 1700000100)
		require.NoError(t, err)
	}
}

func TestEpochAdvanceAndDepositsAccumulate(t *testing.T) {
	userId := events.UserID(wire.WordFromUint64(42))
	contract := NewContractState(testTopic.Bytes())
	user := NewUserProfile(userId.Bytes())
	epochs := map[uint64]*dbtypes.EpochState{}
	userEpochs := map[uint64]*dbtypes.UserEpochState{}

	advance := &events.EpochAdvanced{
		EventBase:  eventBase(10, 0),
		EpochIndex: 1,
		StartTime:  1700000000,
		EndTime:    1700604800,
	}
	deposit1 := &events.RewardsDeposited{
		EventBase:  eventBase(11, 0),
		Depositor:  common.HexToAddress("0x2222222222222222222222222222222222222222"),
		EpochIndex: 1,
		Amount:     uint256.NewInt(300),
		UserID:     userId,
	}
	deposit2 := &events.RewardsDeposited{
		EventBase:  eventBase(12, 0),
		Depositor:  common.HexToAddress("0x3333333333333333333333333333333333333333"),
		EpochIndex: 1,
		Amount:     uint256.NewInt(500),
		UserID:     userId,
	}

	applyAll(t, advance, contract, epochs, user, userEpochs)
	applyAll(t, deposit1, contract, epochs, user, userEpochs)
	applyAll(t, deposit2, contract, epochs, user, userEpochs)

	assert.Equal(t, uint64(1), contract.CurrentEpoch)
	assert.Equal(t, uint64(1700000000), contract.EpochStartTime)
	assert.Equal(t, "800", contract.TotalDeposited)

	require.NotNil(t, epochs[1])
	assert.Equal(t, uint64(1700604800), epochs[1].EndTime)
	assert.Equal(t, "800", epochs[1].TotalDeposited)

	assert.Equal(t, "800", user.TotalDeposited)
	require.NotNil(t, userEpochs[1])
	assert.Equal(t, "800", userEpochs[1].TotalDeposited)
}

func TestDistributionSplitsIntoShares(t *testing.T) {
	userId := events.UserID(wire.WordFromUint64(7))
	contract := NewContractState(testTopic.Bytes())
	user := NewUserProfile(userId.Bytes())
	epochs := map[uint64]*dbtypes.EpochState{}
	userEpochs := map[uint64]*dbtypes.UserEpochState{}

	distribution := &events.RewardsDistributed{
		EventBase:  eventBase(20, 0),
		Recipient:  common.HexToAddress("0x4444444444444444444444444444444444444444"),
		EpochIndex: 2,
		Amount:     uint256.NewInt(1000),
		AlgoAmount: uint256.NewInt(600),
		VoteAmount: uint256.NewInt(400),
		UserID:     userId,
	}
	applyAll(t, distribution, contract, epochs, user, userEpochs)

	assert.Equal(t, "1000", contract.TotalClaimed)
	assert.Equal(t, "600", contract.TotalAlgo)
	assert.Equal(t, "400", contract.TotalVote)
	assert.Equal(t, "1000", user.TotalClaimed)
	assert.Equal(t, "600", userEpochs[2].TotalAlgo)
	assert.Equal(t, "400", userEpochs[2].TotalVote)
}

func TestDepositWithoutUserIdOnlyMovesEntityTotals(t *testing.T) {
	registry := events.NewRegistry()
	handler := NewRewardsHandler(registry)

	deposit := &events.RewardsDeposited{
		EventBase:  eventBase(30, 0),
		Depositor:  common.HexToAddress("0x5555555555555555555555555555555555555555"),
		EpochIndex: 1,
		Amount:     uint256.NewInt(100),
	}
	deltas, err := handler.HandleEvent(deposit)
	require.NoError(t, err)

	assert.Len(t, deltas.Contracts, 1)
	assert.Len(t, deltas.Epochs, 1)
	assert.Empty(t, deltas.Users, "no user identity, no user level aggregation")
	assert.Empty(t, deltas.UserEpochs)
}

func TestScoreSupersedesInsteadOfAccumulating(t *testing.T) {
	contract := NewContractState(testTopic.Bytes())
	epochs := map[uint64]*dbtypes.EpochState{}
	user := NewUserProfile(events.UserID(wire.WordFromUint64(1)).Bytes())
	userEpochs := map[uint64]*dbtypes.UserEpochState{}

	first := &events.ScorePushed{EventBase: eventBase(40, 0), EpochIndex: 1, Score: uint256.NewInt(50)}
	second := &events.ScorePushed{EventBase: eventBase(41, 0), EpochIndex: 1, Score: uint256.NewInt(80)}

	applyAll(t, first, contract, epochs, user, userEpochs)
	applyAll(t, second, contract, epochs, user, userEpochs)

	assert.Equal(t, "80", contract.LatestScore)
	assert.Equal(t, "80", epochs[1].LatestScore)
}

func TestMetadataReplacesListsWholesale(t *testing.T) {
	contract := NewContractState(testTopic.Bytes())
	epochs := map[uint64]*dbtypes.EpochState{}
	user := NewUserProfile(events.UserID(wire.WordFromUint64(1)).Bytes())
	userEpochs := map[uint64]*dbtypes.UserEpochState{}

	first := &events.TopicMetadataAdded{
		EventBase: eventBase(50, 0),
		Name:      "Topic A",
		Keywords:  []string{"one", "two", "three"},
	}
	second := &events.TopicMetadataAdded{
		EventBase:   eventBase(51, 0),
		Name:        "Topic A",
		Description: "now with a description",
		Keywords:    []string{"four"},
	}

	applyAll(t, first, contract, epochs, user, userEpochs)
	applyAll(t, second, contract, epochs, user, userEpochs)

	assert.Equal(t, `["four"]`, contract.Keywords, "keyword list is replaced, not merged")
	assert.Equal(t, "now with a description", contract.Description)
}

func TestLinkHandlerTracksProvenance(t *testing.T) {
	registry := events.NewRegistry()
	handler := NewLinkHandler(registry)
	linked := common.HexToAddress("0x6666666666666666666666666666666666666666")

	deltas, err := handler.HandleEvent(&events.AddressLinked{
		EventBase:     eventBase(60, 0),
		UserID:        events.UserID(wire.WordFromUint64(5)),
		LinkedAddress: linked,
		ByAdmin:       true,
	})
	require.NoError(t, err)
	require.Len(t, deltas.Users, 1)
	assert.Equal(t, linked, *deltas.Users[0].LinkedAddress)
	assert.True(t, *deltas.Users[0].LinkedByAdmin)

	deltas, err = handler.HandleEvent(&events.AddressLinked{
		EventBase:     eventBase(61, 0),
		UserID:        events.UserID(wire.WordFromUint64(5)),
		LinkedAddress: linked,
	})
	require.NoError(t, err)
	assert.False(t, *deltas.Users[0].LinkedByAdmin)
}

func TestCoalesceMergesSameEntityDeltas(t *testing.T) {
	ev := events.EventID{BlockNumber: 70, EventIndex: 0}
	deltas := &Deltas{
		Contracts: []*ContractDelta{
			{Contract: testTopic, Event: ev, AddDeposited: uint256.NewInt(10)},
			{Contract: testTopic, Event: ev, AddDeposited: uint256.NewInt(5), Score: uint256.NewInt(99)},
		},
	}
	deltas.Coalesce()

	require.Len(t, deltas.Contracts, 1)
	assert.Equal(t, "15", deltas.Contracts[0].AddDeposited.Dec())
	assert.Equal(t, "99", deltas.Contracts[0].Score.Dec())
}
