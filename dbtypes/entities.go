package dbtypes

// Aggregate entity rows. Amount columns hold decimal strings so 256 bit
// totals stay exact on both database engines. Every row tracks the ordinal
// of the last applied event (last_event_ord), the replay guard that makes
// at-least-once delivery safe.

type ContractState struct {
	Contract       []byte `db:"contract"`
	Creator        []byte `db:"creator"`
	Name           string `db:"name"`
	Description    string `db:"description"`
	Keywords       string `db:"keywords"` // json encoded list
	CurrentEpoch   uint64 `db:"current_epoch"`
	EpochStartTime uint64 `db:"epoch_start_time"`
	EpochEndTime   uint64 `db:"epoch_end_time"`
	TotalDeposited string `db:"total_deposited"`
	TotalClaimed   string `db:"total_claimed"`
	TotalAlgo      string `db:"total_algo"`
	TotalVote      string `db:"total_vote"`
	LatestScore    string `db:"latest_score"`
	LastEventOrd   uint64 `db:"last_event_ord"`
	UpdatedAt      int64  `db:"updated_at"`
}

type EpochState struct {
	Contract       []byte `db:"contract"`
	Epoch          uint64 `db:"epoch"`
	StartTime      uint64 `db:"start_time"`
	EndTime        uint64 `db:"end_time"`
	TotalDeposited string `db:"total_deposited"`
	TotalClaimed   string `db:"total_claimed"`
	TotalAlgo      string `db:"total_algo"`
	TotalVote      string `db:"total_vote"`
	LatestScore    string `db:"latest_score"`
	LastEventOrd   uint64 `db:"last_event_ord"`
	UpdatedAt      int64  `db:"updated_at"`
}

type UserProfile struct {
	UserId         []byte `db:"user_id"`
	DisplayName    string `db:"display_name"`
	Bio            string `db:"bio"`
	Interests      string `db:"interests"` // json encoded list
	LinkedAddress  []byte `db:"linked_address"`
	LinkedByAdmin  bool   `db:"linked_by_admin"`
	TotalDeposited string `db:"total_deposited"`
	TotalClaimed   string `db:"total_claimed"`
	LatestScore    string `db:"latest_score"`
	LastEventOrd   uint64 `db:"last_event_ord"`
	UpdatedAt      int64  `db:"updated_at"`
}

type UserEpochState struct {
	UserId         []byte `db:"user_id"`
	Contract       []byte `db:"contract"`
	Epoch          uint64 `db:"epoch"`
	TotalDeposited string `db:"total_deposited"`
	TotalClaimed   string `db:"total_claimed"`
	TotalAlgo      string `db:"total_algo"`
	TotalVote      string `db:"total_vote"`
	LatestScore    string `db:"latest_score"`
	LastEventOrd   uint64 `db:"last_event_ord"`
	UpdatedAt      int64  `db:"updated_at"`
}

// UserProfileWithEpochs joins a profile with one of its per-topic epoch rows
// for the read side.
type UserProfileWithEpochs struct {
	UserId      []byte          `db:"user_id"`
	DisplayName string          `db:"display_name"`
	EpochState  *UserEpochState `db:"epoch_state"`
}
