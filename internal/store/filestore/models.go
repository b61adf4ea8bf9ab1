package filestore

import "github.com/MarkoPoloResearchLab/tokengate/pkg/metering"

// Persistence formats for the JSON maps. File names are carried over
// from the system this replaces; timestamps persist as Unix UTC seconds
// with zero meaning "absent" so round-trips are exact.

type creditEntryRecord struct {
	Tokens    int64 `json:"tokens"`
	ExpiresAt int64 `json:"expires_at,omitempty"`
}

func newCreditEntryRecord(entry metering.CreditEntry) creditEntryRecord {
	return creditEntryRecord{
		Tokens:    entry.Tokens.Int64(),
		ExpiresAt: entry.ExpiresAtUnixUTC,
	}
}

func (record creditEntryRecord) toDomain() metering.CreditEntry {
	return metering.CreditEntry{
		Tokens:           metering.TokenAmount(record.Tokens),
		ExpiresAtUnixUTC: record.ExpiresAt,
	}
}

type quotaRecord struct {
	MessageCount  int    `json:"message_count"`
	LastResetDate string `json:"last_reset_date"`
}

func newQuotaRecord(record metering.QuotaRecord) quotaRecord {
	return quotaRecord{
		MessageCount:  record.MessageCount,
		LastResetDate: record.LastResetDate,
	}
}

func (record quotaRecord) toDomain() metering.QuotaRecord {
	return metering.QuotaRecord{
		MessageCount:  record.MessageCount,
		LastResetDate: record.LastResetDate,
	}
}

type voteRecord struct {
	UserID         string `json:"user_id"`
	IsVoter        bool   `json:"is_voter"`
	VoterStreak    int    `json:"voter_streak"`
	LastVoteTime   int64  `json:"last_vote_time,omitempty"`
	LastRewardTime int64  `json:"last_reward_time,omitempty"`
	IsWeekend      bool   `json:"is_weekend"`
}

func newVoteRecord(record metering.VoteRecord) voteRecord {
	return voteRecord{
		UserID:         record.UserID,
		IsVoter:        record.IsVoter,
		VoterStreak:    record.VoterStreak,
		LastVoteTime:   record.LastVoteUnixUTC,
		LastRewardTime: record.LastRewardUnixUTC,
		IsWeekend:      record.IsWeekend,
	}
}

func (record voteRecord) toDomain() metering.VoteRecord {
	return metering.VoteRecord{
		UserID:            record.UserID,
		IsVoter:           record.IsVoter,
		VoterStreak:       record.VoterStreak,
		LastVoteUnixUTC:   record.LastVoteTime,
		LastRewardUnixUTC: record.LastRewardTime,
		IsWeekend:         record.IsWeekend,
	}
}
