package scoring

import (
	"sort"

	"github.com/cancelei/longevity-world-cup/internal/domain"
)

// Rank assignment orders entities by score descending and hands out
// dense 1-based ranks with no gaps. Equal scores order by earlier
// UpdatedAt, then entity ID ascending; the tie-break makes the order
// total, so repeated passes on unchanged data yield identical ranks.

// AssignLeagueRanks computes fresh ranks for the given league
// standings. Callers filter out inactive leagues first.
func AssignLeagueRanks(standings []domain.LeagueStanding) []domain.RankAssignment {
	entries := make([]rankEntry, len(standings))
	for i, s := range standings {
		entries[i] = rankEntry{id: s.LeagueID, score: s.Score, updatedAt: s.UpdatedAt.UnixNano()}
	}
	return assign(entries)
}

// AssignAthleteRanks computes fresh ranks for the athlete board,
// ordered by best age reduction.
func AssignAthleteRanks(standings []domain.AthleteStanding) []domain.RankAssignment {
	entries := make([]rankEntry, len(standings))
	for i, s := range standings {
		entries[i] = rankEntry{id: s.AthleteID, score: s.BestReduction, updatedAt: s.UpdatedAt.UnixNano()}
	}
	return assign(entries)
}

type rankEntry struct {
	id        string
	score     float64
	updatedAt int64
}

func assign(entries []rankEntry) []domain.RankAssignment {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		if entries[i].updatedAt != entries[j].updatedAt {
			return entries[i].updatedAt < entries[j].updatedAt
		}
		return entries[i].id < entries[j].id
	})

	ranks := make([]domain.RankAssignment, len(entries))
	for i, entry := range entries {
		ranks[i] = domain.RankAssignment{EntityID: entry.id, Rank: i + 1}
	}
	return ranks
}
