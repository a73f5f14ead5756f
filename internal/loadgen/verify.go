package loadgen

import (
	"fmt"

	"github.com/okian/foldboard/internal/domain/model"
)

// Verify checks that a leaderboard is ordered and ranked consistently: scores
// never increase down a table and tied scores share a rank.
func Verify(lb model.Leaderboard) error {
	for i := range lb.Overall {
		e := lb.Overall[i]
		if i == 0 {
			if e.Rank != 1 {
				return fmt.Errorf("overall: first rank is %d", e.Rank)
			}
			continue
		}
		prev := lb.Overall[i-1]
		if err := checkOrder("overall", i, prev.Score, e.Score, prev.Rank, e.Rank); err != nil {
			return err
		}
	}
	for _, b := range lb.Problems {
		for i := 1; i < len(b.Entries); i++ {
			prev, e := b.Entries[i-1], b.Entries[i]
			if err := checkOrder(b.ProblemID, i, prev.Value, e.Value, prev.Rank, e.Rank); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkOrder(table string, i int, prevScore, score float64, prevRank, rank int) error {
	switch {
	case score > prevScore:
		return fmt.Errorf("%s: entry %d scores above entry %d", table, i, i-1)
	case score == prevScore && rank != prevRank:
		return fmt.Errorf("%s: tied entries %d and %d ranked %d and %d", table, i-1, i, prevRank, rank)
	case score < prevScore && rank != i+1:
		return fmt.Errorf("%s: entry %d ranked %d, want %d", table, i, rank, i+1)
	}
	return nil
}
