package classifier

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ClassifyAllUntilComplete repeats bulk classification rounds until no
// unclassified names remain, maxRounds is reached, or a round makes no
// progress. Returns the total records updated across all rounds.
//
// A round counts as progress only when it updated records AND the
// unclassified count actually dropped; this bounds oracle spend on
// pathological inputs the oracle persistently cannot classify.
func (s *Service) ClassifyAllUntilComplete(ctx context.Context, maxRounds int) (int, error) {
	if maxRounds <= 0 {
		return 0, nil
	}

	remaining, err := s.UnclassifiedCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting unclassified names: %w", err)
	}

	total := 0
	for round := 1; round <= maxRounds; round++ {
		if remaining == 0 {
			break
		}

		updated, err := s.ClassifyUnclassified(ctx, 0)
		if err != nil {
			return total, fmt.Errorf("round %d: %w", round, err)
		}
		total += updated
		bulkRounds.Inc()

		after, err := s.UnclassifiedCount(ctx)
		if err != nil {
			return total, fmt.Errorf("counting unclassified names: %w", err)
		}

		s.logger.Info("classification round finished",
			zap.Int("round", round),
			zap.Int("updated", updated),
			zap.Int("remaining", after))
		if s.onRound != nil {
			s.onRound(round, updated, after)
		}

		if updated == 0 || after >= remaining {
			// No progress; another round would only repeat the same
			// oracle spend.
			break
		}
		remaining = after
	}

	return total, nil
}
