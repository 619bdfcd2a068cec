package settlement

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LogSettler is a Settler that only records the handoff. It stands in
// when no external settlement engine is attached; the settlement
// events on the outbound stream remain the system of record.
type LogSettler struct {
	log zerolog.Logger
}

func NewLogSettler(log zerolog.Logger) *LogSettler {
	return &LogSettler{log: log}
}

func (s *LogSettler) Settle(ctx context.Context, positionID uuid.UUID, finalObligations, finalCollateralValue int64) error {
	s.log.Info().
		Str("position_id", positionID.String()).
		Int64("final_obligations", finalObligations).
		Int64("final_collateral_value", finalCollateralValue).
		Msg("settlement handoff")
	return nil
}
