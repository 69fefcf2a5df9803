package credits

import (
	"context"
	"fmt"
	"math/bits"
)

// OperationKind names a billable operation in the cost catalog.
type OperationKind string

// Operation kinds known to the catalog.
const (
	KindImageGeneration     OperationKind = "image_generation_cost"
	KindTextGeneration      OperationKind = "text_generation_cost"
	KindVideoGeneration     OperationKind = "video_generation_cost"
	KindShortsGeneration    OperationKind = "shorts_generation_cost"
	KindSubtitlesGeneration OperationKind = "subtitles_generation_cost"
)

// DefaultCosts returns the compiled-in unit costs used when the catalog is
// unavailable or has no entry for a kind.
func DefaultCosts() map[OperationKind]uint64 {
	return map[OperationKind]uint64{
		KindImageGeneration:     1,
		KindTextGeneration:      1,
		KindVideoGeneration:     5,
		KindShortsGeneration:    5,
		KindSubtitlesGeneration: 1,
	}
}

// Catalog is the read-only cost lookup port. Implementations are best-effort.
type Catalog interface {
	GetCosts(ctx context.Context) (map[OperationKind]uint64, error)
}

// StaticCatalog is a fixed in-process Catalog.
type StaticCatalog map[OperationKind]uint64

// GetCosts returns a copy of the static costs.
func (c StaticCatalog) GetCosts(_ context.Context) (map[OperationKind]uint64, error) {
	out := make(map[OperationKind]uint64, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out, nil
}

// Cost prices units at unitCost. It returns ErrCostOverflow instead of
// wrapping around.
func Cost(units, unitCost uint64) (uint64, error) {
	hi, lo := bits.Mul64(units, unitCost)
	if hi != 0 {
		return 0, fmt.Errorf("%w: %d x %d", ErrCostOverflow, units, unitCost)
	}
	return lo, nil
}
