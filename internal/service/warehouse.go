package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lakumart/groupbuy-server-go/internal/client"
	"github.com/lakumart/groupbuy-server-go/internal/config"
	"github.com/lakumart/groupbuy-server-go/internal/model"
	"github.com/lakumart/groupbuy-server-go/internal/repository"
)

// VariantDemand is one variant's aggregated real demand and the warehouse's
// answer to it.
type VariantDemand struct {
	VariantID         *string `json:"variantId"`
	Quantity          int     `json:"quantity"`
	HasStock          bool    `json:"hasStock"`
	GrosirUnitsNeeded int     `json:"grosirUnitsNeeded"`
}

// DemandResult is the outcome of a whole-session warehouse check. HasStock
// is the AND across variants: one uncovered variant holds the whole
// session in pending_stock.
type DemandResult struct {
	HasStock     bool            `json:"hasStock"`
	GrosirNeeded int             `json:"grosirNeeded"`
	Variants     []VariantDemand `json:"variants"`
}

// WarehouseOrchestrator runs the stock-reservation step of settlement:
// aggregate real demand per variant, ask the warehouse to reserve or
// backorder each one, and record the result on the session.
type WarehouseOrchestrator struct {
	sessions     repository.SessionRepository
	participants repository.ParticipantRepository
	warehouse    client.Warehouse
}

func NewWarehouseOrchestrator(
	sessions repository.SessionRepository,
	participants repository.ParticipantRepository,
	warehouse client.Warehouse,
) *WarehouseOrchestrator {
	return &WarehouseOrchestrator{
		sessions:     sessions,
		participants: participants,
		warehouse:    warehouse,
	}
}

// CheckDemand reserves warehouse stock for the session's real demand.
// Synthetic participants are excluded: the warehouse only ever stocks for
// real customer orders.
func (o *WarehouseOrchestrator) CheckDemand(ctx context.Context, session *model.Session) (*DemandResult, error) {
	real, err := o.participants.ListReal(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("list real participants: %w", err)
	}

	demands := aggregateVariantDemand(real)

	unitSize := session.GrosirUnitSize
	if unitSize <= 0 {
		unitSize = config.DefaultGrosirUnitSize
	}

	result := &DemandResult{HasStock: true}
	for _, d := range demands {
		fulfil, err := o.warehouse.FulfillBundleDemand(ctx, session.ProductID, d.variantID, d.quantity, unitSize)
		if err != nil {
			return nil, fmt.Errorf("fulfill bundle demand: %w", err)
		}

		result.Variants = append(result.Variants, VariantDemand{
			VariantID:         d.variantID,
			Quantity:          d.quantity,
			HasStock:          fulfil.HasStock,
			GrosirUnitsNeeded: fulfil.GrosirUnitsNeeded,
		})

		if !fulfil.HasStock {
			result.HasStock = false
			result.GrosirNeeded += fulfil.GrosirUnitsNeeded
		}
	}

	now := time.Now()
	patch := model.WarehousePatch{
		CheckedAt:         now,
		HasStock:          result.HasStock,
		GrosirUnitsNeeded: result.GrosirNeeded,
		// Warehouse notifies the factory itself when it cannot cover demand;
		// we only record that it happened.
		FactoryNotifySent: !result.HasStock,
	}
	if !result.HasStock {
		patch.FactoryNotifiedAt = &now
	}
	if err := o.sessions.SetWarehouseInfo(ctx, session.ID, patch); err != nil {
		return nil, fmt.Errorf("record warehouse check: %w", err)
	}

	log.Info().
		Str("sessionId", session.ID).
		Bool("hasStock", result.HasStock).
		Int("grosirNeeded", result.GrosirNeeded).
		Int("variants", len(result.Variants)).
		Msg("warehouse demand checked")

	return result, nil
}

type variantBucket struct {
	variantID *string
	quantity  int
}

// aggregateVariantDemand sums participant quantities per variant, keeping a
// stable order. Participants without a variant share a single base bucket.
func aggregateVariantDemand(participants []model.Participant) []variantBucket {
	index := map[string]int{}
	buckets := []variantBucket{}

	for _, p := range participants {
		key := "base"
		if p.VariantID != nil {
			key = *p.VariantID
		}
		if i, ok := index[key]; ok {
			buckets[i].quantity += p.Quantity
			continue
		}
		index[key] = len(buckets)
		buckets = append(buckets, variantBucket{variantID: p.VariantID, quantity: p.Quantity})
	}
	return buckets
}
