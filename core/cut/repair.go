package cut

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/haulboard/core/logger"
	"github.com/kilianp07/haulboard/core/model"
	"github.com/kilianp07/haulboard/core/store"
)

// RepairCutInfos restores isCut == (endDate == nil) on every cut info row.
// A row of a transport still cut loses its end date; a row of a transport
// no longer cut without an end date gets now. Flag flip and end date are
// written from different call sites, so the two can drift apart.
// It returns the corrected rows.
func RepairCutInfos(ctx context.Context, s store.Store, now time.Time, log logger.Logger) ([]model.CutInfo, error) {
	if log == nil {
		log = logger.Nop{}
	}
	var fixed []model.CutInfo
	err := s.WithTx(ctx, func(tx store.Store) error {
		fixed = nil
		rows, err := tx.ListCutInfos(ctx, store.CutInfoFilter{})
		if err != nil {
			return err
		}
		for _, ci := range rows {
			t, err := tx.GetTransport(ctx, ci.TransportID)
			if errors.Is(err, model.ErrNotFound) {
				log.Warnf("cut info %s refers to missing transport %s", ci.ID, ci.TransportID)
				continue
			}
			if err != nil {
				return err
			}
			switch {
			case t.IsCut && ci.EndDate != nil:
				ci.EndDate = nil
			case !t.IsCut && ci.EndDate == nil:
				end := now.UTC()
				ci.EndDate = &end
			default:
				continue
			}
			if err := tx.SaveCutInfo(ctx, &ci); err != nil {
				return err
			}
			log.Infow("cut info repaired", map[string]any{"transport": t.ID, "cut": t.IsCut})
			fixed = append(fixed, ci)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	repairsTotal.Add(float64(len(fixed)))
	return fixed, nil
}
