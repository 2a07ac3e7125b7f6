// internal/canonical/store.go
//
// MySQL persistence for canonical campaigns and metrics.
//
// Context
// -------
// Re-syncing must overwrite, never duplicate.  Both tables carry a unique
// key on their natural key and every write is
// `INSERT ... ON DUPLICATE KEY UPDATE`, so running the same batch twice
// leaves exactly one row per key with identical values.
//
//	campaign        UNIQUE (tenant_id, platform, external_id)
//	metrics_record  UNIQUE (campaign_id, creative_id, audience_id, date, granularity)
//
// A batch is written inside one transaction; a failed row rolls the whole
// batch back and surfaces as a persistence error.
//
// Notes
// -----
//   - Counts returned are records written, not MySQL's rows-affected (which
//     reports 2 for an update).
package canonical

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/yanizio/adsync/internal/syncerr"
)

const upsertCampaignSQL = `
        INSERT INTO campaign
               (tenant_id, connection_id, platform, external_id, name, status,
                objective, daily_budget, total_budget, start_date, end_date, updated_at)
        VALUES (:tenant_id, :connection_id, :platform, :external_id, :name, :status,
                :objective, :daily_budget, :total_budget, :start_date, :end_date, UTC_TIMESTAMP())
        ON DUPLICATE KEY UPDATE
               connection_id = VALUES(connection_id),
               name          = VALUES(name),
               status        = VALUES(status),
               objective     = VALUES(objective),
               daily_budget  = VALUES(daily_budget),
               total_budget  = VALUES(total_budget),
               start_date    = VALUES(start_date),
               end_date      = VALUES(end_date),
               updated_at    = VALUES(updated_at)`

const upsertMetricsSQL = `
        INSERT INTO metrics_record
               (tenant_id, campaign_id, creative_id, audience_id, date, granularity,
                impressions, clicks, conversions, spend, revenue,
                ctr, cpc, cpa, roas, roi, updated_at)
        VALUES (:tenant_id, :campaign_id, :creative_id, :audience_id, :date, :granularity,
                :impressions, :clicks, :conversions, :spend, :revenue,
                :ctr, :cpc, :cpa, :roas, :roi, UTC_TIMESTAMP())
        ON DUPLICATE KEY UPDATE
               impressions = VALUES(impressions),
               clicks      = VALUES(clicks),
               conversions = VALUES(conversions),
               spend       = VALUES(spend),
               revenue     = VALUES(revenue),
               ctr         = VALUES(ctr),
               cpc         = VALUES(cpc),
               cpa         = VALUES(cpa),
               roas        = VALUES(roas),
               roi         = VALUES(roi),
               updated_at  = VALUES(updated_at)`

// Store writes canonical records.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store { return &Store{db: db} }

// UpsertCampaigns writes every campaign in one transaction.
func (s *Store) UpsertCampaigns(ctx context.Context, rows []Campaign) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PrepareNamedContext(ctx, upsertCampaignSQL)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i := range rows {
			if _, err := stmt.ExecContext(ctx, &rows[i]); err != nil {
				return fmt.Errorf("campaign %s: %w", rows[i].ExternalID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, syncerr.NewPersistence("upsert_campaigns", err)
	}
	return len(rows), nil
}

// UpsertMetrics writes every metrics record in one transaction and returns
// len(rows).  normalize.Metrics hands over one row per natural key.
func (s *Store) UpsertMetrics(ctx context.Context, rows []MetricsRecord) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PrepareNamedContext(ctx, upsertMetricsSQL)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i := range rows {
			if rows[i].Granularity == "" {
				rows[i].Granularity = GranularityDaily
			}
			if _, err := stmt.ExecContext(ctx, &rows[i]); err != nil {
				return fmt.Errorf("metrics campaign=%d date=%s: %w",
					rows[i].CampaignID, rows[i].Date.Format("2006-01-02"), err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, syncerr.NewPersistence("upsert_metrics", err)
	}
	return len(rows), nil
}

// CampaignLookup loads external_id → id for every persisted campaign of
// the tenant on platform.
func (s *Store) CampaignLookup(ctx context.Context, tenantID uint64, platform string) (Lookup, error) {
	const q = `
        SELECT id, external_id
        FROM   campaign
        WHERE  tenant_id = ?
          AND  platform  = ?`
	var pairs []struct {
		ID         uint64 `db:"id"`
		ExternalID string `db:"external_id"`
	}
	if err := s.db.SelectContext(ctx, &pairs, q, tenantID, platform); err != nil {
		return nil, syncerr.NewPersistence("campaign_lookup", err)
	}
	l := make(Lookup, len(pairs))
	for _, p := range pairs {
		l[p.ExternalID] = p.ID
	}
	return l, nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
