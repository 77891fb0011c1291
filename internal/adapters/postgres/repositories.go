package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"mentionscan/internal/domain"
	"mentionscan/internal/ports"
)

const runColumns = `id::text, domain, lead_id, domain_subscription_id::text, status, progress, error_message,
        enrichment_status, queries_total, queries_done, score, started_at, completed_at`

func scanRun(row pgx.Row) (domain.ScanRun, error) {
	var r domain.ScanRun
	var status, enrichment string
	var startedAt time.Time
	err := row.Scan(&r.ID, &r.Domain, &r.LeadID, &r.DomainSubscriptionID, &status, &r.Progress, &r.ErrorMessage,
		&enrichment, &r.QueriesTotal, &r.QueriesDone, &r.Score, &startedAt, &r.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return r, ports.ErrNotFound
	}
	if err != nil {
		return r, err
	}
	r.Status = domain.ScanStatus(status)
	r.EnrichmentStatus = domain.EnrichmentStatus(enrichment)
	r.StartedAt = &startedAt
	return r, nil
}

// ScanRunRepository

func (db *DB) CreateIfIdle(ctx context.Context, run domain.ScanRun) (runID string, created bool, err error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			_ = tx.Commit(ctx)
		}
	}()

	key := run.InFlightKey()
	err = tx.QueryRow(ctx, `
        INSERT INTO scan_runs (domain, lead_id, domain_subscription_id, inflight_key, status, progress)
        VALUES ($1, $2, $3, $4, 'pending', 0)
        ON CONFLICT (inflight_key) WHERE status NOT IN ('complete', 'failed') DO NOTHING
        RETURNING id::text
    `, strings.ToLower(run.Domain), run.LeadID, run.DomainSubscriptionID, key).Scan(&runID)
	if errors.Is(err, pgx.ErrNoRows) {
		err = tx.QueryRow(ctx, `
            SELECT id::text FROM scan_runs
            WHERE inflight_key = $1 AND status NOT IN ('complete', 'failed')
        `, key).Scan(&runID)
		return runID, false, err
	}
	if err != nil {
		return "", false, err
	}
	if _, err = tx.Exec(ctx, `INSERT INTO scan_jobs (scan_run_id) VALUES ($1)`, runID); err != nil {
		return "", false, err
	}
	return runID, true, nil
}

func (db *DB) Get(ctx context.Context, runID string) (domain.ScanRun, error) {
	return scanRun(db.Pool.QueryRow(ctx, `SELECT `+runColumns+` FROM scan_runs WHERE id = $1`, runID))
}

func (db *DB) LatestComplete(ctx context.Context, site string) (domain.ScanRun, error) {
	return scanRun(db.Pool.QueryRow(ctx, `
        SELECT `+runColumns+` FROM scan_runs
        WHERE domain = $1 AND status = 'complete'
        ORDER BY completed_at DESC
        LIMIT 1
    `, strings.ToLower(site)))
}

func (db *DB) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := db.Pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func (db *DB) UpdateStatus(ctx context.Context, runID string, status domain.ScanStatus, progress int) error {
	return db.exec(ctx, `UPDATE scan_runs SET status=$2, progress=$3 WHERE id=$1`, runID, string(status), progress)
}

func (db *DB) UpdateQueryProgress(ctx context.Context, runID string, done, total int) error {
	return db.exec(ctx, `UPDATE scan_runs SET queries_done=$2, queries_total=$3 WHERE id=$1`, runID, done, total)
}

func (db *DB) Complete(ctx context.Context, runID string, score int) error {
	return db.exec(ctx, `
        UPDATE scan_runs SET status='complete', progress=100, score=$2, error_message=NULL, completed_at=now()
        WHERE id=$1
    `, runID, score)
}

func (db *DB) Fail(ctx context.Context, runID string, message string) error {
	return db.exec(ctx, `
        UPDATE scan_runs SET status='failed', error_message=$2, completed_at=now() WHERE id=$1
    `, runID, message)
}

func (db *DB) SetEnrichmentStatus(ctx context.Context, runID string, status domain.EnrichmentStatus) error {
	return db.exec(ctx, `UPDATE scan_runs SET enrichment_status=$2 WHERE id=$1`, runID, string(status))
}

// SubscriptionRepository

const subColumns = `id::text, lead_id, domain, status, tier, scan_schedule_day, scan_schedule_hour, scan_timezone`

func scanSubscription(row pgx.Row) (domain.DomainSubscription, error) {
	var s domain.DomainSubscription
	var status, tier string
	err := row.Scan(&s.ID, &s.LeadID, &s.Domain, &status, &tier, &s.ScanScheduleDay, &s.ScanScheduleHour, &s.ScanTimezone)
	s.Status = domain.SubscriptionStatus(status)
	s.Tier = domain.Tier(tier)
	return s, err
}

func (db *DB) ListActive(ctx context.Context) ([]domain.DomainSubscription, error) {
	rows, err := db.Pool.Query(ctx, `
        SELECT `+subColumns+` FROM domain_subscriptions
        WHERE status IN ('active', 'trialing')
        ORDER BY id
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.DomainSubscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (db *DB) GetSubscription(ctx context.Context, id string) (domain.DomainSubscription, error) {
	s, err := scanSubscription(db.Pool.QueryRow(ctx, `SELECT `+subColumns+` FROM domain_subscriptions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return s, ports.ErrNotFound
	}
	return s, err
}

func (db *DB) UpdateSchedule(ctx context.Context, id string, day, hour int, timezone string) error {
	return db.exec(ctx, `
        UPDATE domain_subscriptions SET scan_schedule_day=$2, scan_schedule_hour=$3, scan_timezone=$4 WHERE id=$1
    `, id, day, hour, timezone)
}

func (db *DB) ClaimDispatchSlot(ctx context.Context, subscriptionID string, slot time.Time) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `
        INSERT INTO dispatch_slots (subscription_id, slot) VALUES ($1, $2)
        ON CONFLICT DO NOTHING
    `, subscriptionID, slot.UTC())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// AnalysisRepository

func (db *DB) SaveAnalysis(ctx context.Context, runID string, a domain.BusinessAnalysis) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}
	_, err = db.Pool.Exec(ctx, `
        INSERT INTO scan_analyses (scan_run_id, analysis) VALUES ($1, $2)
        ON CONFLICT (scan_run_id) DO UPDATE SET analysis = EXCLUDED.analysis, updated_at = now()
    `, runID, payload)
	return err
}

func (db *DB) GetAnalysis(ctx context.Context, runID string) (domain.BusinessAnalysis, bool, error) {
	var a domain.BusinessAnalysis
	var payload []byte
	err := db.Pool.QueryRow(ctx, `SELECT analysis FROM scan_analyses WHERE scan_run_id = $1`, runID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return a, false, nil
	}
	if err != nil {
		return a, false, err
	}
	if err := json.Unmarshal(payload, &a); err != nil {
		return a, false, err
	}
	return a, true, nil
}

// replaceAll deletes every row of table for runID and inserts the new rows in
// one transaction, so re-running a step never duplicates data.
func (db *DB) replaceAll(ctx context.Context, table, runID string, insert func(tx pgx.Tx) error) (err error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()
	if _, err = tx.Exec(ctx, `DELETE FROM `+table+` WHERE scan_run_id = $1`, runID); err != nil {
		return err
	}
	return insert(tx)
}

// QueryRepository

func (db *DB) ReplaceQueries(ctx context.Context, runID string, queries []domain.ResearchedQuery) error {
	return db.replaceAll(ctx, "scan_queries", runID, func(tx pgx.Tx) error {
		for i, q := range queries {
			if _, err := tx.Exec(ctx, `
                INSERT INTO scan_queries (scan_run_id, position, query, category, suggested_by, relevance_score)
                VALUES ($1, $2, $3, $4, $5, $6)
            `, runID, i, q.Query, string(q.Category), platformStrings(q.SuggestedBy), q.RelevanceScore); err != nil {
				return err
			}
		}
		return nil
	})
}

func (db *DB) ListQueries(ctx context.Context, runID string) ([]domain.ResearchedQuery, error) {
	rows, err := db.Pool.Query(ctx, `
        SELECT query, category, suggested_by, relevance_score FROM scan_queries
        WHERE scan_run_id = $1 ORDER BY position
    `, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.ResearchedQuery
	for rows.Next() {
		var q domain.ResearchedQuery
		var category string
		var by []string
		if err := rows.Scan(&q.Query, &category, &by, &q.RelevanceScore); err != nil {
			return nil, err
		}
		q.Category = domain.Category(category)
		q.SuggestedBy = toPlatforms(by)
		out = append(out, q)
	}
	return out, rows.Err()
}

// ResultRepository

func (db *DB) ReplaceResults(ctx context.Context, runID string, results []domain.PlatformResult) error {
	return db.replaceAll(ctx, "scan_results", runID, func(tx pgx.Tx) error {
		for _, r := range results {
			competitors := r.Competitors
			if competitors == nil {
				competitors = []string{}
			}
			if _, err := tx.Exec(ctx, `
                INSERT INTO scan_results (scan_run_id, query, platform, response, mentioned, position, competitors)
                VALUES ($1, $2, $3, $4, $5, $6, $7)
                ON CONFLICT (scan_run_id, query, platform) DO UPDATE
                SET response = EXCLUDED.response, mentioned = EXCLUDED.mentioned,
                    position = EXCLUDED.position, competitors = EXCLUDED.competitors
            `, runID, r.Query, string(r.Platform), r.Response, r.Mentioned, r.Position, competitors); err != nil {
				return err
			}
		}
		return nil
	})
}

func (db *DB) ListResults(ctx context.Context, runID string) ([]domain.PlatformResult, error) {
	rows, err := db.Pool.Query(ctx, `
        SELECT query, platform, response, mentioned, position, competitors FROM scan_results
        WHERE scan_run_id = $1 ORDER BY query, platform
    `, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.PlatformResult
	for rows.Next() {
		r := domain.PlatformResult{RunID: runID}
		var platform string
		if err := rows.Scan(&r.Query, &platform, &r.Response, &r.Mentioned, &r.Position, &r.Competitors); err != nil {
			return nil, err
		}
		r.Platform = domain.Platform(platform)
		out = append(out, r)
	}
	return out, rows.Err()
}

// BrandRepository

func (db *DB) ReplaceBrandResults(ctx context.Context, runID string, results []domain.BrandAwarenessResult) error {
	return db.replaceAll(ctx, "brand_awareness_results", runID, func(tx pgx.Tx) error {
		for _, r := range results {
			if _, err := tx.Exec(ctx, `
                INSERT INTO brand_awareness_results (scan_run_id, platform, recognized, response)
                VALUES ($1, $2, $3, $4)
            `, runID, string(r.Platform), r.Recognized, r.Response); err != nil {
				return err
			}
		}
		return nil
	})
}

func (db *DB) ListBrandResults(ctx context.Context, runID string) ([]domain.BrandAwarenessResult, error) {
	rows, err := db.Pool.Query(ctx, `
        SELECT platform, recognized, response FROM brand_awareness_results
        WHERE scan_run_id = $1 ORDER BY platform
    `, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.BrandAwarenessResult
	for rows.Next() {
		r := domain.BrandAwarenessResult{RunID: runID}
		var platform string
		if err := rows.Scan(&platform, &r.Recognized, &r.Response); err != nil {
			return nil, err
		}
		r.Platform = domain.Platform(platform)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (db *DB) HasCompetitorData(ctx context.Context, runID string) (bool, error) {
	var exists bool
	err := db.Pool.QueryRow(ctx, `
        SELECT EXISTS (SELECT 1 FROM scan_results WHERE scan_run_id = $1 AND cardinality(competitors) > 0)
    `, runID).Scan(&exists)
	return exists, err
}

func (db *DB) SaveCompetitiveSummary(ctx context.Context, runID string, summary string) error {
	_, err := db.Pool.Exec(ctx, `
        INSERT INTO competitive_summaries (scan_run_id, summary) VALUES ($1, $2)
        ON CONFLICT (scan_run_id) DO UPDATE SET summary = EXCLUDED.summary, updated_at = now()
    `, runID, summary)
	return err
}

func (db *DB) GetCompetitiveSummary(ctx context.Context, runID string) (string, bool, error) {
	var summary string
	err := db.Pool.QueryRow(ctx, `SELECT summary FROM competitive_summaries WHERE scan_run_id = $1`, runID).Scan(&summary)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return summary, true, nil
}

// UsageRepository

func (db *DB) RecordUsage(ctx context.Context, u domain.Usage) error {
	_, err := db.Pool.Exec(ctx, `
        INSERT INTO llm_usage (scan_run_id, platform, purpose, input_tokens, output_tokens)
        VALUES ($1, $2, $3, $4, $5)
    `, u.RunID, string(u.Platform), u.Purpose, u.InputTokens, u.OutputTokens)
	return err
}

// FlagRepository

func (db *DB) LoadFlags(ctx context.Context) (map[string]bool, error) {
	rows, err := db.Pool.Query(ctx, `SELECT name, enabled FROM feature_flags`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]bool{}
	for rows.Next() {
		var name string
		var enabled bool
		if err := rows.Scan(&name, &enabled); err != nil {
			return nil, err
		}
		out[name] = enabled
	}
	return out, rows.Err()
}

func platformStrings(ps []domain.Platform) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, string(p))
	}
	return out
}

func toPlatforms(ss []string) []domain.Platform {
	out := make([]domain.Platform, 0, len(ss))
	for _, s := range ss {
		out = append(out, domain.Platform(s))
	}
	return out
}
