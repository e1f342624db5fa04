package recall

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type PGStore struct {
	db                 *sql.DB
	overwriteFetchedAt bool
}

func NewPGStore(dsn string, overwriteFetchedAt bool) (*PGStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	s := &PGStore{db: db, overwriteFetchedAt: overwriteFetchedAt}
	if err := s.migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PGStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
create table if not exists crownsafe_records (
  agency text not null,
  source_id text not null,
  name text not null default '',
  brand text not null default '',
  identifiers jsonb not null default '{}',
  payload jsonb not null default '{}',
  fetched_at timestamptz not null,
  updated_at timestamptz not null default now(),
  primary key (agency, source_id)
);
create index if not exists crownsafe_records_fetched_at on crownsafe_records (fetched_at desc);
`)
	return err
}

// fetched_at only advances on conflict when the store is configured to
// overwrite it; the default keeps first-seen time.
func (s *PGStore) upsertSQL() string {
	fetchedAt := "crownsafe_records.fetched_at"
	if s.overwriteFetchedAt {
		fetchedAt = "excluded.fetched_at"
	}
	return fmt.Sprintf(`insert into crownsafe_records (agency, source_id, name, brand, identifiers, payload, fetched_at, updated_at)
values ($1,$2,$3,$4,$5,$6,$7,now())
on conflict (agency, source_id) do update set
  name = excluded.name,
  brand = excluded.brand,
  identifiers = excluded.identifiers,
  payload = excluded.payload,
  fetched_at = %s,
  updated_at = now()
returning (xmax = 0) as inserted`, fetchedAt)
}

func (s *PGStore) Upsert(ctx context.Context, rec Record) (UpsertOutcome, error) {
	identifiers, _ := json.Marshal(rec.Identifiers)
	payload, _ := json.Marshal(rec.Payload)
	var inserted bool
	err := s.db.QueryRowContext(ctx, s.upsertSQL(),
		rec.Agency, rec.SourceID, rec.Name, rec.Brand, identifiers, payload, rec.FetchedAt,
	).Scan(&inserted)
	if err != nil {
		return "", err
	}
	if inserted {
		return OutcomeInserted, nil
	}
	return OutcomeUpdated, nil
}

func (s *PGStore) UpsertBatch(ctx context.Context, recs []Record) (BatchResult, error) {
	var result BatchResult
	if len(recs) == 0 {
		return result, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, err
	}
	defer func() { _ = tx.Rollback() }()

	query := s.upsertSQL()
	for _, rec := range recs {
		identifiers, _ := json.Marshal(rec.Identifiers)
		payload, _ := json.Marshal(rec.Payload)
		var inserted bool
		if err := tx.QueryRowContext(ctx, query,
			rec.Agency, rec.SourceID, rec.Name, rec.Brand, identifiers, payload, rec.FetchedAt,
		).Scan(&inserted); err != nil {
			return BatchResult{}, err
		}
		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
	}
	if err := tx.Commit(); err != nil {
		return BatchResult{}, err
	}
	return result, nil
}

func (s *PGStore) Get(ctx context.Context, agency, sourceID string) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`select agency, source_id, name, brand, identifiers, payload, fetched_at from crownsafe_records where agency=$1 and source_id=$2`,
		agency, sourceID)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return Record{}, ErrNotFound
	}
	return rec, err
}

func (s *PGStore) All(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`select agency, source_id, name, brand, identifiers, payload, fetched_at from crownsafe_records order by fetched_at desc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PGStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `select count(*) from crownsafe_records`).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var identifiers, payload []byte
	if err := row.Scan(&rec.Agency, &rec.SourceID, &rec.Name, &rec.Brand, &identifiers, &payload, &rec.FetchedAt); err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal(identifiers, &rec.Identifiers); err != nil {
		rec.Identifiers = map[string]string{}
	}
	if err := json.Unmarshal(payload, &rec.Payload); err != nil {
		rec.Payload = map[string]any{}
	}
	return rec, nil
}
