package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"actarchive/internal/access"
	"actarchive/internal/inventory/models"
	id "actarchive/pkg/domain"
	"actarchive/pkg/platform/sentinel"
	txcontext "actarchive/pkg/platform/tx"
)

// insertChunkSize bounds the arrays sent in one unnest insert.
const insertChunkSize = 5000

// PostgresStore persists batches in inventory_batches and their records in
// inventory_records (ON DELETE CASCADE).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateBatch inserts the batch row and its records in one transaction. A
// transaction already carried by ctx is joined instead of opening a new one.
func (s *PostgresStore) CreateBatch(ctx context.Context, batch *models.Batch, records []models.Record) error {
	if tx, ok := txcontext.From(ctx); ok {
		return insertBatch(ctx, tx, batch, records)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch insert: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := insertBatch(ctx, tx, batch, records); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch insert: %w", err)
	}
	return nil
}

func insertBatch(ctx context.Context, tx txcontext.Executor, batch *models.Batch, records []models.Record) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO inventory_batches (id, uploaded_by, source_filename, record_count, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.UUID(batch.ID), uuid.UUID(batch.UploadedBy), batch.SourceFilename, batch.RecordCount, batch.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert inventory batch: %w", err)
	}

	for start := 0; start < len(records); start += insertChunkSize {
		chunk := records[start:min(start+insertChunkSize, len(records))]
		var (
			rowNumbers = make([]int64, len(chunk))
			bureaux    = make([]string, len(chunk))
			types      = make([]string, len(chunk))
			years      = make([]int64, len(chunk))
			registres  = make([]string, len(chunk))
			actes      = make([]string, len(chunk))
		)
		for i, rec := range chunk {
			rowNumbers[i] = int64(rec.RowNumber)
			bureaux[i] = rec.Bureau
			types[i] = rec.RegistreType
			years[i] = int64(rec.Year)
			registres[i] = rec.RegistreNumber
			actes[i] = rec.ActeNumber
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO inventory_records (batch_id, row_number, bureau, registre_type, year, registre_number, acte_number)
			SELECT $1, r.row_number, r.bureau, r.registre_type, r.year, r.registre_number, r.acte_number
			FROM unnest($2::int[], $3::text[], $4::text[], $5::int[], $6::text[], $7::text[])
				AS r(row_number, bureau, registre_type, year, registre_number, acte_number)
		`, uuid.UUID(batch.ID), pq.Array(rowNumbers), pq.Array(bureaux), pq.Array(types),
			pq.Array(years), pq.Array(registres), pq.Array(actes))
		if err != nil {
			return fmt.Errorf("insert inventory records: %w", err)
		}
	}
	return nil
}

const batchColumns = `id, uploaded_by, source_filename, record_count, created_at`

func (s *PostgresStore) FindBatch(ctx context.Context, batchID id.BatchID) (*models.Batch, error) {
	row := txcontext.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+batchColumns+` FROM inventory_batches WHERE id = $1`, uuid.UUID(batchID))
	batch, err := scanBatch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find inventory batch: %w", err)
	}
	return batch, nil
}

func (s *PostgresStore) ListBatches(ctx context.Context) ([]*models.Batch, error) {
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx,
		`SELECT `+batchColumns+` FROM inventory_batches ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list inventory batches: %w", err)
	}
	defer rows.Close()

	batches := make([]*models.Batch, 0)
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan inventory batch: %w", err)
		}
		batches = append(batches, batch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory batches: %w", err)
	}
	return batches, nil
}

func (s *PostgresStore) ListRecords(ctx context.Context, batchID id.BatchID) ([]models.Record, error) {
	if err := s.requireBatch(ctx, batchID); err != nil {
		return nil, err
	}
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx, `
		SELECT row_number, bureau, registre_type, year, registre_number, acte_number
		FROM inventory_records WHERE batch_id = $1 ORDER BY row_number
	`, uuid.UUID(batchID))
	if err != nil {
		return nil, fmt.Errorf("list inventory records: %w", err)
	}
	defer rows.Close()

	records := make([]models.Record, 0)
	for rows.Next() {
		rec := models.Record{BatchID: batchID}
		if err := rows.Scan(&rec.RowNumber, &rec.Bureau, &rec.RegistreType, &rec.Year, &rec.RegistreNumber, &rec.ActeNumber); err != nil {
			return nil, fmt.Errorf("scan inventory record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory records: %w", err)
	}
	return records, nil
}

// ListKeys returns the keys of the batch's records that pass filter and scope.
func (s *PostgresStore) ListKeys(ctx context.Context, batchID id.BatchID, filter id.KeyFilter, scope access.Scope) ([]id.ClassificationKey, error) {
	if err := s.requireBatch(ctx, batchID); err != nil {
		return nil, err
	}

	clauses := []string{"batch_id = $1"}
	args := []any{uuid.UUID(batchID)}
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.Bureau != "" {
		add("bureau = $%d", filter.Bureau)
	}
	if filter.RegistreType != "" {
		add("registre_type = $%d", filter.RegistreType)
	}
	if filter.Year != 0 {
		add("year = $%d", filter.Year)
	}
	if !scope.All() {
		if _, ownerOnly := scope.OwnerID(); ownerOnly {
			return []id.ClassificationKey{}, nil
		}
		add("bureau = ANY($%d)", pq.Array(scope.Bureaux()))
	}

	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx, `
		SELECT bureau, registre_type, year, registre_number, acte_number
		FROM inventory_records WHERE `+strings.Join(clauses, " AND "), args...)
	if err != nil {
		return nil, fmt.Errorf("list inventory keys: %w", err)
	}
	defer rows.Close()

	keys := make([]id.ClassificationKey, 0)
	for rows.Next() {
		var k id.ClassificationKey
		if err := rows.Scan(&k.Bureau, &k.RegistreType, &k.Year, &k.RegistreNumber, &k.ActeNumber); err != nil {
			return nil, fmt.Errorf("scan inventory key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory keys: %w", err)
	}
	return keys, nil
}

// DeleteBatch removes the batch; its records go with it through the cascade.
func (s *PostgresStore) DeleteBatch(ctx context.Context, batchID id.BatchID) error {
	res, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, `DELETE FROM inventory_batches WHERE id = $1`, uuid.UUID(batchID))
	if err != nil {
		return fmt.Errorf("delete inventory batch: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete inventory batch rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) requireBatch(ctx context.Context, batchID id.BatchID) error {
	var exists bool
	err := txcontext.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM inventory_batches WHERE id = $1)`, uuid.UUID(batchID)).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check inventory batch: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatch(row rowScanner) (*models.Batch, error) {
	var (
		batch      models.Batch
		batchID    uuid.UUID
		uploadedBy uuid.UUID
	)
	if err := row.Scan(&batchID, &uploadedBy, &batch.SourceFilename, &batch.RecordCount, &batch.CreatedAt); err != nil {
		return nil, err
	}
	batch.ID = id.BatchID(batchID)
	batch.UploadedBy = id.UserID(uploadedBy)
	return &batch, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
