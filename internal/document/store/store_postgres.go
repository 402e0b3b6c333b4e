package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"actarchive/internal/access"
	"actarchive/internal/document/models"
	id "actarchive/pkg/domain"
	"actarchive/pkg/platform/sentinel"
	txcontext "actarchive/pkg/platform/tx"
)

const pgUniqueViolation = "23505"

const documentColumns = `id, bureau, registre_type, year, registre_number, acte_number,
	status, file_path, virtual_path, original_filename, file_size,
	uploaded_by, reviewed_by, uploaded_at, reviewed_at, stored_at, updated_at,
	rejection_error_type, rejection_message, rejected_at`

// PostgresStore persists documents in the documents table.
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

// NewPostgres constructs a store on the connection pool. Calls join a
// transaction carried in ctx when there is one.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresTx constructs a store bound to tx, for RunInTx callbacks.
func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{tx: tx}
}

func (s *PostgresStore) exec(ctx context.Context) txcontext.Executor {
	if s.tx != nil {
		return s.tx
	}
	return txcontext.Pick(ctx, s.db)
}

func (s *PostgresStore) Create(ctx context.Context, doc *models.Document) error {
	query := `
		INSERT INTO documents (
			bureau, registre_type, year, registre_number, acte_number,
			status, file_path, virtual_path, original_filename, file_size,
			uploaded_by, reviewed_by, uploaded_at, reviewed_at, stored_at, updated_at,
			rejection_error_type, rejection_message, rejected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING id
	`
	rej := rejectionColumns(doc.Rejection)
	var newID int64
	err := s.exec(ctx).QueryRowContext(ctx, query,
		doc.Bureau, doc.RegistreType, doc.Year, doc.RegistreNumber, doc.ActeNumber,
		string(doc.Status), doc.FilePath, nullString(doc.VirtualPath), doc.OriginalFilename, doc.FileSize,
		uuid.UUID(doc.UploadedBy), nullUserID(doc.ReviewedBy), doc.UploadedAt, nullTime(doc.ReviewedAt), nullTime(doc.StoredAt), doc.UpdatedAt,
		rej.errorType, rej.message, rej.rejectedAt,
	).Scan(&newID)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create document: %w", err)
	}
	doc.ID = id.DocumentID(newID)
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, documentID id.DocumentID) (*models.Document, error) {
	return s.findOne(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, documentID)
}

// FindByIDForUpdate locks the row until the surrounding transaction ends.
func (s *PostgresStore) FindByIDForUpdate(ctx context.Context, documentID id.DocumentID) (*models.Document, error) {
	return s.findOne(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1 FOR UPDATE`, documentID)
}

func (s *PostgresStore) findOne(ctx context.Context, query string, documentID id.DocumentID) (*models.Document, error) {
	doc, err := scanDocument(s.exec(ctx).QueryRowContext(ctx, query, int64(documentID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find document: %w", err)
	}
	return doc, nil
}

// UpdateIfStatus writes doc only while the row still has the expected status.
func (s *PostgresStore) UpdateIfStatus(ctx context.Context, doc *models.Document, expected models.Status) error {
	query := `
		UPDATE documents SET
			status = $2, file_path = $3, virtual_path = $4, original_filename = $5, file_size = $6,
			reviewed_by = $7, reviewed_at = $8, stored_at = $9, updated_at = $10,
			rejection_error_type = $11, rejection_message = $12, rejected_at = $13
		WHERE id = $1 AND status = $14
	`
	rej := rejectionColumns(doc.Rejection)
	res, err := s.exec(ctx).ExecContext(ctx, query,
		int64(doc.ID),
		string(doc.Status), doc.FilePath, nullString(doc.VirtualPath), doc.OriginalFilename, doc.FileSize,
		nullUserID(doc.ReviewedBy), nullTime(doc.ReviewedAt), nullTime(doc.StoredAt), doc.UpdatedAt,
		rej.errorType, rej.message, rej.rejectedAt,
		string(expected),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("update document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	err = s.exec(ctx).QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM documents WHERE id = $1)`, int64(doc.ID)).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check document exists: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrInvalidState
}

func (s *PostgresStore) Delete(ctx context.Context, documentID id.DocumentID) error {
	res, err := s.exec(ctx).ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, int64(documentID))
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// List returns one page of visible documents ordered by ID, plus the total.
func (s *PostgresStore) List(ctx context.Context, filter models.ListFilter, scope access.Scope) ([]*models.Document, int, error) {
	w := &where{}
	if filter.Status != "" {
		w.add("status = $%d", string(filter.Status))
	}
	w.addKeyFilter(id.KeyFilter{Bureau: filter.Bureau, RegistreType: filter.RegistreType, Year: filter.Year})
	if !filter.UploadedBy.IsNil() {
		w.add("uploaded_by = $%d", uuid.UUID(filter.UploadedBy))
	}
	w.addScope(scope)

	var total int
	if err := s.exec(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`+w.sql(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}

	args := append(w.args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM documents%s ORDER BY id LIMIT $%d OFFSET $%d`,
		documentColumns, w.sql(), len(args)-1, len(args))
	rows, err := s.exec(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]*models.Document, 0, filter.Limit)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, total, nil
}

// ListStoredKeys returns the keys of visible documents in status stored.
func (s *PostgresStore) ListStoredKeys(ctx context.Context, filter id.KeyFilter, scope access.Scope) ([]id.ClassificationKey, error) {
	w := &where{}
	w.add("status = $%d", string(models.StatusStored))
	w.addKeyFilter(filter)
	w.addScope(scope)

	rows, err := s.exec(ctx).QueryContext(ctx,
		`SELECT bureau, registre_type, year, registre_number, acte_number FROM documents`+w.sql(), w.args...)
	if err != nil {
		return nil, fmt.Errorf("list stored keys: %w", err)
	}
	defer rows.Close()

	keys := make([]id.ClassificationKey, 0)
	for rows.Next() {
		var k id.ClassificationKey
		if err := rows.Scan(&k.Bureau, &k.RegistreType, &k.Year, &k.RegistreNumber, &k.ActeNumber); err != nil {
			return nil, fmt.Errorf("scan stored key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stored keys: %w", err)
	}
	return keys, nil
}

// where accumulates AND-ed predicates with positional arguments.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(format string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(format, len(w.args)))
}

func (w *where) addKeyFilter(f id.KeyFilter) {
	if f.Bureau != "" {
		w.add("bureau = $%d", f.Bureau)
	}
	if f.RegistreType != "" {
		w.add("registre_type = $%d", f.RegistreType)
	}
	if f.Year != 0 {
		w.add("year = $%d", f.Year)
	}
}

func (w *where) addScope(scope access.Scope) {
	if scope.All() {
		return
	}
	if owner, ok := scope.OwnerID(); ok {
		w.add("uploaded_by = $%d", uuid.UUID(owner))
		return
	}
	w.add("bureau = ANY($%d)", pq.Array(scope.Bureaux()))
}

func (w *where) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		doc         models.Document
		documentID  int64
		status      string
		virtualPath sql.NullString
		uploadedBy  uuid.UUID
		reviewedBy  uuid.NullUUID
		reviewedAt  sql.NullTime
		storedAt    sql.NullTime
		errorType   sql.NullString
		message     sql.NullString
		rejectedAt  sql.NullTime
	)
	err := row.Scan(
		&documentID, &doc.Bureau, &doc.RegistreType, &doc.Year, &doc.RegistreNumber, &doc.ActeNumber,
		&status, &doc.FilePath, &virtualPath, &doc.OriginalFilename, &doc.FileSize,
		&uploadedBy, &reviewedBy, &doc.UploadedAt, &reviewedAt, &storedAt, &doc.UpdatedAt,
		&errorType, &message, &rejectedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.ID = id.DocumentID(documentID)
	doc.Status = models.Status(status)
	doc.VirtualPath = virtualPath.String
	doc.UploadedBy = id.UserID(uploadedBy)
	if reviewedBy.Valid {
		reviewer := id.UserID(reviewedBy.UUID)
		doc.ReviewedBy = &reviewer
	}
	doc.ReviewedAt = timePtr(reviewedAt)
	doc.StoredAt = timePtr(storedAt)
	if errorType.Valid {
		doc.Rejection = &models.Rejection{
			ErrorType:  models.ErrorType(errorType.String),
			Message:    message.String,
			RejectedAt: rejectedAt.Time,
		}
	}
	return &doc, nil
}

type rejectionCols struct {
	errorType  sql.NullString
	message    sql.NullString
	rejectedAt sql.NullTime
}

func rejectionColumns(r *models.Rejection) rejectionCols {
	if r == nil {
		return rejectionCols{}
	}
	return rejectionCols{
		errorType:  sql.NullString{String: string(r.ErrorType), Valid: true},
		message:    sql.NullString{String: r.Message, Valid: true},
		rejectedAt: sql.NullTime{Time: r.RejectedAt, Valid: true},
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullUserID(u *id.UserID) uuid.NullUUID {
	if u == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*u), Valid: true}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
