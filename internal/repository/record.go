package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/medrecord/record-module/internal/domain/model"
)

// recordColumns — список столбцов таблицы medical_records для SELECT-запросов.
// DRY: одно место для всех SELECT'ов.
const recordColumns = `record_id, content_id, previous_content_id, file_name, content_type,
	record_type, owner_name, description, file_size, patient_id,
	watermark_digest, encode_timestamp, tampered, created_at, updated_at`

// ListFilters — фильтры листинга записей.
// Все поля — указатели, nil = фильтр не применяется.
type ListFilters struct {
	// PatientID — фильтр по пациенту (exact match)
	PatientID *string
	// RecordType — фильтр по типу записи
	RecordType *string
	// Tampered — фильтр по флагу подмены
	Tampered *bool
}

// RecordRepository — интерфейс доступа к medical_records.
type RecordRepository interface {
	// Create создаёт новую запись. Дублирующийся content_id → ErrConflict.
	Create(ctx context.Context, rec *model.Record) error
	// GetByContentID возвращает запись по content id или ErrNotFound.
	GetByContentID(ctx context.Context, contentID string) (*model.Record, error)
	// List возвращает записи с фильтрацией и пагинацией + общее количество.
	List(ctx context.Context, filters ListFilters, limit, offset int) ([]*model.Record, int, error)
	// ApplyTamper атомарно подменяет контент записи: content_id → newContentID,
	// watermark_digest → newDigest, previous_content_id := старый content_id,
	// tampered := true. encode_timestamp и patient_id не меняются.
	// Ключ — ТЕКУЩИЙ content id: конкурентная подмена той же записи
	// не находит строку и получает ErrNotFound.
	ApplyTamper(ctx context.Context, contentID, newContentID, newDigest string) error
}

// recordRepo — реализация RecordRepository через pgx.
type recordRepo struct {
	db DBTX
}

// NewRecordRepository создаёт репозиторий медицинских записей.
func NewRecordRepository(db DBTX) RecordRepository {
	return &recordRepo{db: db}
}

func (r *recordRepo) Create(ctx context.Context, rec *model.Record) error {
	query := `
		INSERT INTO medical_records (record_id, content_id, previous_content_id, file_name,
			content_type, record_type, owner_name, description, file_size, patient_id,
			watermark_digest, encode_timestamp, tampered)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		rec.RecordID, rec.ContentID, rec.PreviousContentID, rec.FileName,
		rec.ContentType, rec.RecordType, rec.OwnerName, rec.Description, rec.FileSize,
		rec.PatientID, rec.WatermarkDigest, rec.EncodeTimestamp, rec.Tampered,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: запись с таким content id уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания записи: %w", err)
	}
	return nil
}

func (r *recordRepo) GetByContentID(ctx context.Context, contentID string) (*model.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM medical_records WHERE content_id = $1`, recordColumns)

	rec := &model.Record{}
	err := r.db.QueryRow(ctx, query, contentID).Scan(
		&rec.RecordID, &rec.ContentID, &rec.PreviousContentID, &rec.FileName, &rec.ContentType,
		&rec.RecordType, &rec.OwnerName, &rec.Description, &rec.FileSize, &rec.PatientID,
		&rec.WatermarkDigest, &rec.EncodeTimestamp, &rec.Tampered, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи: %w", err)
	}
	return rec, nil
}

func (r *recordRepo) List(ctx context.Context, filters ListFilters, limit, offset int) ([]*model.Record, int, error) {
	where, args := buildListWhere(filters, 1)
	argNum := len(args) + 1

	query := fmt.Sprintf(`
		SELECT %s FROM medical_records
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, recordColumns, where, argNum, argNum+1)

	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка получения списка записей: %w", err)
	}
	defer rows.Close()

	var result []*model.Record
	for rows.Next() {
		rec := &model.Record{}
		if err := rows.Scan(
			&rec.RecordID, &rec.ContentID, &rec.PreviousContentID, &rec.FileName, &rec.ContentType,
			&rec.RecordType, &rec.OwnerName, &rec.Description, &rec.FileSize, &rec.PatientID,
			&rec.WatermarkDigest, &rec.EncodeTimestamp, &rec.Tampered, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("ошибка сканирования записи: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ошибка итерации результатов: %w", err)
	}

	// Запрос общего количества (с теми же фильтрами, без LIMIT/OFFSET)
	countWhere, countArgs := buildListWhere(filters, 1)
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM medical_records %s`, countWhere)

	var total int
	if err := r.db.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта записей: %w", err)
	}

	return result, total, nil
}

// ApplyTamper — одиночный UPDATE: подмена content_id/watermark_digest
// и установка tampered в одной инструкции. Предыдущий content id
// сохраняется для provenance, старый контент в pinning-сервисе не удаляется.
func (r *recordRepo) ApplyTamper(ctx context.Context, contentID, newContentID, newDigest string) error {
	query := `
		UPDATE medical_records
		SET previous_content_id = content_id,
			content_id = $2,
			watermark_digest = $3,
			tampered = TRUE
		WHERE content_id = $1`

	tag, err := r.db.Exec(ctx, query, contentID, newContentID, newDigest)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: новый content id уже занят", ErrConflict)
		}
		return fmt.Errorf("ошибка подмены контента записи: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// buildListWhere строит WHERE-условие и аргументы для листинга записей.
// startArg — номер первого $-параметра (для корректной нумерации).
func buildListWhere(filters ListFilters, startArg int) (whereClause string, args []any) {
	var conditions []string
	argNum := startArg

	if filters.PatientID != nil && *filters.PatientID != "" {
		conditions = append(conditions, fmt.Sprintf("patient_id = $%d", argNum))
		args = append(args, *filters.PatientID)
		argNum++
	}

	if filters.RecordType != nil && *filters.RecordType != "" {
		conditions = append(conditions, fmt.Sprintf("record_type = $%d", argNum))
		args = append(args, *filters.RecordType)
		argNum++
	}

	if filters.Tampered != nil {
		conditions = append(conditions, fmt.Sprintf("tampered = $%d", argNum))
		args = append(args, *filters.Tampered)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	return where, args
}
