// Пакет model — доменные модели Record Module.
// Record — маппинг таблицы medical_records: привязка content id
// к пациенту, дайджесту водяного знака и метаданным кодирования.
package model

import "time"

// Типы медицинских записей (значения исходной системы).
const (
	RecordTypePrescription = "prescription"
	RecordTypeLabReport    = "labReport"
	RecordTypeImaging      = "imaging"
	RecordTypeOther        = "other"
)

// ValidRecordType проверяет, что тип записи входит в допустимый набор.
func ValidRecordType(t string) bool {
	switch t {
	case RecordTypePrescription, RecordTypeLabReport, RecordTypeImaging, RecordTypeOther:
		return true
	}
	return false
}

// Record — запись медицинского документа в medical_records.
// ContentID, WatermarkDigest и EncodeTimestamp меняются только
// атомарно (при создании и при симуляции подмены) — поодиночке
// их обновлять нельзя, иначе верификация теряет смысл.
type Record struct {
	// RecordID — UUID записи (задаётся при загрузке)
	RecordID string
	// ContentID — content id (CID) в pinning-сервисе; уникален
	ContentID string
	// PreviousContentID — CID до подмены (provenance, опционально)
	PreviousContentID *string
	// FileName — оригинальное имя файла
	FileName string
	// ContentType — MIME-тип файла
	ContentType string
	// RecordType — тип записи: prescription, labReport, imaging, other
	RecordType string
	// OwnerName — имя врача или учреждения (опционально)
	OwnerName *string
	// Description — описание записи (опционально)
	Description *string
	// FileSize — размер файла в байтах (опционально, информационное)
	FileSize *int64
	// PatientID — идентификатор пациента-владельца
	PatientID string
	// WatermarkDigest — дайджест водяного знака, полученный при кодировании
	WatermarkDigest string
	// EncodeTimestamp — точная строка timestamp, переданная кодеку.
	// Хранится как строка: кодек чувствителен к байтовому представлению,
	// при верификации она воспроизводится без изменений.
	EncodeTimestamp string
	// Tampered — запись подменена Tamper Simulator'ом
	Tampered bool
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}
