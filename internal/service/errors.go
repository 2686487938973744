package service

import "errors"

// Ошибки бизнес-логики. Маппятся на HTTP-статусы в слое handlers.
var (
	// ErrValidation — некорректные входные данные.
	ErrValidation = errors.New("ошибка валидации")
	// ErrNotFound — запись с указанным content id не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrStorage — сбой сервиса закрепления контента или БД.
	ErrStorage = errors.New("ошибка хранилища")
	// ErrCodec — сбой сервиса водяных знаков: проверка невозможна,
	// но это не вердикт о подделке.
	ErrCodec = errors.New("ошибка кодека водяных знаков")
)
