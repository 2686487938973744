package pinclient

import "errors"

// ErrContentNotFound — контент с указанным content id не найден в gateway.
var ErrContentNotFound = errors.New("контент не найден в сервисе закрепления")
