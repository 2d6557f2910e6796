package service

import "errors"

var (
	ErrNotFound     = errors.New("error not found")
	ErrUnavailable  = errors.New("error result unavailable")
	ErrInvalidInput = errors.New("error invalid input")
)
