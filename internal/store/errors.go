package store

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrDebtorExists = errors.New("debtor exists")
	ErrEmptyBatch   = errors.New("empty batch")
)
