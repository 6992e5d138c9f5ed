package core

import "errors"

// User-input errors. These are detected before any file or database I/O.
var (
	ErrNoFile             = errors.New("no file provided")
	ErrEmptyFile          = errors.New("empty file")
	ErrInvalidCSV         = errors.New("invalid csv")
	ErrInvalidSpreadsheet = errors.New("invalid spreadsheet")
	ErrEmptyTableName     = errors.New("table name is required")
	ErrNoColumns          = errors.New("no columns selected")
	ErrUnknownKind        = errors.New("unknown database kind")
	ErrUnknownPolicy      = errors.New("unknown conflict policy")
	ErrMissingField       = errors.New("required connection field is empty")
	ErrInvalidField       = errors.New("invalid connection field")
)

// Load errors.
var (
	ErrTableExists   = errors.New("table already exists")
	ErrTooManyLoads  = errors.New("too many concurrent loads, please try again later")
	ErrLoadNotFound  = errors.New("load not found")
	ErrLoadCancelled = errors.New("load cancelled")
)
