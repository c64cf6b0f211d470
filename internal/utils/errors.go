package utils

import "errors"

// ----------------- storage ------------------
var (
	ErrStorageEmptyHostName       = errors.New("host name is empty")
	ErrStorageInvalidPortNumber   = errors.New("port number is empty")
	ErrStorageEmptyUsername       = errors.New("username is empty")
	ErrStorageEmptyPassword       = errors.New("password is empty")
	ErrStorageInvalidDatabaseName = errors.New("database name is empty")
	ErrStorageInvalidSslMode      = errors.New("SSL mode is invalid")
	ErrStorageInvalidPoolSize     = errors.New("pool size is invalid")
	ErrStorageInvalidTimeout      = errors.New("timeout is invalid")
)

// ----------------- cache ------------------
var (
	ErrCacheMiss = errors.New("cache: key not found")
)

// ----------------- pricing service ------------------
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrRunInProgress   = errors.New("pricing run already in progress")
	ErrEmptyRunRequest = errors.New("run request has no items or accounts")
)
