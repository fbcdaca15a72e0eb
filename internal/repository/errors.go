package repository

import "errors"

var (
	// ErrKeyNotFound indicates the key has never been written
	ErrKeyNotFound = errors.New("key not found")

	// ErrStoreClosed indicates the store was used after Close
	ErrStoreClosed = errors.New("store closed")

	// ErrCorruptList indicates the stored value is not a JSON list
	ErrCorruptList = errors.New("saved plants value is not a JSON list")
)
