package services

import "errors"

// ErrNoWorkbooks is returned when a batch has nothing to process.
var ErrNoWorkbooks = errors.New("no workbooks to process")
