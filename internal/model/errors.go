package model

import "errors"

// ErrNotFound is returned by stores when a lookup matches no record.
var ErrNotFound = errors.New("record not found")
