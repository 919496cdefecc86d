package repository

import "errors"

// ErrNotFound is returned when a row does not exist. Callers compare with
// errors.Is to map it onto their own taxonomy.
var ErrNotFound = errors.New("repository: not found")
