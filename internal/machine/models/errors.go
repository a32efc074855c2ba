package models

import "errors"

// ErrInvalidSupplyCount rejects non-positive paper or ink refill counts.
var ErrInvalidSupplyCount = errors.New("invalid supply count")
