package application

import (
	"errors"

	"price-aggregator/internal/domain"
)

var ErrNotFound = domain.ErrNotFound
var ErrBadRequest = errors.New("bad request")
