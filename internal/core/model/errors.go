package model

import "errors"

var (
	ErrInvalidCoordinate       = errors.New("invalid tile coordinate")
	ErrOutOfCoverage           = errors.New("tile outside upstream coverage")
	ErrCapabilitiesUnavailable = errors.New("wmts capabilities unavailable")
	ErrUpstreamUnavailable     = errors.New("upstream tile unavailable")
	ErrUnknownEndpoint         = errors.New("unknown endpoint")
	ErrUnknownCoordinateSystem = errors.New("unknown coordinate system")
)
