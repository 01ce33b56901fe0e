// Package services defines the business logic for houses, districts, market
// analysis, and price alerts. This file centralizes common service-level
// error values so that they can be consistently returned by service methods
// and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import "errors"

var (
	// ErrHouseNotFound indicates that the requested house does not exist.
	ErrHouseNotFound = errors.New("house not found")

	// ErrDistrictNotFound indicates that the requested district does not exist.
	ErrDistrictNotFound = errors.New("district not found")

	// ErrAlertNotFound indicates that the requested price alert does not exist
	// or is not accessible to the current user.
	ErrAlertNotFound = errors.New("price alert not found")

	// ErrInvalidStatus is returned when a house status is outside the allowed
	// set (available, sold, reserved).
	ErrInvalidStatus = errors.New("invalid house status")

	// ErrInvalidPriceRange is returned when a list filter's minimum price
	// exceeds its maximum.
	ErrInvalidPriceRange = errors.New("minimum price exceeds maximum price")

	// ErrInvalidTargetPrice is returned when an alert's target price is not
	// strictly positive.
	ErrInvalidTargetPrice = errors.New("target price must be positive")

	// ErrMissingTitle is returned when a house is created without a title.
	ErrMissingTitle = errors.New("title is required")

	// ErrMissingDistrict is returned when a house is created without a
	// district reference.
	ErrMissingDistrict = errors.New("district is required")

	// ErrNoPriceData is returned by investment metrics when the house carries
	// no usable price.
	ErrNoPriceData = errors.New("house has no price data")

	// ErrInvalidReportType is returned when a market report is requested with
	// a period outside monthly, quarterly, or yearly.
	ErrInvalidReportType = errors.New("invalid report type")
)
