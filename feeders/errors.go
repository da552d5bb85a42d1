package feeders

import (
	"errors"
)

// Env feeder errors
var (
	ErrEnvInvalidStructure     = errors.New("env: invalid structure")
	ErrEnvEmptyPrefixAndSuffix = errors.New("env: prefix or suffix cannot be empty")
	ErrEnvConversion           = errors.New("env: cannot convert value")
	ErrFieldCannotBeSet        = errors.New("field cannot be set")
)

// File feeder errors
var (
	ErrUnsupportedExtension = errors.New("unsupported configuration file extension")
	ErrFileDecode           = errors.New("cannot decode configuration file")
)
