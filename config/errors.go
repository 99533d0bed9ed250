package config

import "errors"

// ErrInvalidOption reports a bad option value from any layer.
var ErrInvalidOption = errors.New("protostream: invalid option")
