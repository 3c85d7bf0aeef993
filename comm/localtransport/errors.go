package localtransport

import "errors"

var errOutOfRange = errors.New("localtransport: rank out of range")
