package classify

import "errors"

var errBadMagic = errors.New("unrecognized bitmap file magic")
