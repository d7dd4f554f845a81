package fees

import "errors"

var errInvalidFee = errors.New("wallet returned no fee estimate")
