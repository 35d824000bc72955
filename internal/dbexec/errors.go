package dbexec

import "errors"

var (
	errScanWidth = errors.New("dbexec: scan destination count does not match column count")
	errScanDest  = errors.New("dbexec: buffered rows only scan into *any")
)
