package boltsecurestore

import "errors"

var (
	ErrStoreLocked      = errors.New("store is locked")
	ErrPasswordRequired = errors.New("password must not be null")
	ErrInvalidPassword  = errors.New("password is not valid")

	// ErrRootKeyBucketNotFound and ErrEncKeyNotFound mean the db file was
	// not created by this package or got damaged.
	ErrRootKeyBucketNotFound = errors.New("root key bucket not found")
	ErrEncKeyNotFound        = errors.New("store encryption key not found")

	ErrBucketNotFound     = errors.New("bucket not found")
	ErrMissingBucketKey   = errors.New("missing bucket key")
	ErrForbiddenBucketKey = errors.New("bucket key is not allowed")

	ErrDataNotFound     = errors.New("data not found")
	ErrMissingDataKey   = errors.New("missing data key")
	ErrForbiddenDataKey = errors.New("data key is not allowed")
	ErrMissingData      = errors.New("missing data to add")
)
