package registry

import "errors"

var (
	ErrNilConn           = errors.New("nil transport handle")
	ErrNameTaken         = errors.New("name already registered")
	ErrAlreadyRegistered = errors.New("transport already carries a session")
)
