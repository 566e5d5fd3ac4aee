package service

import "context"

// UnitConn exposes the D-Bus connection interface to tests.
type UnitConn = unitConn

// NewDBusBackendForTest builds a DBusBackend over a fake connection factory.
func NewDBusBackendForTest(newConn func(ctx context.Context) (UnitConn, error)) *DBusBackend {
	return &DBusBackend{newConn: newConn}
}
