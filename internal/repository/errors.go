package repository

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
)

// wrapErr tags connection-level failures as ErrStoreUnavailable so callers can
// tell an outage from a bad query.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if isConnectionError(err) {
		return fmt.Errorf("%w: %v", appErrors.ErrStoreUnavailable, err)
	}
	return err
}

func isConnectionError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 08: connection exception, 57: operator intervention (shutdown, cancel)
		class := pqErr.Code.Class()
		return class == "08" || class == "57"
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
