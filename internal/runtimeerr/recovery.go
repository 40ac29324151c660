package runtimeerr

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"time"

	"github.com/ShayCichocki/buildcheck/internal/taxonomy"
)

// Kind selects a recovery handler.
type Kind string

const (
	KindNone           Kind = ""
	KindAuthentication Kind = "Authentication"
	KindTimeout        Kind = "Timeout"
	KindDatabase       Kind = "Database"
	KindNetwork        Kind = "Network"
	KindValidation     Kind = "Validation"
	KindOperation      Kind = "Operation"
)

// Recovery reports what a recovery handler did.
type Recovery struct {
	Attempted  bool   `json:"attempted"`
	Successful bool   `json:"successful"`
	Action     string `json:"action,omitempty"`
}

// RecoveryFunc attempts a bounded recovery for err.
type RecoveryFunc func(ctx context.Context, err error) Recovery

// KindOf picks the recovery kind for err. Timeouts are checked before the
// general network case.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, taxonomy.ErrUnauthorized), errors.Is(err, fs.ErrPermission):
		return KindAuthentication
	case taxonomy.IsTimeout(err):
		return KindTimeout
	}

	switch taxonomy.ErrorCategory(err) {
	case taxonomy.DatabaseConnectivity:
		return KindDatabase
	case taxonomy.NetworkConnectivity:
		return KindNetwork
	}

	switch {
	case errors.Is(err, taxonomy.ErrValidation), errors.Is(err, taxonomy.ErrInvalidConfiguration):
		return KindValidation
	case errors.Is(err, taxonomy.ErrInvalidOperation):
		return KindOperation
	}
	return KindNone
}

// DefaultRecoveries returns the built-in handler for every kind. clearAuth
// may be nil.
func DefaultRecoveries(clearAuth func(context.Context) error, dialTimeout time.Duration) map[Kind]RecoveryFunc {
	if dialTimeout <= 0 {
		dialTimeout = 2 * time.Second
	}
	return map[Kind]RecoveryFunc{
		KindAuthentication: func(ctx context.Context, _ error) Recovery {
			r := Recovery{Attempted: true, Action: "clear auth state"}
			if clearAuth != nil {
				if err := clearAuth(ctx); err != nil {
					return r
				}
			}
			r.Successful = true
			return r
		},
		KindTimeout: func(ctx context.Context, _ error) Recovery {
			return Recovery{Attempted: true, Successful: ctx.Err() == nil, Action: "request may be retried with a longer deadline"}
		},
		KindDatabase: func(context.Context, error) Recovery {
			return Recovery{Attempted: true, Successful: false, Action: "database failures require operator intervention"}
		},
		KindNetwork: func(ctx context.Context, err error) Recovery {
			r := Recovery{Attempted: true, Action: "re-probe upstream dependency"}
			var opErr *net.OpError
			if !errors.As(err, &opErr) || opErr.Addr == nil {
				r.Action = "upstream dependency unreachable; no address to re-probe"
				return r
			}
			d := net.Dialer{Timeout: dialTimeout}
			conn, dialErr := d.DialContext(ctx, opErr.Addr.Network(), opErr.Addr.String())
			if dialErr != nil {
				return r
			}
			conn.Close()
			r.Successful = true
			return r
		},
		KindValidation: func(context.Context, error) Recovery {
			return Recovery{Attempted: true, Successful: true, Action: "rejected invalid input without side effects"}
		},
		KindOperation: func(context.Context, error) Recovery {
			return Recovery{Attempted: true, Successful: false, Action: "reset operation state; retry the request"}
		},
	}
}
