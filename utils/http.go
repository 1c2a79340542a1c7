// utils/http.go
package utils

import (
	"net/http"
	"time"
)

// HTTPClient is the shared client for outbound calls to the external
// betting platform. The timeout is short: a slow platform must never
// stall a reconciliation tick.
var HTTPClient = &http.Client{
	Timeout: 10 * time.Second,
}
