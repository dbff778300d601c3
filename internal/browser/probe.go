package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// errProbe marks a failed readiness probe; the caller keeps polling.
var errProbe = errors.New("cdp endpoint not ready")

var probeDialer = websocket.Dialer{
	Proxy:            http.ProxyFromEnvironment,
	HandshakeTimeout: 2 * time.Second,
}

// probeCDP reports whether endpoint completes a websocket handshake. The
// connection is closed immediately after.
func probeCDP(ctx context.Context, endpoint string) error {
	conn, resp, err := probeDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("%w: handshake status %d", errProbe, resp.StatusCode)
		}
		return fmt.Errorf("%w: %v", errProbe, err)
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = conn.Close()
	return nil
}
