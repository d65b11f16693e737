package custodyd

import (
	"fmt"
	"net"

	"github.com/coreos/go-systemd/activation"
)

// getSDListeners returns the sockets systemd passed to this process. Socket activation keeps the API port
// open across restarts.
func getSDListeners() ([]net.Listener, error) {
	listeners, err := activation.Listeners()
	if err != nil {
		return nil, fmt.Errorf("cannot retrieve listeners: %v", err)
	}
	if len(listeners) == 0 {
		return nil, fmt.Errorf("no sockets passed by systemd")
	}

	return listeners, nil
}
