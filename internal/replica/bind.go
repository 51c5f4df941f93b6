package replica

import (
	"math/rand"
	"net"
	"strconv"

	"github.com/pkg/errors"
)

// ephemeralPortLow and ephemeralPortHigh bound the port range a replica
// binds its peer listener to on startup (spec.md §6: "Each replica, on
// startup, binds a random high port (49152-65535)").
const (
	ephemeralPortLow  = 49152
	ephemeralPortHigh = 65535

	bindAttempts = 32
)

// bindEphemeralPort binds a TCP listener on a random port in
// [ephemeralPortLow, ephemeralPortHigh], retrying a bounded number of times
// if the chosen port is already taken.
func bindEphemeralPort(host string) (net.Listener, error) {
	var lastErr error
	for i := 0; i < bindAttempts; i++ {
		port := ephemeralPortLow + rand.Intn(ephemeralPortHigh-ephemeralPortLow+1)
		addr := net.JoinHostPort(host, strconv.Itoa(port))
		lis, err := net.Listen("tcp", addr)
		if err == nil {
			return lis, nil
		}
		lastErr = err
	}
	return nil, errors.Wrapf(lastErr, "unable to bind an ephemeral port in [%d, %d] after %d attempts", ephemeralPortLow, ephemeralPortHigh, bindAttempts)
}
