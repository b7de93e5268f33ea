package api

import (
	"fmt"
	"net"
	"strconv"
	"syscall"

	"github.com/kickspeed/kickspeed/internal/errors"
	"github.com/kickspeed/kickspeed/internal/logger"
)

const maxPort = 65535

// Listen binds host:port. When the port is in use the following ports are
// tried, up to retries more attempts and never past port 65535. It returns
// the listener and the port actually bound.
func Listen(host string, port, retries int) (net.Listener, int, error) {
	log := GetLogger()

	var lastErr error
	for attempt := 0; attempt <= retries && port+attempt <= maxPort; attempt++ {
		addr := net.JoinHostPort(host, strconv.Itoa(port+attempt))
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			bound := port + attempt
			if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
				bound = tcp.Port
			}
			return ln, bound, nil
		}

		lastErr = err
		if !errors.Is(err, syscall.EADDRINUSE) {
			break
		}
		log.Warn("port in use, trying next",
			logger.Int("port", port+attempt),
			logger.Int("attempt", attempt+1))
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("port %d is out of range", port)
	}
	return nil, 0, errors.New(fmt.Errorf("failed to listen on %s from port %d: %w", host, port, lastErr)).
		Component("api").
		Category(errors.CategorySystem).
		Context("retries", retries).
		Build()
}
