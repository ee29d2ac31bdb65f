package main

import (
	"fmt"
	"net"
)

// detectOrigin builds the origin a phone on the same network uses to reach
// a server listening on addr.
func detectOrigin(addr string) (string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("parse server address %q: %w", addr, err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host, err = outboundIP()
		if err != nil {
			return "", fmt.Errorf("detect LAN address, set server.public_origin: %w", err)
		}
	}
	return "http://" + net.JoinHostPort(host, port), nil
}

// outboundIP returns the local address used to reach the internet. No
// packets are sent.
func outboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
