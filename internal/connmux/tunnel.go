// Copyright (c) 2025 Pgrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

package connmux

import (
	"context"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"

	errs "pgrun/cli/internal/errors"
	"pgrun/cli/internal/profile"
)

const sshDialTimeout = 10 * time.Second

// sshDialFunc returns a pgconn-compatible dial function that carries the
// database stream through the profile's SSH hop instead of a direct TCP
// connection. Each database connection opens its own SSH client; closing the
// returned net.Conn closes the client with it.
func sshDialFunc(tun *profile.SSHTunnel) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		signer, err := loadSigner(tun.PrivateKeyPath)
		if err != nil {
			return nil, errs.Wrap(errs.TunnelFailed, "load SSH key "+tun.PrivateKeyPath, err)
		}

		port := tun.Port
		if port == 0 {
			port = 22
		}
		sshAddr := net.JoinHostPort(tun.Host, strconv.Itoa(port))

		clientCfg := &ssh.ClientConfig{
			User:            tun.User,
			Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
			Timeout:         sshDialTimeout,
		}

		client, err := ssh.Dial("tcp", sshAddr, clientCfg)
		if err != nil {
			return nil, errs.Wrap(errs.TunnelFailed, "dial SSH host "+sshAddr, err)
		}

		conn, err := client.Dial(network, addr)
		if err != nil {
			_ = client.Close()
			return nil, errs.Wrap(errs.TunnelFailed, "open tunnel to "+addr, err)
		}

		return &tunneledConn{Conn: conn, client: client}, nil
	}
}

// loadSigner reads and parses the private key used for tunnel authentication.
func loadSigner(path string) (ssh.Signer, error) {
	keyBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ssh.ParsePrivateKey(keyBytes)
}

// tunneledConn ties the lifetime of the SSH client to the forwarded stream.
type tunneledConn struct {
	net.Conn
	client *ssh.Client
}

func (c *tunneledConn) Close() error {
	err := c.Conn.Close()
	_ = c.client.Close()
	return err
}
