// Command tappet is the tunnel's CLI front-end: argument parsing, the
// root-user refusal, and wiring the crypto/nonce/socket/TAP collaborators
// into a running tunnel.Loop.
//
// Grounded on the teacher's own main.go (os.Args-based mode dispatch, no
// flag-parsing dependency) and on the original tappet.c's argv handling and
// geteuid() root refusal, adapted from the teacher's elevation check (which
// requires admin privileges) to its exact opposite: this tool must not run
// as root, so that it attaches to a pre-existing TAP device rather than
// risking accidental interface creation.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/amenonsen/tappet/internal/crypto"
	"github.com/amenonsen/tappet/internal/keys"
	"github.com/amenonsen/tappet/internal/logging"
	"github.com/amenonsen/tappet/internal/netaddr"
	"github.com/amenonsen/tappet/internal/nonce"
	"github.com/amenonsen/tappet/internal/tapdev"
	"github.com/amenonsen/tappet/internal/tunnel"
	"github.com/amenonsen/tappet/internal/udpsock"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: tappet <iface> <nonce-file> <our-secret-key> <their-public-key> <address> <port> [-l]")
}

func main() {
	os.Exit(run())
}

// run contains all of main's logic so tests (and a future repl) can call it
// without os.Exit terminating the test binary. It returns the process exit
// code per spec §6: 0 is never returned in practice, since the loop only
// returns on a fatal error.
func run() int {
	if os.Geteuid() == 0 {
		fmt.Fprintln(os.Stderr, "tappet: refusing to run as root")
		return -1
	}

	args := os.Args[1:]
	isListener := false
	if len(args) == 7 && args[6] == "-l" {
		isListener = true
		args = args[:6]
	}
	if len(args) != 6 {
		usage()
		return -1
	}

	iface, nonceFile, ourSecretFile, theirPublicFile, address, port := args[0], args[1], args[2], args[3], args[4], args[5]

	logger := logging.NewStdLogger()

	ourSecret, err := keys.ReadKeyFile(ourSecretFile)
	if err != nil {
		logger.Printf("tappet: %v", err)
		return -1
	}
	theirPublic, err := keys.ReadKeyFile(theirPublicFile)
	if err != nil {
		logger.Printf("tappet: %v", err)
		return -1
	}

	serverAddr, err := netaddr.Parse(address, port)
	if err != nil {
		logger.Printf("tappet: %v", err)
		return -1
	}

	prefix, err := nonce.AcquirePrefix(nonceFile)
	if err != nil {
		logger.Printf("tappet: %v", err)
		return -1
	}

	tap, err := tapdev.Attach(iface)
	if err != nil {
		logger.Printf("tappet: %v", err)
		return -1
	}
	defer tap.Close()

	sock, err := udpsock.NewSocket(serverAddr, serverAddr, isListener)
	if err != nil {
		logger.Printf("tappet: %v", err)
		return -1
	}
	defer sock.Close()

	cryptoCtx := crypto.NewContext(ourSecret, theirPublic)
	nonceMgr := nonce.NewManager(prefix)

	cfg := tunnel.Config{
		IsListener: isListener,
		ServerAddr: serverAddr,
		Logger:     logger,
	}

	loop, err := tunnel.New(cfg, sock, tap, cryptoCtx, nonceMgr)
	if err != nil {
		logger.Printf("tappet: %v", err)
		return -1
	}

	role := "initiator"
	if isListener {
		role = "listener"
	}
	logger.Printf("tappet: attached to %s as %s, %s %s", iface, role, addrVerb(isListener), netaddr.Describe(serverAddr))

	if err := loop.Run(context.Background()); err != nil {
		logger.Printf("tappet: %v", err)
		return -1
	}

	return -1
}

func addrVerb(isListener bool) string {
	if isListener {
		return "bound to"
	}
	return "connecting to"
}
