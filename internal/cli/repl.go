package cli

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/Tyrowin/nexus-chat-client/internal/client"
)

const helpText = `Commands:
  login <host:port> <user>     connect and authenticate
  register <host:port> <user>  create an account
  switch <host:port>           make a connected server active
  join <channel>               switch channel and load its history
  history [channel]            request channel history
  refresh                      reconnect every saved server
  servers                      list sessions
  settings                     show saved settings
  help                         show this text
  quit                         leave
Anything else is sent as a message to the active server.`

type scanResult struct {
	line string
	ok   bool
}

// runREPL reads one command per line and dispatches it. It returns on EOF,
// quit or exit, or when ctx is done.
func runREPL(ctx context.Context, a *App, scanner *bufio.Scanner) {
	for ctx.Err() == nil {
		line, ok := nextLine(ctx, scanner)
		if !ok {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !a.dispatch(ctx, line) {
			return
		}
	}
}

// nextLine scans one line without outliving ctx. Only one scan is in flight
// at a time, so password prompts never race the REPL for input. A scan
// abandoned on cancellation ends with the process.
func nextLine(ctx context.Context, scanner *bufio.Scanner) (string, bool) {
	res := make(chan scanResult, 1)
	go func() {
		ok := scanner.Scan()
		res <- scanResult{line: scanner.Text(), ok: ok}
	}()

	select {
	case r := <-res:
		return r.line, r.ok
	case <-ctx.Done():
		return "", false
	}
}

// dispatch runs one line and reports whether the REPL should continue.
func (a *App) dispatch(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	cmd, args := parts[0], parts[1:]

	var err error
	switch cmd {
	case "help":
		a.println(helpText)
	case "login":
		err = a.addServer(args, false)
	case "register":
		err = a.addServer(args, true)
	case "switch":
		if len(args) != 1 {
			err = usage("switch <host:port>")
			break
		}
		err = a.client.SwitchServer(args[0])
	case "join":
		if len(args) != 1 {
			err = usage("join <channel>")
			break
		}
		if err = a.client.SwitchChannel(args[0]); err == nil {
			err = a.client.RequestChannelHistory(args[0])
		}
	case "history":
		channel := ""
		if len(args) > 0 {
			channel = args[0]
		}
		err = a.client.RequestChannelHistory(channel)
	case "refresh":
		a.client.RefreshServers()
		a.println("Reconnecting saved servers...")
	case "servers":
		a.printServers(ctx)
	case "settings":
		err = a.printSettings(ctx)
	case "quit", "exit":
		a.println("Bye!")
		return false
	default:
		err = a.client.SendMessage(line, "")
	}

	if err != nil {
		a.println("error:", err)
	}
	return true
}

func usage(text string) error {
	return fmt.Errorf("usage: %s", text)
}

func (a *App) addServer(args []string, register bool) error {
	if len(args) != 2 {
		if register {
			return usage("register <host:port> <user>")
		}
		return usage("login <host:port> <user>")
	}
	host, port, err := net.SplitHostPort(args[0])
	if err != nil {
		return err
	}

	var pw []byte
	if register {
		pw, err = getNewPassword(a.out, a.fd)
	} else {
		pw, err = getPassword(a.out, a.fd, "Password: ")
	}
	if err != nil {
		return err
	}
	defer wipe(pw)

	return a.client.AddServer(client.ServerDetails{
		Host:     host,
		Port:     port,
		Username: args[1],
		Password: string(pw),
		Register: register,
	})
}
