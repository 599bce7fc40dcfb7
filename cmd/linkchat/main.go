// Linkchat: chat and file transfer over raw Ethernet frames.
//
// Frames travel on a private EtherType with no IP underneath, so peers
// must share a broadcast domain. File transfers ride a stop-and-wait
// reliability layer with per-fragment checksums and bounded retries.
//
// Raw sockets need root; the -bridge flag swaps in a WebSocket transport
// (see cmd/linkchat-bridge) so unprivileged processes can talk too.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/DayanCabrera2003/Link-Chat/internal/app"
	"github.com/DayanCabrera2003/Link-Chat/internal/config"
	"github.com/DayanCabrera2003/Link-Chat/internal/transfer"
	"github.com/DayanCabrera2003/Link-Chat/internal/transport"
	"github.com/DayanCabrera2003/Link-Chat/internal/util"
)

var version = "dev"

func main() {
	// Root context; cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	configPath := flag.String("config", "linkchat.toml", "Path to TOML config file")
	ifaceFlag := flag.String("iface", "", "Network interface to bind (default: autodetect)")
	nameFlag := flag.String("name", "", "Username announced in discovery")
	dirFlag := flag.String("dir", "", "Directory for received files")
	bridgeFlag := flag.String("bridge", "", "WebSocket bridge URL instead of a raw socket (e.g. ws://host:7748/frames)")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("Link-Chat v%s", version))
	pterm.Println()

	cfg, err := config.Load(*configPath)
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
	if *ifaceFlag != "" {
		cfg.Interface = *ifaceFlag
	}
	if *nameFlag != "" {
		cfg.Username = *nameFlag
	}
	if *dirFlag != "" {
		cfg.DownloadDir = *dirFlag
	}
	if *bridgeFlag != "" {
		cfg.BridgeURL = *bridgeFlag
	}
	if cfg.Username == "" {
		host, _ := os.Hostname()
		cfg.Username = host
	}

	conn, err := openTransport(cfg)
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
	defer conn.Close()
	util.LogInfo("transport ready, local address %s", conn.LocalAddr())

	util.StartStatsReporter(ctx)

	a := app.New(conn, cfg, func(c transfer.Completion) {
		pterm.Success.Printfln("received '%s' from [%s] (%d bytes)", c.Name, c.Peer, c.Received)
	})
	a.OnText = func(src net.HardwareAddr, body string) {
		pterm.Printfln("%s %s", pterm.Cyan(fmt.Sprintf("[%s]", src)), body)
	}

	go func() {
		if err := a.Run(ctx); err != nil {
			util.LogError("listener stopped: %v", err)
		}
		stop()
	}()

	runConsole(ctx, a)
	pterm.Println("bye")
}

// openTransport picks the bridge or raw-socket transport from the config.
func openTransport(cfg *config.Config) (transport.Conn, error) {
	iface, err := pickInterface(cfg.Interface)
	if err != nil {
		return nil, err
	}

	if cfg.BridgeURL != "" {
		return transport.DialBridge(cfg.BridgeURL, iface.HardwareAddr)
	}
	return transport.OpenRawSocket(iface)
}

func pickInterface(name string) (*net.Interface, error) {
	if name != "" {
		return net.InterfaceByName(name)
	}
	return util.FindInterface()
}

// runConsole is the interactive command loop.
func runConsole(ctx context.Context, a *app.App) {
	pterm.Println("commands:")
	pterm.Println("  discover                      find peers on the segment")
	pterm.Println("  peers                         list discovered peers")
	pterm.Println("  send <dest> <message>         send a chat message")
	pterm.Println("  sendfile <dest> <path>        send a file reliably")
	pterm.Println("  sendfolder <dest> <path>      send a directory tree")
	pterm.Println("  exit")
	pterm.Println()
	pterm.Println("<dest> is a MAC (aa:bb:cc:dd:ee:ff), a discovered username, or 'all'")
	pterm.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		if ctx.Err() != nil {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.SplitN(line, " ", 3)
		switch parts[0] {
		case "exit", "quit":
			return

		case "discover":
			if err := a.Discover(); err != nil {
				pterm.Error.Printfln("discovery failed: %v", err)
				continue
			}
			pterm.Println("discovery request sent, responses arrive asynchronously")

		case "peers":
			peers := a.Peers()
			if len(peers) == 0 {
				pterm.Println("no peers discovered yet; try 'discover'")
				continue
			}
			for _, p := range peers {
				pterm.Printfln("  %-20s %s  (seen %s)", p.Name, p.Addr, p.LastSeen.Format("15:04:05"))
			}

		case "send":
			if len(parts) < 3 {
				pterm.Error.Println("usage: send <dest> <message>")
				continue
			}
			dst, err := resolveDest(a, parts[1])
			if err != nil {
				pterm.Error.Printfln("%v", err)
				continue
			}
			if err := a.SendText(dst, parts[2]); err != nil {
				pterm.Error.Printfln("send failed: %v", err)
				continue
			}
			pterm.Success.Printfln("message sent to [%s]", dst)

		case "sendfile":
			if len(parts) < 3 {
				pterm.Error.Println("usage: sendfile <dest> <path>")
				continue
			}
			dst, err := resolveDest(a, parts[1])
			if err != nil {
				pterm.Error.Printfln("%v", err)
				continue
			}
			report, err := a.SendFile(ctx, dst, parts[2])
			if err != nil {
				pterm.Error.Printfln("transfer failed: %v", err)
				continue
			}
			pterm.Success.Printfln("sent '%s': %d fragments, %d bytes, %d retransmits in %s",
				report.Name, report.Fragments, report.Bytes, report.Retransmits, report.Elapsed.Round(time.Millisecond))

		case "sendfolder":
			if len(parts) < 3 {
				pterm.Error.Println("usage: sendfolder <dest> <path>")
				continue
			}
			dst, err := resolveDest(a, parts[1])
			if err != nil {
				pterm.Error.Printfln("%v", err)
				continue
			}
			if err := a.SendFolder(ctx, dst, parts[2]); err != nil {
				pterm.Error.Printfln("folder transfer failed: %v", err)
				continue
			}
			pterm.Success.Printfln("folder sent to [%s]", dst)

		default:
			pterm.Error.Printfln("unknown command %q (try: discover, peers, send, sendfile, sendfolder, exit)", parts[0])
		}
	}
}

// resolveDest turns a destination argument into a MAC address: a literal
// MAC, the keyword all/broadcast, or a username from the peer table.
func resolveDest(a *app.App, arg string) (net.HardwareAddr, error) {
	if arg == "all" || arg == "broadcast" {
		return transport.Broadcast, nil
	}
	if mac, err := net.ParseMAC(arg); err == nil {
		return mac, nil
	}
	if p, ok := a.Lookup(arg); ok {
		return p.Addr, nil
	}
	return nil, fmt.Errorf("unknown destination %q: not a MAC and not a discovered peer", arg)
}
