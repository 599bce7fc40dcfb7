// Linkchat-bridge: WebSocket frame relay for Link-Chat.
//
// The hub stands in for a shared Ethernet segment: linkchat processes
// started with -bridge connect here instead of opening raw sockets, and
// the hub routes their frames by destination MAC (broadcast included).
// Useful for trying the protocol without root, or across machines that
// do not share a physical segment.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/pterm/pterm"

	"github.com/DayanCabrera2003/Link-Chat/internal/transport"
	"github.com/DayanCabrera2003/Link-Chat/internal/util"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	listenFlag := flag.String("listen", ":7748", "Address to listen on")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("Link-Chat bridge v%s", version))

	hub := transport.NewHub()
	port, err := hub.Start(*listenFlag)
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
	defer hub.Close()

	util.LogInfo("bridge hub listening on port %d (clients connect to ws://<host>:%d/frames)", port, port)

	<-ctx.Done()
	pterm.Println("bye")
}
