// Command server runs a local chat server that relays room chat, for
// trying fcchat clients without a real chat server.
package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/omochice/fcchat/internal/fakeserver"
	"github.com/omochice/fcchat/internal/transport"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8080", "Address to listen on")
	kindName := flag.String("transport", "websocket", "tcp or websocket")
	models := flag.Int("models", 20, "Number of demo models announced after login")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	kind, err := transport.ParseKind(*kindName)
	if err != nil {
		logger.Error("invalid transport", "error", err)
		os.Exit(2)
	}

	room := fakeserver.NewChatRoom()
	srv, err := fakeserver.StartAt(kind, *addr, fakeserver.Chain(
		fakeserver.GuestLogin(),
		fakeserver.DemoModels(*models),
		room.Handle,
	), logger)
	if err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}
	logger.Info("chat server started", "endpoint", srv.Endpoint(), "transport", kind.String())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("shutting down", "signal", sig.String())
	srv.Stop()
}
