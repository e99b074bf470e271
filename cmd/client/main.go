// Command client is an interactive chat client: it joins one room, prints
// the room's chat and sends every line typed on stdin.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/omochice/fcchat/internal/config"
	"github.com/omochice/fcchat/pkg/client"
	"github.com/omochice/fcchat/pkg/protocol"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	endpoint := flag.String("server", "", "Chat server (host:port for tcp, ws:// URL for websocket)")
	kind := flag.String("transport", "", "tcp or websocket")
	username := flag.String("username", "", "Username for chat, guest when empty")
	room := flag.Int("room", 0, "Model or room id to join")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	if *room == 0 {
		logger.Error("room is required, use -room")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err == nil {
		err = config.ParseEnv(cfg)
	}
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *endpoint != "" {
		cfg.Endpoint = *endpoint
	}
	if *kind != "" {
		cfg.Transport = *kind
	}
	if *username != "" {
		cfg.Username = *username
	}
	opts, err := cfg.ClientOptions()
	if err != nil {
		logger.Error("invalid options", "error", err)
		os.Exit(2)
	}
	opts.Logger = logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(opts)
	if err := c.Connect(ctx, true); err != nil {
		logger.Error("failed to connect to server", "error", err)
		os.Exit(1)
	}
	defer c.Disconnect(context.Background())

	c.OnPacket(protocol.FCTypeCMesg, func(p *protocol.Packet) {
		if line, ok := p.ChatString(); ok {
			fmt.Println(line)
		}
	})
	c.OnPacket(protocol.FCTypeJoinChan, func(p *protocol.Packet) {
		m, _ := p.PayloadMap()
		nm, _ := m["nm"].(string)
		switch {
		case nm == "":
		case p.Arg2&protocol.ChanPart != 0:
			fmt.Printf("*** %s left the chat ***\n", nm)
		default:
			fmt.Printf("*** %s joined the chat ***\n", nm)
		}
	})

	if _, err := c.JoinRoom(ctx, *room); err != nil {
		logger.Error("failed to join room", "room", *room, "error", err)
		return
	}
	fmt.Printf("Joined room %d as %s. Type your messages (or 'quit' to exit):\n", *room, c.Username())

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if text == "quit" || text == "exit" {
				if err := c.LeaveRoom(*room); err != nil {
					logger.Warn("failed to leave room", "error", err)
				}
				return
			}
			if err := c.SendChat(ctx, *room, text); err != nil {
				logger.Warn("failed to send message", "error", err)
			}
		}
	}
}
