// Command orcchat is a minimal terminal client for Open Rooms Chat. It logs
// in as a guest, lists the user's rooms, and keeps the selected room in sync
// through the polling engine while reading commands and messages from stdin.
package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/openrooms/chat-client/internal/api"
	"github.com/openrooms/chat-client/internal/config"
	"github.com/openrooms/chat-client/internal/engine"
	"github.com/openrooms/chat-client/internal/metrics"
)

func main() {
	app := &cli.App{
		Name:  "orcchat",
		Usage: "Terminal client for Open Rooms Chat",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to YAML config file",
			},
			&cli.StringFlag{
				Name:  "server",
				Usage: "Server base URL (overrides config)",
			},
			&cli.StringFlag{
				Name:  "room",
				Usage: "Room ID to select on startup",
			},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if server := c.String("server"); server != "" {
		cfg.Server.URL = server
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).With().Timestamp().Logger()

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	}()

	client, err := api.NewClient(api.ClientConfig{
		BaseURL:    cfg.Server.URL,
		HTTPClient: &http.Client{Timeout: cfg.Server.Timeout},
		Logger:     log,
	})
	if err != nil {
		return err
	}

	auth, err := client.GuestLogin(ctx)
	if err != nil {
		return fmt.Errorf("guest login: %w", err)
	}
	fmt.Printf("[system] logged in as %s\n", auth.User.DisplayName)

	if caps, err := client.Capabilities(ctx); err == nil {
		log.Debug().Str("server_version", caps.ServerVersion).
			Strs("features", caps.Features).Msg("server capabilities")
	}

	eng := engine.New(client, client, engine.Config{
		PollInterval:  cfg.Sync.PollInterval,
		FetchLimit:    cfg.Sync.FetchLimit,
		BackfillLimit: cfg.Sync.BackfillLimit,
	}, log)

	if page, err := client.MyRooms(ctx, 100, ""); err != nil {
		log.Warn().Err(err).Msg("failed to list rooms")
	} else {
		for _, r := range page.Rooms {
			eng.Track(r.RoomID, r.Name)
		}
		printRooms(eng)
	}

	if cfg.Metrics.Addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				log.Warn().Err(err).Msg("metrics listener stopped")
			}
		}()
	}

	engineDone := make(chan struct{})
	go func() {
		eng.Run(ctx)
		close(engineDone)
	}()

	if roomID := c.String("room"); roomID != "" {
		eng.SelectRoom(ctx, roomID)
	}

	// Consumer drain loop: render queued events on a fixed cadence,
	// independent of the polling rate.
	go func() {
		ticker := time.NewTicker(cfg.Sync.DrainInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, ev := range eng.Drain() {
					render(ev)
				}
			}
		}
	}()

	go readCommands(ctx, cancel, eng, client, log)

	<-engineDone
	return nil
}

// readCommands consumes stdin: lines starting with "/" are commands, any
// other line is sent to the active room.
func readCommands(ctx context.Context, cancel context.CancelFunc, eng *engine.Engine, client *api.Client, log zerolog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			roomID := eng.ActiveRoom()
			if roomID == "" {
				fmt.Println("[system] no room selected; use /select <room_id>")
				continue
			}
			if err := eng.Send(ctx, roomID, line); err != nil {
				fmt.Printf("[system] send failed: %v\n", err)
			}
			continue
		}

		cmd := line
		arg := ""
		if idx := strings.IndexByte(line, ' '); idx > 0 {
			cmd, arg = line[:idx], strings.TrimSpace(line[idx+1:])
		}
		switch cmd {
		case "/rooms":
			printRooms(eng)
		case "/select":
			if arg == "" {
				fmt.Println("[system] usage: /select <room_id>")
				continue
			}
			eng.SelectRoom(ctx, arg)
			fmt.Printf("[system] opened room %s\n", arg)
		case "/join":
			if arg == "" {
				fmt.Println("[system] usage: /join <room_id>")
				continue
			}
			if err := client.JoinRoom(ctx, arg); err != nil {
				fmt.Printf("[system] join failed: %v\n", err)
				continue
			}
			eng.Track(arg, arg)
			eng.SelectRoom(ctx, arg)
			fmt.Printf("[system] joined room %s\n", arg)
		case "/find":
			page, err := client.DirectoryRooms(ctx, arg, 50, "")
			if err != nil {
				fmt.Printf("[system] directory search failed: %v\n", err)
				continue
			}
			for _, r := range page.Rooms {
				fmt.Printf("  %s (%s)\n", r.Name, r.RoomID)
			}
		case "/quit":
			cancel()
			return
		default:
			fmt.Printf("[system] unknown command %s\n", cmd)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Warn().Err(err).Msg("stdin closed")
	}
	cancel()
}

func printRooms(eng *engine.Engine) {
	cursors := eng.Rooms()
	if len(cursors) == 0 {
		fmt.Println("[system] no rooms; use /join <room_id>")
		return
	}
	fmt.Println("[system] rooms:")
	for _, c := range cursors {
		marker := " "
		if c.RoomID == eng.ActiveRoom() {
			marker = "*"
		}
		fmt.Printf(" %s %s (%s)\n", marker, c.Name, c.RoomID)
	}
}

func render(ev engine.Event) {
	switch ev.Kind {
	case engine.KindMessage:
		m := ev.Message
		fmt.Printf("[%d] %s: %s\n", m.Seq, m.AuthorID, m.Text)
	case engine.KindNotice:
		fmt.Printf("[system] %s\n", ev.Notice)
	}
}
