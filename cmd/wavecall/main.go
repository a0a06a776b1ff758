package main

import (
	"bufio"
	"fmt"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"wavechat/native/internal/api"
	"wavechat/native/internal/call"
	"wavechat/native/internal/config"
	"wavechat/native/internal/domain"
	"wavechat/native/internal/media"
	"wavechat/native/internal/realtime"
	"wavechat/native/internal/signal"
	"wavechat/native/internal/webrtc"
)

const helpText = `wavecall - 1:1 voice/video calls over the wavechat relay

Usage:
  wavecall [options]

Commands (stdin):
  call <user> [video]   start a voice (default) or video call
  accept                answer the ringing incoming call
  hangup                end the current call
  quit                  exit

Environment Variables:
  WAVECHAT_RELAY_URL    relay websocket URL (required)
  WAVECHAT_USER_ID      local user identifier (required)
  WAVECHAT_TOKEN        relay/backend auth token
  WAVECHAT_ICE_SERVERS  comma-separated STUN/TURN URLs
  WAVECHAT_TICKET_URL   backend endpoint for session tickets
  WAVECHAT_AUTO_ANSWER  set to 1 to answer incoming calls immediately

Options:
  -h, --help  Show this help message
`

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "-h" || os.Args[1] == "--help") {
		fmt.Print(helpText)
		os.Exit(0)
	}

	w := zerolog.ConsoleWriter{Out: os.Stderr}
	zlog.Logger = zerolog.New(w).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("configuration")
	}

	iceServers := cfg.ICEServers
	relayToken := cfg.Token
	if cfg.TicketURL != "" {
		ticket, err := api.NewClient().FetchTicket(cfg.TicketURL, cfg.Token)
		if err != nil {
			zlog.Fatal().Err(err).Msg("fetch session ticket")
		}
		if len(ticket.ICEServers) > 0 {
			iceServers = ticket.ICEServers
		}
		if ticket.RelayToken != "" {
			relayToken = ticket.RelayToken
		}
	}

	relay, err := realtime.Dial(cfg.RelayURL, relayToken)
	if err != nil {
		zlog.Fatal().Err(err).Msg("connect relay")
	}
	defer relay.Close()

	binding := signal.New(relay)
	registry := media.NewRegistry()

	manager := call.NewManager(cfg.UserID, binding, registry, webrtc.Factory(iceServers), cfg.AutoAnswer)
	defer manager.Close()

	manager.OnStateChange(func(state domain.CallState) {
		switch state.Phase {
		case domain.PhaseIncoming:
			fmt.Printf("incoming %s call from %s: type 'accept' to answer\n", state.Kind, state.Counterpart)
		case domain.PhaseActive:
			fmt.Printf("call with %s active\n", state.Counterpart)
		case domain.PhaseIdle:
			fmt.Println("idle")
		}
	})
	manager.OnError(func(err error) {
		fmt.Printf("call failed: %v\n", err)
	})
	registry.OnChange(func(ev media.Event) {
		if ev.Stream != nil {
			zlog.Info().Str("slot", string(ev.Slot)).Int("tracks", len(ev.Stream.Tracks())).Msg("media handle ready")
		}
	})

	// Login boundary: the inbound channel is process-wide and outlives
	// individual calls.
	if err := binding.OpenInbound(cfg.UserID); err != nil {
		zlog.Fatal().Err(err).Msg("open inbound channel")
	}
	defer binding.Close()

	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		zlog.Info().Str("signal", sig.String()).Msg("shutting down")
		manager.Close()
		os.Exit(0)
	}()

	fmt.Printf("signed in as %s; 'call <user> [video]' to start\n", cfg.UserID)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "call":
			if len(fields) < 2 {
				fmt.Println("usage: call <user> [video]")
				continue
			}
			kind := domain.KindVoice
			if len(fields) > 2 && fields[2] == "video" {
				kind = domain.KindVideo
			}
			if err := manager.StartCall(fields[1], kind); err != nil {
				fmt.Printf("cannot call: %v\n", err)
			}
		case "accept":
			if err := manager.AcceptIncoming(); err != nil {
				fmt.Printf("cannot accept: %v\n", err)
			}
		case "hangup":
			if err := manager.EndCall(); err != nil {
				fmt.Printf("cannot hang up: %v\n", err)
			}
		case "quit", "exit":
			return
		default:
			fmt.Println("commands: call <user> [video], accept, hangup, quit")
		}
	}
}
