package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"wavechat/native/internal/domain"
)

// Default STUN servers used when WAVECHAT_ICE_SERVERS is not set.
var defaultICEServers = []domain.ICEServer{
	{URL: "stun:stun.l.google.com:19302"},
	{URL: "stun:stun1.l.google.com:19302"},
}

// Config holds the application configuration.
type Config struct {
	RelayURL   string
	Token      string
	UserID     string
	ICEServers []domain.ICEServer
	AutoAnswer bool
	TicketURL  string
}

// Load reads configuration from a .env file (if present) and environment
// variables. Environment variables take precedence over .env values.
func Load() (*Config, error) {
	// godotenv.Load does not overwrite existing env vars
	_ = godotenv.Load()

	relay := os.Getenv("WAVECHAT_RELAY_URL")
	if relay == "" {
		return nil, fmt.Errorf("WAVECHAT_RELAY_URL environment variable is required")
	}

	userID := os.Getenv("WAVECHAT_USER_ID")
	if userID == "" {
		return nil, fmt.Errorf("WAVECHAT_USER_ID environment variable is required")
	}

	cfg := &Config{
		RelayURL:   relay,
		Token:      os.Getenv("WAVECHAT_TOKEN"),
		UserID:     userID,
		ICEServers: parseICEServers(os.Getenv("WAVECHAT_ICE_SERVERS")),
		AutoAnswer: os.Getenv("WAVECHAT_AUTO_ANSWER") == "1",
		TicketURL:  os.Getenv("WAVECHAT_TICKET_URL"),
	}
	return cfg, nil
}

// parseICEServers reads a comma-separated list of STUN/TURN URLs.
func parseICEServers(raw string) []domain.ICEServer {
	if raw == "" {
		return defaultICEServers
	}
	var servers []domain.ICEServer
	for _, u := range strings.Split(raw, ",") {
		u = strings.TrimSpace(u)
		if u != "" {
			servers = append(servers, domain.ICEServer{URL: u})
		}
	}
	if len(servers) == 0 {
		return defaultICEServers
	}
	return servers
}
