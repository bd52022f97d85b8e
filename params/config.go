package params

import (
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

type Venue struct {
	// Owner may list new tokens.
	Owner common.Address
	// Address holds deposited ERC20 tokens in custody.
	Address common.Address
	// Depth is the default top-order count served to clients.
	Depth int
}

type Storage struct {
	DataDir string
	LogFile string
}

type Config struct {
	Venue   Venue
	Storage Storage
}

func Default() Config {
	return Config{
		Venue: Venue{
			Owner:   common.HexToAddress("0x0000000000000000000000000000000000000001"),
			Address: common.HexToAddress("0x00000000000000000000000000000000000d0e01"),
			Depth:   10,
		},
		Storage: Storage{
			DataDir: "data/venue",
			LogFile: "",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment
// variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if owner := os.Getenv("VENUE_OWNER"); owner != "" {
		cfg.Venue.Owner = common.HexToAddress(owner)
	}
	if addr := os.Getenv("VENUE_ADDRESS"); addr != "" {
		cfg.Venue.Address = common.HexToAddress(addr)
	}
	if depth := os.Getenv("VENUE_TOP_DEPTH"); depth != "" {
		if n, err := strconv.Atoi(depth); err == nil && n > 0 {
			cfg.Venue.Depth = n
		}
	}
	if dir := os.Getenv("VENUE_DB_PATH"); dir != "" {
		cfg.Storage.DataDir = dir
	}
	if logFile := os.Getenv("VENUE_LOG_FILE"); logFile != "" {
		cfg.Storage.LogFile = logFile
	}

	return cfg
}
