package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type ServerConfig struct {
	LogLevel          string        `env:"LOG_LEVEL,required=true"`
	BadgerFilepath    string        `env:"BADGER_FILEPATH,required=true" validate:"required"`
	NodeID            int64         `env:"NODE_ID,default=1" validate:"min=0,max=1023"`
	GRPCAddress       string        `env:"GRPC_ADDRESS,default=:8080" validate:"hostname_port"`
	BlobAddress       string        `env:"BLOB_ADDRESS,default=:8081" validate:"hostname_port"`
	BlobRoot          string        `env:"BLOB_ROOT,required=true" validate:"required"`
	BlobPublicURL     string        `env:"BLOB_PUBLIC_URL,required=true" validate:"url"`
	AuthSecret        string        `env:"AUTH_SECRET,required=true" validate:"min=16"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h" validate:"gt=0"`
	DebugPort         int           `env:"DEBUG_PORT" validate:"min=0,max=65535"`
}

type ClientConfig struct {
	LogLevel         string `env:"LOG_LEVEL,default=INFO"`
	ServerAddress    string `env:"CHAT_SERVER_ADDR,default=localhost:8080" validate:"hostname_port"`
	BlobURL          string `env:"BLOB_URL,default=http://localhost:8081" validate:"url"`
	Nickname         string `env:"NICKNAME" validate:"max=32"`
	UploadChunkSize  int    `env:"UPLOAD_CHUNK_SIZE,default=262144" validate:"min=1024"`
	DefaultPixelSize int    `env:"DEFAULT_PIXEL_SIZE,default=10" validate:"min=1,max=256"`
	CensorWords      string `env:"CENSOR_WORDS"`
	CharReplacement  string `env:"CHARACTER_REPLACEMENT,default=*"`
	FeedAddress      string `env:"FEED_ADDRESS" validate:"omitempty,hostname_port"`
}

// LoadServerConfig reads an optional .env file, then the environment.
func LoadServerConfig() (ServerConfig, error) {
	var config ServerConfig
	return config, load(&config)
}

func LoadClientConfig() (ClientConfig, error) {
	var config ClientConfig
	return config, load(&config)
}

func load(config any) error {
	// A missing .env is fine, the environment may already be set
	_ = godotenv.Load()
	if _, err := env.UnmarshalFromEnviron(config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if err := validator.New().Struct(config); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Words splits the comma separated censor list.
func (c ClientConfig) Words() []string {
	var words []string
	for _, word := range strings.Split(c.CensorWords, ",") {
		if word = strings.TrimSpace(word); word != "" {
			words = append(words, word)
		}
	}
	return words
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
