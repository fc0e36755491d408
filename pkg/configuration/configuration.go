package configuration

import (
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/fss-project/fss/pkg/encoding"
	"github.com/fss-project/fss/pkg/logging"
)

const (
	// DefaultBlockSize is the default transfer block size.
	DefaultBlockSize = 64 * 1024
	// MaximumBlockSize is the largest permitted transfer block size. It stays
	// well below the maximum gRPC message size so that a framed block always
	// fits in a single message.
	MaximumBlockSize = 16 * 1024 * 1024
	// DefaultShutdownGracePeriod is the default period that the server waits
	// for in-flight connections to finish after a shutdown request.
	DefaultShutdownGracePeriod = 10 * time.Second
)

// Server is the YAML server configuration object type.
type Server struct {
	// Root is the directory served to clients. If empty, the server's working
	// directory is used.
	Root string `yaml:"root"`
	// BlockSize is the size of the blocks used for file transfers.
	BlockSize ByteSize `yaml:"blockSize"`
	// MaximumConnections is the maximum number of simultaneously accepted
	// connections. A value of 0 imposes no limit.
	MaximumConnections int `yaml:"maximumConnections"`
	// ShutdownGracePeriod is the time allowed for in-flight connections to
	// complete after a shutdown request before they are forcibly closed.
	ShutdownGracePeriod time.Duration `yaml:"shutdownGracePeriod"`
	// LogLevel is the server's log level.
	LogLevel logging.Level `yaml:"logLevel"`
	// LockPath overrides the path of the server's root lock file. If empty, a
	// path derived from the root is used.
	LockPath string `yaml:"lockPath"`
	// Listing is the directory listing configuration.
	Listing struct {
		// Exclude is a list of doublestar patterns. Entries whose root-relative
		// path matches any of them are omitted from directory listings.
		Exclude []string `yaml:"exclude"`
	} `yaml:"listing"`
}

// DefaultServer returns a server configuration populated with default values.
func DefaultServer() *Server {
	return &Server{
		BlockSize:           DefaultBlockSize,
		ShutdownGracePeriod: DefaultShutdownGracePeriod,
		LogLevel:            logging.LevelInfo,
	}
}

// LoadServer loads a server configuration file from the specified path on top
// of the default configuration. If path is empty, the defaults are returned.
func LoadServer(path string) (*Server, error) {
	// Start with defaults. Fields absent from the file keep these values.
	result := DefaultServer()

	// Attempt to load the file if one was specified.
	if path != "" {
		if err := encoding.LoadAndUnmarshalYAML(path, result); err != nil {
			if os.IsNotExist(err) {
				return nil, errors.Errorf("configuration file does not exist: %s", path)
			}
			return nil, errors.Wrap(err, "unable to load server configuration")
		}
	}

	// Success.
	return result, nil
}

// Validate ensures that the configuration is valid.
func (c *Server) Validate() error {
	if c.BlockSize == 0 {
		return errors.New("block size must be non-zero")
	} else if c.BlockSize > MaximumBlockSize {
		return errors.Errorf("block size exceeds maximum (%s)", ByteSize(MaximumBlockSize))
	}
	if c.MaximumConnections < 0 {
		return errors.New("maximum connections must be non-negative")
	}
	if c.ShutdownGracePeriod < 0 {
		return errors.New("shutdown grace period must be non-negative")
	}
	if c.LogLevel > logging.LevelTrace {
		return errors.New("invalid log level")
	}
	for _, pattern := range c.Listing.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return errors.Errorf("invalid listing exclusion pattern: %s", pattern)
		}
	}
	return nil
}
