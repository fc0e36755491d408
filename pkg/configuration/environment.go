package configuration

import (
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/joho/godotenv"
)

const (
	// EndpointEnvironmentVariable is the environment variable from which the
	// client reads the server endpoint in host:port form.
	EndpointEnvironmentVariable = "FSS_SERVER"
	// DefaultEnvironmentFile is the "dotenv" file consulted by the client.
	DefaultEnvironmentFile = ".env"
)

// LoadEnvironment loads a "dotenv" environment variable file from disk and
// updates it to include variables from the current process' environment (with
// the current process' environment taking precedence). If the target file
// doesn't exist, then it is treated as empty and the resulting environment will
// be the current process' environment.
func LoadEnvironment(path string) (map[string]string, error) {
	// Load the environment file (if it exists).
	environment, err := godotenv.Read(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "unable to load environment file (%s)", path)
	}

	// Grab the environment from the OS.
	osEnvironment := os.Environ()

	// If the environment wasn't allocated, then do so now.
	if environment == nil {
		environment = make(map[string]string, len(osEnvironment))
	}

	// Add environment variables from the OS.
	for _, specification := range osEnvironment {
		keyValue := strings.SplitN(specification, "=", 2)
		if len(keyValue) != 2 {
			return nil, errors.Errorf("invalid OS environment variable specification: %s", specification)
		}
		environment[keyValue[0]] = keyValue[1]
	}

	// Success.
	return environment, nil
}

// ParseEndpoint validates a host:port endpoint specification.
func ParseEndpoint(value string) (string, error) {
	host, port, err := net.SplitHostPort(value)
	if err != nil {
		return "", errors.Wrap(err, "invalid endpoint (expected hostname:port)")
	} else if host == "" {
		return "", errors.New("no hostname specified in endpoint")
	}
	if number, err := strconv.ParseUint(port, 10, 16); err != nil || number == 0 {
		return "", errors.Errorf("invalid port in endpoint: %s", port)
	}
	return net.JoinHostPort(host, port), nil
}

// LoadClientEnvironment computes the client's server endpoint from the environment,
// consulting the specified dotenv file as a fallback source.
func LoadClientEnvironment(dotenvPath string) (string, error) {
	environment, err := LoadEnvironment(dotenvPath)
	if err != nil {
		return "", err
	}
	value := environment[EndpointEnvironmentVariable]
	if value == "" {
		return "", errors.Errorf("environment variable %s must be set (hostname:port)", EndpointEnvironmentVariable)
	}
	return ParseEndpoint(value)
}
