package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/DRSN-tech/image-metadata/pkg/e"
)

// DBCredentials — реквизиты подключения к хранилищу метаданных из секрета.
type DBCredentials struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

type credentialsPayload struct {
	Host     string          `json:"host"`
	Port     json.RawMessage `json:"port"`
	Username string          `json:"username"`
	Password string          `json:"password"`
	DBName   string          `json:"dbname"`
}

// ParseDBCredentials разбирает секрет формата {host, port, username, password, dbname}.
// Порт допускается как числом, так и строкой.
func ParseDBCredentials(raw string) (*DBCredentials, error) {
	var payload credentialsPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", e.ErrInvalidSecret, err)
	}

	port, err := parsePort(payload.Port)
	if err != nil {
		return nil, err
	}

	creds := &DBCredentials{
		Host:     strings.TrimSpace(payload.Host),
		Port:     port,
		User:     payload.Username,
		Password: payload.Password,
		DBName:   payload.DBName,
	}

	switch {
	case creds.Host == "":
		return nil, fmt.Errorf("%w: host is required", e.ErrInvalidSecret)
	case creds.User == "":
		return nil, fmt.Errorf("%w: username is required", e.ErrInvalidSecret)
	case creds.DBName == "":
		return nil, fmt.Errorf("%w: dbname is required", e.ErrInvalidSecret)
	}

	return creds, nil
}

// String не раскрывает пароль в логах.
func (c DBCredentials) String() string {
	return fmt.Sprintf("%s@%s:%d/%s", c.User, c.Host, c.Port, c.DBName)
}

func parsePort(raw json.RawMessage) (int, error) {
	const defaultPort = 5432

	if len(raw) == 0 || string(raw) == "null" {
		return defaultPort, nil
	}

	var (
		port int
		str  string
	)
	if err := json.Unmarshal(raw, &port); err != nil {
		if err := json.Unmarshal(raw, &str); err != nil {
			return 0, fmt.Errorf("%w: port must be a number", e.ErrInvalidSecret)
		}
		port, err = strconv.Atoi(strings.TrimSpace(str))
		if err != nil {
			return 0, fmt.Errorf("%w: port %q is not a number", e.ErrInvalidSecret, str)
		}
	}

	if port <= 0 || port > 65535 {
		return 0, fmt.Errorf("%w: port %d out of range", e.ErrInvalidSecret, port)
	}

	return port, nil
}
