package assistant

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
)

var (
	ErrNoActiveConfiguration       = errors.New("no active model configuration")
	ErrMultipleActiveConfiguration = errors.New("another model configuration is already active")
	ErrInvalidConfiguration        = errors.New("invalid model configuration")
	ErrImmutableMessage            = errors.New("only bot messages can be updated")
	ErrEmptyContent                = errors.New("content cannot be empty")
	ErrCipherUnavailable           = fmt.Errorf("%s not set, cannot store api keys", apiKeyCipherEnv)
)

// Service persists chat messages and model configurations.
type Service struct {
	db     *sql.DB
	sealer *apiKeySealer
}

// NewService builds a new store. API-key encryption is enabled when the cipher key env var is set.
func NewService(db *sql.DB) (*Service, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	s := &Service{db: db}
	if strings.TrimSpace(os.Getenv(apiKeyCipherEnv)) != "" {
		sealer, err := newAPIKeySealerFromEnv()
		if err != nil {
			return nil, fmt.Errorf("init api key cipher: %w", err)
		}
		s.sealer = sealer
	}
	return s, nil
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint &&
			(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}
