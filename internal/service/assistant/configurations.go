package assistant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"chatstream/internal/models"
)

const configurationColumns = `id, provider, model, streaming_enabled, endpoint_override, api_key, web_search, is_active, created_at, updated_at`

// ModelConfigurationInput is the writable part of a configuration.
// A nil APIKey on update keeps the stored key; an empty one clears it.
type ModelConfigurationInput struct {
	Provider         string
	Model            string
	StreamingEnabled bool
	EndpointOverride string
	APIKey           *string
	WebSearch        bool
	IsActive         bool
}

func (in *ModelConfigurationInput) normalize() error {
	in.Provider = strings.ToLower(strings.TrimSpace(in.Provider))
	in.Model = strings.TrimSpace(in.Model)
	in.EndpointOverride = strings.TrimSpace(in.EndpointOverride)
	if in.Provider == "" || in.Model == "" {
		return fmt.Errorf("%w: provider and model are required", ErrInvalidConfiguration)
	}
	return nil
}

// CreateModelConfiguration inserts a configuration, rejecting a second active row.
func (s *Service) CreateModelConfiguration(ctx context.Context, in ModelConfigurationInput) (*models.ModelConfiguration, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	apiKey := ""
	if in.APIKey != nil {
		apiKey = strings.TrimSpace(*in.APIKey)
	}
	if apiKey != "" && s.sealer == nil {
		return nil, ErrCipherUnavailable
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if in.IsActive {
		if err := ensureNoOtherActive(ctx, tx, 0); err != nil {
			return nil, err
		}
	}
	ts := now()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO model_configurations (provider, model, streaming_enabled, endpoint_override, api_key, web_search, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.Provider, in.Model, in.StreamingEnabled, in.EndpointOverride, "", in.WebSearch, in.IsActive, ts, ts,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrMultipleActiveConfiguration
		}
		return nil, fmt.Errorf("insert model configuration: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("model configuration id: %w", err)
	}
	// The key is sealed against the row id, so it can only be written once the row exists.
	if apiKey != "" {
		storedKey, err := s.sealAPIKey(id, apiKey)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE model_configurations SET api_key = ? WHERE id = ?`, storedKey, id); err != nil {
			return nil, fmt.Errorf("store api key: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrMultipleActiveConfiguration
		}
		return nil, fmt.Errorf("commit model configuration: %w", err)
	}
	return &models.ModelConfiguration{
		ID:               id,
		Provider:         in.Provider,
		Model:            in.Model,
		StreamingEnabled: in.StreamingEnabled,
		EndpointOverride: in.EndpointOverride,
		HasAPIKey:        apiKey != "",
		WebSearch:        in.WebSearch,
		IsActive:         in.IsActive,
		CreatedAt:        ts,
		UpdatedAt:        ts,
	}, nil
}

// UpdateModelConfiguration replaces a configuration's fields, rejecting a second active row.
func (s *Service) UpdateModelConfiguration(ctx context.Context, id int64, in ModelConfigurationInput) (*models.ModelConfiguration, error) {
	if id <= 0 {
		return nil, errors.New("invalid model configuration id")
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	current, storedKey, err := getConfiguration(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if in.APIKey != nil {
		storedKey, err = s.sealAPIKey(id, strings.TrimSpace(*in.APIKey))
		if err != nil {
			return nil, err
		}
	}
	if in.IsActive {
		if err := ensureNoOtherActive(ctx, tx, id); err != nil {
			return nil, err
		}
	}
	ts := now()
	if _, err := tx.ExecContext(ctx,
		`UPDATE model_configurations
		 SET provider = ?, model = ?, streaming_enabled = ?, endpoint_override = ?, api_key = ?, web_search = ?, is_active = ?, updated_at = ?
		 WHERE id = ?`,
		in.Provider, in.Model, in.StreamingEnabled, in.EndpointOverride, storedKey, in.WebSearch, in.IsActive, ts, id,
	); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrMultipleActiveConfiguration
		}
		return nil, fmt.Errorf("update model configuration: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit model configuration: %w", err)
	}
	return &models.ModelConfiguration{
		ID:               id,
		Provider:         in.Provider,
		Model:            in.Model,
		StreamingEnabled: in.StreamingEnabled,
		EndpointOverride: in.EndpointOverride,
		HasAPIKey:        storedKey != "",
		WebSearch:        in.WebSearch,
		IsActive:         in.IsActive,
		CreatedAt:        current.CreatedAt,
		UpdatedAt:        ts,
	}, nil
}

// DeleteModelConfiguration removes a configuration; sql.ErrNoRows when absent.
func (s *Service) DeleteModelConfiguration(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM model_configurations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete model configuration: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("model configuration rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetModelConfiguration returns one configuration without its secret.
func (s *Service) GetModelConfiguration(ctx context.Context, id int64) (*models.ModelConfiguration, error) {
	cfg, _, err := getConfiguration(ctx, s.db, id)
	return cfg, err
}

// ListModelConfigurations returns all configurations without their secrets.
func (s *Service) ListModelConfigurations(ctx context.Context) ([]*models.ModelConfiguration, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+configurationColumns+` FROM model_configurations ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list model configurations: %w", err)
	}
	defer rows.Close()

	configs := make([]*models.ModelConfiguration, 0)
	for rows.Next() {
		cfg, _, err := scanConfiguration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan model configuration: %w", err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// ActiveModelConfiguration returns the single active configuration with its API key decrypted,
// or ErrNoActiveConfiguration.
func (s *Service) ActiveModelConfiguration(ctx context.Context) (models.ModelConfiguration, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+configurationColumns+` FROM model_configurations WHERE is_active = 1 ORDER BY id ASC LIMIT 2`)
	if err != nil {
		return models.ModelConfiguration{}, fmt.Errorf("query active model configuration: %w", err)
	}
	defer rows.Close()

	var found []*models.ModelConfiguration
	var storedKey string
	for rows.Next() {
		cfg, key, err := scanConfiguration(rows)
		if err != nil {
			return models.ModelConfiguration{}, fmt.Errorf("scan model configuration: %w", err)
		}
		found = append(found, cfg)
		storedKey = key
	}
	if err := rows.Err(); err != nil {
		return models.ModelConfiguration{}, fmt.Errorf("query active model configuration: %w", err)
	}
	switch len(found) {
	case 0:
		return models.ModelConfiguration{}, ErrNoActiveConfiguration
	case 1:
	default:
		return models.ModelConfiguration{}, ErrMultipleActiveConfiguration
	}

	active := *found[0]
	if storedKey != "" {
		plain, err := s.openAPIKey(active.ID, storedKey)
		if err != nil {
			return models.ModelConfiguration{}, fmt.Errorf("decrypt api key for configuration %d: %w", active.ID, err)
		}
		active.APIKey = plain
	}
	return active, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func ensureNoOtherActive(ctx context.Context, q queryer, excludeID int64) error {
	var id int64
	err := q.QueryRowContext(ctx,
		`SELECT id FROM model_configurations WHERE is_active = 1 AND id <> ? LIMIT 1`, excludeID,
	).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return fmt.Errorf("check active model configuration: %w", err)
	default:
		return ErrMultipleActiveConfiguration
	}
}

func getConfiguration(ctx context.Context, q queryer, id int64) (*models.ModelConfiguration, string, error) {
	row := q.QueryRowContext(ctx, `SELECT `+configurationColumns+` FROM model_configurations WHERE id = ?`, id)
	cfg, key, err := scanConfiguration(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", err
		}
		return nil, "", fmt.Errorf("get model configuration: %w", err)
	}
	return cfg, key, nil
}

func scanConfiguration(row rowScanner) (*models.ModelConfiguration, string, error) {
	var (
		cfg       models.ModelConfiguration
		storedKey string
	)
	if err := row.Scan(
		&cfg.ID, &cfg.Provider, &cfg.Model, &cfg.StreamingEnabled, &cfg.EndpointOverride,
		&storedKey, &cfg.WebSearch, &cfg.IsActive, &cfg.CreatedAt, &cfg.UpdatedAt,
	); err != nil {
		return nil, "", err
	}
	cfg.HasAPIKey = storedKey != ""
	cfg.CreatedAt = cfg.CreatedAt.UTC()
	cfg.UpdatedAt = cfg.UpdatedAt.UTC()
	return &cfg, storedKey, nil
}

func (s *Service) sealAPIKey(configID int64, plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	if s.sealer == nil {
		return "", ErrCipherUnavailable
	}
	return s.sealer.Seal(configID, plain)
}

func (s *Service) openAPIKey(configID int64, stored string) (string, error) {
	if s.sealer == nil {
		return "", ErrCipherUnavailable
	}
	return s.sealer.Open(configID, stored)
}
