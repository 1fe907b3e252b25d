package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/captep/studio/engine/core"
	"github.com/captep/studio/engine/integration"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
)

var (
	providerColumns = []string{
		"t.id AS custom_tool_id", "t.name", "t.service", "i.client_id", "i.client_secret",
		"i.authorize_url", "i.token_url", "i.redirect_url", "i.response_type", "i.scopes",
		"i.pkce", "i.grant_type", "i.offline_access", "i.token_ttl_seconds",
	}
	connectionColumns = []string{
		"id", "custom_tool_id", "access_token", "refresh_token", "instance_url", "expire_in",
		"name", "created_by", "created_at", "updated_at",
	}
	candidateColumns = []string{
		"c.id", "c.custom_tool_id", "c.refresh_token", "c.instance_url", "c.expire_in",
		"i.client_id", "i.client_secret", "i.token_url", "i.token_ttl_seconds",
	}
)

// IntegrationRepo implements integration.Repository.
type IntegrationRepo struct {
	db DB
}

func NewIntegrationRepo(db DB) *IntegrationRepo {
	return &IntegrationRepo{db: db}
}

// GetProvider prefers an exact custom tool id over a name match.
func (r *IntegrationRepo) GetProvider(ctx context.Context, platform string) (*integration.Provider, error) {
	query, args, err := psql.Select(providerColumns...).
		From("integrations i").
		Join("custom_tools t ON t.id = i.custom_tool_id").
		Where(squirrel.Or{
			squirrel.Eq{"t.id": platform},
			squirrel.Expr("LOWER(t.name) = LOWER(?)", platform),
		}).
		OrderByClause("t.id = ? DESC", platform).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building provider query: %w", err)
	}
	var p integration.Provider
	if err := pgxscan.Get(ctx, r.db, &p, query, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, integration.ErrProviderNotFound
		}
		return nil, fmt.Errorf("scanning provider: %w", err)
	}
	return &p, nil
}

func (r *IntegrationRepo) CreateConnection(ctx context.Context, conn *integration.Connection) error {
	query, args, err := psql.Insert("oauth_connections").
		Columns(connectionColumns...).
		Values(
			conn.ID, conn.CustomToolID, conn.AccessToken, conn.RefreshToken, conn.InstanceURL,
			conn.ExpiresAt, conn.Name, conn.CreatedBy, conn.CreatedAt, conn.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("building connection insert: %w", err)
	}
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting connection: %w", err)
	}
	return nil
}

func (r *IntegrationRepo) GetConnection(ctx context.Context, id core.ID) (*integration.Connection, error) {
	query, args, err := psql.Select(connectionColumns...).
		From("oauth_connections").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building connection query: %w", err)
	}
	return r.getConnection(ctx, query, args)
}

func (r *IntegrationRepo) getConnection(ctx context.Context, query string, args []any) (*integration.Connection, error) {
	var conn integration.Connection
	if err := pgxscan.Get(ctx, r.db, &conn, query, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, integration.ErrConnectionNotFound
		}
		return nil, fmt.Errorf("scanning connection: %w", err)
	}
	return &conn, nil
}

func (r *IntegrationRepo) FinalizeConnection(
	ctx context.Context,
	id core.ID,
	name, createdBy string,
) (*integration.Connection, error) {
	query, args, err := psql.Update("oauth_connections").
		Set("name", nullIfEmpty(name)).
		Set("created_by", nullIfEmpty(createdBy)).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING " + joinColumns(connectionColumns)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building connection update: %w", err)
	}
	return r.getConnection(ctx, query, args)
}

// ListRefreshCandidates joins tools to their connection and provider. The
// same connection bound to several tools is returned once.
func (r *IntegrationRepo) ListRefreshCandidates(
	ctx context.Context,
	workflowID core.ID,
) ([]*integration.RefreshCandidate, error) {
	query, args, err := psql.Select(candidateColumns...).
		Distinct().
		From("registered_tools rt").
		Join("oauth_connections c ON c.id = rt.oauth_id").
		Join("integrations i ON i.custom_tool_id = c.custom_tool_id").
		Where(squirrel.Eq{"rt.workflow_id": workflowID}).
		Where(squirrel.NotEq{"c.refresh_token": nil}).
		OrderBy("c.id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building candidate query: %w", err)
	}
	var out []*integration.RefreshCandidate
	if err := pgxscan.Select(ctx, r.db, &out, query, args...); err != nil {
		return nil, fmt.Errorf("scanning refresh candidates: %w", err)
	}
	return out, nil
}

// UpdateTokens keeps the stored instance url and refresh token when the
// grant does not carry new ones.
func (r *IntegrationRepo) UpdateTokens(ctx context.Context, id core.ID, grant *integration.Grant) error {
	query, args, err := psql.Update("oauth_connections").
		Set("access_token", grant.AccessToken).
		Set("instance_url", squirrel.Expr("COALESCE(NULLIF(?, ''), instance_url)", grant.InstanceURL)).
		Set("refresh_token", squirrel.Expr("COALESCE(NULLIF(?, ''), refresh_token)", grant.RefreshToken)).
		Set("expire_in", grant.ExpiresAt).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building token update: %w", err)
	}
	return r.execOne(ctx, query, args)
}

func (r *IntegrationRepo) MarkReauthRequired(ctx context.Context, id core.ID) error {
	query, args, err := psql.Update("oauth_connections").
		Set("expire_in", squirrel.Expr("NOW() - INTERVAL '1 day'")).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building reauth update: %w", err)
	}
	return r.execOne(ctx, query, args)
}

func (r *IntegrationRepo) execOne(ctx context.Context, query string, args []any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating connection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return integration.ErrConnectionNotFound
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func joinColumns(cols []string) string {
	return strings.Join(cols, ", ")
}
