// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bcem/workflow/internal/models"
)

// CategoryStore provides read access to tenant categories. The categorise
// action validates category existence here before assigning.
type CategoryStore struct {
	pool *pgxpool.Pool
}

// NewCategoryStore creates a category store backed by the given Postgres pool.
func NewCategoryStore(ctx context.Context, pool *pgxpool.Pool) (*CategoryStore, error) {
	s := &CategoryStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure category schema: %w", err)
	}
	return s, nil
}

func (s *CategoryStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS categories (
			id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			tenant_alias TEXT NOT NULL,
			name         TEXT NOT NULL,
			color        TEXT DEFAULT '',
			UNIQUE(tenant_alias, name)
		);
	`)
	return err
}

// Get retrieves a single category by id.
func (s *CategoryStore) Get(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_alias, name, color
		FROM categories
		WHERE id = $1
	`, id)

	var c models.Category
	err := row.Scan(&c.ID, &c.TenantAlias, &c.Name, &c.Color)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListByTenant returns all categories for a tenant, used as the label set
// for oracle classification requests.
func (s *CategoryStore) ListByTenant(ctx context.Context, tenantAlias string) ([]models.Category, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_alias, name, color
		FROM categories
		WHERE tenant_alias = $1
		ORDER BY name
	`, tenantAlias)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.TenantAlias, &c.Name, &c.Color); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}
