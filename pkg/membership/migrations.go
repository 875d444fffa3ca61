package membership

import "github.com/platinummonkey/carehub/pkg/storage/postgres"

// Migrations returns the schema owned by the membership ledger. The users
// table belongs to the identity provider; it is created here only when
// absent so the ledger can reference it.
func Migrations() postgres.Component {
	return postgres.Component{
		Name: "membership",
		Migrations: []postgres.Migration{
			{
				Version:     1,
				Description: "Create users table",
				SQL: `
					CREATE TABLE IF NOT EXISTS users (
						id BIGSERIAL PRIMARY KEY,
						email VARCHAR(255) NOT NULL UNIQUE,
						created_at TIMESTAMP NOT NULL DEFAULT NOW()
					);
				`,
			},
			{
				Version:     2,
				Description: "Create role_groups table",
				SQL: `
					CREATE TABLE IF NOT EXISTS role_groups (
						id BIGSERIAL PRIMARY KEY,
						name VARCHAR(255) NOT NULL UNIQUE,
						description TEXT NOT NULL DEFAULT '',
						created_at TIMESTAMP NOT NULL DEFAULT NOW()
					);
				`,
			},
			{
				Version:     3,
				Description: "Create memberships table",
				SQL: `
					CREATE TABLE IF NOT EXISTS memberships (
						id BIGSERIAL PRIMARY KEY,
						user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
						role_group_id BIGINT NOT NULL REFERENCES role_groups(id) ON DELETE RESTRICT,
						start_date DATE,
						end_date DATE,
						granted_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
						created_at TIMESTAMP NOT NULL DEFAULT NOW(),
						CHECK (start_date IS NULL OR end_date IS NULL OR start_date <= end_date)
					);

					CREATE INDEX IF NOT EXISTS idx_memberships_user_id ON memberships(user_id);
					CREATE INDEX IF NOT EXISTS idx_memberships_role_group_id ON memberships(role_group_id);
				`,
			},
		},
	}
}
