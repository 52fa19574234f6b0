package postgres

import "fmt"

// Every builder takes an identifier already quoted by pgx.Identifier and
// checked against the table allow-list; values are always bind parameters.

const createStateTableSQL = `
	CREATE TABLE IF NOT EXISTS indexer_state (
		name TEXT PRIMARY KEY,
		last_processed_block BIGINT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

func createBalanceTableSQL(ident string) string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			address VARCHAR(42) PRIMARY KEY,
			total_frozen BIGINT NOT NULL DEFAULT 0 CHECK (total_frozen >= 0),
			total_unfrozen BIGINT NOT NULL DEFAULT 0 CHECK (total_unfrozen >= 0),
			net_amount BIGINT NOT NULL DEFAULT 0,
			block_number BIGINT NOT NULL DEFAULT 0,
			is_total BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`, ident)
}

func clearSQL(ident string) string {
	return fmt.Sprintf(`TRUNCATE TABLE %s`, ident)
}

// $1 address, $2 frozen increment, $3 unfrozen increment, $4 block.
func upsertDeltaSQL(ident string) string {
	return fmt.Sprintf(`
		INSERT INTO %[1]s AS t (address, total_frozen, total_unfrozen, block_number, updated_at)
		VALUES ($1::varchar, $2::bigint, $3::bigint, $4::bigint, now())
		ON CONFLICT (address) DO UPDATE SET
			total_frozen = t.total_frozen + EXCLUDED.total_frozen,
			total_unfrozen = t.total_unfrozen + EXCLUDED.total_unfrozen,
			block_number = GREATEST(t.block_number, EXCLUDED.block_number),
			updated_at = now()
	`, ident)
}

// $1 TOTAL sentinel, $2 latest block.
func upsertTotalSQL(ident string) string {
	return fmt.Sprintf(`
		INSERT INTO %[1]s AS t (address, total_frozen, total_unfrozen, net_amount, block_number, is_total, updated_at)
		SELECT $1::varchar,
			COALESCE(SUM(total_frozen), 0),
			COALESCE(SUM(total_unfrozen), 0),
			COALESCE(SUM(total_frozen), 0) - COALESCE(SUM(total_unfrozen), 0),
			$2::bigint,
			TRUE,
			now()
		FROM %[1]s
		WHERE address <> $1
		ON CONFLICT (address) DO UPDATE SET
			total_frozen = EXCLUDED.total_frozen,
			total_unfrozen = EXCLUDED.total_unfrozen,
			net_amount = EXCLUDED.net_amount,
			block_number = EXCLUDED.block_number,
			is_total = TRUE,
			updated_at = now()
	`, ident)
}

// $1 TOTAL sentinel.
func recomputeNetSQL(ident string) string {
	return fmt.Sprintf(`
		UPDATE %s
		SET net_amount = total_frozen - total_unfrozen, updated_at = now()
		WHERE address <> $1
	`, ident)
}
