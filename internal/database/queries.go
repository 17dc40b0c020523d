package database

const (
	// Execution queries
	queryInsertExecution = `
		INSERT INTO executions (
			id, attempt_id, engine, source_account, target, asset, network, amount, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id, attempt_id, engine, source_account, target, asset, network, amount,
		          status, tx_hash, reference, error, created_at, updated_at`

	queryGetExecution = `
		SELECT id, attempt_id, engine, source_account, target, asset, network, amount,
		       status, tx_hash, reference, error, created_at, updated_at
		FROM executions
		WHERE attempt_id = ?`

	queryCompleteExecution = `
		UPDATE executions
		SET status = 'completed', tx_hash = ?, reference = ?, updated_at = ?
		WHERE attempt_id = ? AND status = 'pending'`

	queryFailExecution = `
		UPDATE executions
		SET status = 'failed', error = ?, updated_at = ?
		WHERE attempt_id = ? AND status = 'pending'`

	queryMarkAmbiguous = `
		UPDATE executions
		SET status = 'ambiguous', reference = ?, error = ?, updated_at = ?
		WHERE attempt_id = ? AND status = 'pending'`

	queryResolveExecution = `
		UPDATE executions
		SET status = ?, reference = CASE WHEN ? != '' THEN ? ELSE reference END, updated_at = ?
		WHERE attempt_id = ? AND status = 'ambiguous'`

	queryListAmbiguous = `
		SELECT id, attempt_id, engine, source_account, target, asset, network, amount,
		       status, tx_hash, reference, error, created_at, updated_at
		FROM executions
		WHERE status = 'ambiguous' AND created_at >= ?
		ORDER BY created_at ASC`

	// Receive address queries
	queryInsertReceiveAddress = `
		INSERT INTO receive_addresses (id, account_id, asset, network, address, wallet_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id, asset, network) DO NOTHING`

	queryGetReceiveAddress = `
		SELECT id, account_id, asset, network, address, wallet_id, created_at
		FROM receive_addresses
		WHERE account_id = ? AND asset = ? AND network = ?`

	queryFindAccountByAddress = `
		SELECT id, account_id, asset, network, address, wallet_id, created_at
		FROM receive_addresses
		WHERE LOWER(address) = LOWER(?)`
)
