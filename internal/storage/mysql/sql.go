package mysql

const insertActionSQL = `
INSERT INTO review_actions
  (session_id, bakery_id, review_id, action, outcome, http_status)
VALUES
  (?, ?, ?, ?, ?, ?)
`

// Newest first; served by idx_review_actions_bakery.
const listActionsSQL = `
SELECT id, session_id, bakery_id, review_id, action, outcome, http_status, created_at
FROM review_actions
WHERE bakery_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?
`

// One row per (bakery, reason); repeated misses only refresh status and time.
const insertMissSQL = `
INSERT INTO warm_misses (bakery_id, reason, http_status)
VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE
  http_status = VALUES(http_status),
  seen_at     = CURRENT_TIMESTAMP
`
