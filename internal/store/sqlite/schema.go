package sqlite

// Schema creates the tables the chat core reads and writes. book_requests belongs to the
// marketplace; it is created here only so a standalone deployment and tests can run.
const Schema = `
CREATE TABLE IF NOT EXISTS book_requests (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	book_id    TEXT NOT NULL,
	buyer_id   TEXT NOT NULL,
	seller_id  TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'PENDING',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (book_id, buyer_id, seller_id)
);

CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	book_id    TEXT NOT NULL,
	buyer_id   TEXT NOT NULL,
	seller_id  TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	UNIQUE (book_id, buyer_id, seller_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL,
	sender_id       TEXT NOT NULL,
	body            TEXT NOT NULL,
	sent_at         DATETIME NOT NULL,
	delivered_at    DATETIME,
	read_at         DATETIME,
	FOREIGN KEY (conversation_id) REFERENCES conversations(id)
);

CREATE INDEX IF NOT EXISTS idx_conversations_buyer ON conversations(buyer_id);
CREATE INDEX IF NOT EXISTS idx_conversations_seller ON conversations(seller_id);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, id);
CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(conversation_id, sender_id) WHERE read_at IS NULL;
`
