package db

// Schema is the DDL for the orai metadata database.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
    id          TEXT PRIMARY KEY,
    email       TEXT NOT NULL,
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
    id                   TEXT PRIMARY KEY,
    owner_id             TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    provider_message_id  TEXT NOT NULL,
    provider_thread_id   TEXT NOT NULL DEFAULT '',
    subject              TEXT NOT NULL DEFAULT '',
    snippet              TEXT NOT NULL DEFAULT '',
    sender_name          TEXT NOT NULL DEFAULT '',
    sender_address       TEXT NOT NULL DEFAULT '',
    body_ref             TEXT NOT NULL DEFAULT '',
    is_read              INTEGER NOT NULL DEFAULT 0,
    is_archived          INTEGER NOT NULL DEFAULT 0,
    is_spam              INTEGER NOT NULL DEFAULT 0,
    labels               TEXT NOT NULL DEFAULT '',
    received_at          INTEGER NOT NULL,
    created_at           TEXT NOT NULL,
    updated_at           TEXT NOT NULL,
    UNIQUE(owner_id, provider_message_id)
);

CREATE INDEX IF NOT EXISTS idx_messages_owner_received ON messages(owner_id, received_at DESC);
`
