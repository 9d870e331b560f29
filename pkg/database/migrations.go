package database

import (
	"bigbrotr.dev/pkg/utils/chk"
	"bigbrotr.dev/pkg/utils/context"
)

// schema is idempotent: every statement is IF NOT EXISTS or CREATE OR
// REPLACE, so migrate can run on every startup.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS relays (
		url         TEXT PRIMARY KEY,
		network     TEXT NOT NULL,
		inserted_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		id         TEXT PRIMARY KEY,
		pubkey     TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		kind       INT NOT NULL,
		tags       JSONB NOT NULL,
		content    TEXT NOT NULL,
		sig        TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS events_relays (
		event_id  TEXT NOT NULL REFERENCES events (id) ON DELETE CASCADE,
		relay_url TEXT NOT NULL REFERENCES relays (url),
		seen_at   BIGINT NOT NULL,
		PRIMARY KEY (event_id, relay_url)
	)`,
	`CREATE TABLE IF NOT EXISTS nip11 (
		id               BIGSERIAL PRIMARY KEY,
		hash             BYTEA UNIQUE NOT NULL,
		name             TEXT,
		description      TEXT,
		banner           TEXT,
		icon             TEXT,
		pubkey           TEXT,
		contact          TEXT,
		supported_nips   JSONB,
		software         TEXT,
		version          TEXT,
		privacy_policy   TEXT,
		terms_of_service TEXT,
		limitation       JSONB,
		extra_fields     JSONB
	)`,
	`CREATE TABLE IF NOT EXISTS nip66 (
		id        BIGSERIAL PRIMARY KEY,
		hash      BYTEA UNIQUE NOT NULL,
		openable  BOOLEAN NOT NULL,
		readable  BOOLEAN NOT NULL,
		writable  BOOLEAN NOT NULL,
		rtt_open  BIGINT,
		rtt_read  BIGINT,
		rtt_write BIGINT
	)`,
	`CREATE TABLE IF NOT EXISTS relay_metadata (
		relay_url    TEXT NOT NULL REFERENCES relays (url),
		generated_at BIGINT NOT NULL,
		nip11_id     BIGINT REFERENCES nip11 (id),
		nip66_id     BIGINT REFERENCES nip66 (id),
		PRIMARY KEY (relay_url, generated_at)
	)`,
	`CREATE INDEX IF NOT EXISTS relay_metadata_series
		ON relay_metadata (relay_url, generated_at DESC)`,
	`CREATE INDEX IF NOT EXISTS events_relays_by_relay
		ON events_relays (relay_url, event_id)`,
	`CREATE INDEX IF NOT EXISTS events_created_at ON events (created_at)`,

	`CREATE OR REPLACE FUNCTION insert_relay(
		p_url TEXT, p_network TEXT, p_inserted_at BIGINT
	) RETURNS VOID AS $$
		INSERT INTO relays (url, network, inserted_at)
		VALUES (p_url, p_network, p_inserted_at)
		ON CONFLICT (url) DO NOTHING
	$$ LANGUAGE sql`,

	`CREATE OR REPLACE FUNCTION insert_event(
		p_id TEXT, p_pubkey TEXT, p_created_at BIGINT, p_kind INT,
		p_tags JSONB, p_content TEXT, p_sig TEXT,
		p_relay_url TEXT, p_relay_network TEXT, p_seen_at BIGINT
	) RETURNS VOID AS $$
	BEGIN
		INSERT INTO events (id, pubkey, created_at, kind, tags, content, sig)
		VALUES (p_id, p_pubkey, p_created_at, p_kind, p_tags, p_content, p_sig)
		ON CONFLICT (id) DO NOTHING;
		INSERT INTO relays (url, network, inserted_at)
		VALUES (p_relay_url, p_relay_network, p_seen_at)
		ON CONFLICT (url) DO NOTHING;
		INSERT INTO events_relays (event_id, relay_url, seen_at)
		VALUES (p_id, p_relay_url, p_seen_at)
		ON CONFLICT (event_id, relay_url) DO NOTHING;
	END
	$$ LANGUAGE plpgsql`,

	`CREATE OR REPLACE FUNCTION insert_relay_metadata(
		p_relay_url TEXT, p_relay_network TEXT, p_generated_at BIGINT,
		p_nip11_hash BYTEA,
		p_name TEXT, p_description TEXT, p_banner TEXT, p_icon TEXT,
		p_pubkey TEXT, p_contact TEXT, p_supported_nips JSONB,
		p_software TEXT, p_version TEXT, p_privacy_policy TEXT,
		p_terms_of_service TEXT, p_limitation JSONB, p_extra_fields JSONB,
		p_nip66_hash BYTEA,
		p_openable BOOLEAN, p_readable BOOLEAN, p_writable BOOLEAN,
		p_rtt_open BIGINT, p_rtt_read BIGINT, p_rtt_write BIGINT
	) RETURNS VOID AS $$
	DECLARE
		v_nip11_id BIGINT;
		v_nip66_id BIGINT;
	BEGIN
		INSERT INTO relays (url, network, inserted_at)
		VALUES (p_relay_url, p_relay_network, p_generated_at)
		ON CONFLICT (url) DO NOTHING;
		IF p_nip11_hash IS NOT NULL THEN
			INSERT INTO nip11 (
				hash, name, description, banner, icon, pubkey, contact,
				supported_nips, software, version, privacy_policy,
				terms_of_service, limitation, extra_fields
			) VALUES (
				p_nip11_hash, p_name, p_description, p_banner, p_icon,
				p_pubkey, p_contact, p_supported_nips, p_software, p_version,
				p_privacy_policy, p_terms_of_service, p_limitation,
				p_extra_fields
			) ON CONFLICT (hash) DO NOTHING;
			SELECT id INTO v_nip11_id FROM nip11 WHERE hash = p_nip11_hash;
		END IF;
		IF p_nip66_hash IS NOT NULL THEN
			INSERT INTO nip66 (
				hash, openable, readable, writable, rtt_open, rtt_read,
				rtt_write
			) VALUES (
				p_nip66_hash, p_openable, p_readable, p_writable, p_rtt_open,
				p_rtt_read, p_rtt_write
			) ON CONFLICT (hash) DO NOTHING;
			SELECT id INTO v_nip66_id FROM nip66 WHERE hash = p_nip66_hash;
		END IF;
		INSERT INTO relay_metadata (relay_url, generated_at, nip11_id, nip66_id)
		VALUES (p_relay_url, p_generated_at, v_nip11_id, v_nip66_id)
		ON CONFLICT (relay_url, generated_at) DO NOTHING;
	END
	$$ LANGUAGE plpgsql`,

	`CREATE OR REPLACE FUNCTION delete_orphan_events() RETURNS BIGINT AS $$
	DECLARE
		v_count BIGINT;
	BEGIN
		DELETE FROM events e
		WHERE NOT EXISTS (
			SELECT 1 FROM events_relays er WHERE er.event_id = e.id
		);
		GET DIAGNOSTICS v_count = ROW_COUNT;
		RETURN v_count;
	END
	$$ LANGUAGE plpgsql`,
}

func (d *D) migrate(c context.T) (err error) {
	for _, stmt := range schema {
		if err = d.retry(
			c, "migrate", func(cc context.T) (err error) {
				_, err = d.db.ExecContext(cc, stmt)
				return
			},
		); chk.E(err) {
			return
		}
	}
	return
}
