// Package sqlite persists items and derived artifacts in a single SQLite
// database file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dubclip/dubclip/internal/ports"
	"github.com/dubclip/dubclip/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS items (
	id              TEXT PRIMARY KEY,
	title           TEXT NOT NULL,
	source_url      TEXT NOT NULL,
	source_duration REAL NOT NULL,
	theme           TEXT NOT NULL DEFAULT '',
	audio_path      TEXT NOT NULL DEFAULT '',
	caption_path    TEXT NOT NULL DEFAULT '',
	stages          TEXT NOT NULL DEFAULT '{}',
	failed_stage    TEXT NOT NULL DEFAULT '',
	failure_reason  TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_items_source_url ON items(source_url);

CREATE TABLE IF NOT EXISTS transcripts (
	item_id  TEXT PRIMARY KEY REFERENCES items(id) ON DELETE CASCADE,
	language TEXT NOT NULL,
	segments TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS translations (
	item_id           TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
	language          TEXT NOT NULL,
	original_language TEXT NOT NULL,
	method            TEXT NOT NULL,
	text              TEXT NOT NULL,
	segment_count     INTEGER NOT NULL,
	file_size         INTEGER NOT NULL,
	PRIMARY KEY (item_id, language)
);

CREATE TABLE IF NOT EXISTS voice_assets (
	item_id  TEXT PRIMARY KEY REFERENCES items(id) ON DELETE CASCADE,
	path     TEXT NOT NULL,
	duration REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS composed_videos (
	item_id  TEXT PRIMARY KEY REFERENCES items(id) ON DELETE CASCADE,
	path     TEXT NOT NULL,
	duration REAL NOT NULL,
	cues     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS shorts (
	id             TEXT PRIMARY KEY,
	item_id        TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
	platform       TEXT NOT NULL,
	start_sec      REAL NOT NULL,
	end_sec        REAL NOT NULL,
	path           TEXT NOT NULL,
	thumbnail_path TEXT NOT NULL DEFAULT '',
	title          TEXT NOT NULL,
	created_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_shorts_item ON shorts(item_id);

CREATE TABLE IF NOT EXISTS analytics (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	item_id    TEXT NOT NULL,
	platform   TEXT NOT NULL,
	kind       TEXT NOT NULL,
	size_bytes INTEGER NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_analytics_platform_kind ON analytics(platform, kind);
`

type Store struct {
	db *sql.DB
}

var _ ports.Store = (*Store)(nil)

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// modernc sqlite is not safe for concurrent writers on one connection
	// pool without serialization; a single connection keeps writes ordered.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) CreateItem(ctx context.Context, it *types.Item) error {
	stages, err := json.Marshal(it.Stages)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO items (id, title, source_url, source_duration, theme, audio_path, caption_path, stages, failed_stage, failure_reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.ID, it.Title, it.SourceURL, types.Sec(it.SourceDuration), it.Theme,
		it.AudioPath, it.CaptionPath, string(stages), string(it.FailedStage),
		it.FailureReason, it.CreatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func (s *Store) GetItem(ctx context.Context, id string) (*types.Item, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, source_url, source_duration, theme, audio_path, caption_path, stages, failed_stage, failure_reason, created_at
		FROM items WHERE id = ?`, id)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("item %s not found", id)
	}
	return it, err
}

func (s *Store) ListItems(ctx context.Context) ([]types.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, source_url, source_duration, theme, audio_path, caption_path, stages, failed_stage, failure_reason, created_at
		FROM items ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}

func (s *Store) UpdateItem(ctx context.Context, it *types.Item) error {
	stages, err := json.Marshal(it.Stages)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE items SET title = ?, source_url = ?, source_duration = ?, theme = ?, audio_path = ?, caption_path = ?, stages = ?, failed_stage = ?, failure_reason = ?
		WHERE id = ?`,
		it.Title, it.SourceURL, types.Sec(it.SourceDuration), it.Theme,
		it.AudioPath, it.CaptionPath, string(stages), string(it.FailedStage),
		it.FailureReason, it.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("item %s not found", it.ID)
	}
	return nil
}

func (s *Store) DeleteItem(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	return err
}

func (s *Store) SaveTranscript(ctx context.Context, itemID string, tr types.Transcript) error {
	segs, err := json.Marshal(tr.Segments)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transcripts (item_id, language, segments) VALUES (?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET language = excluded.language, segments = excluded.segments`,
		itemID, tr.Language, string(segs))
	return err
}

func (s *Store) GetTranscript(ctx context.Context, itemID string) (types.Transcript, bool, error) {
	var tr types.Transcript
	var segs string
	err := s.db.QueryRowContext(ctx,
		`SELECT language, segments FROM transcripts WHERE item_id = ?`, itemID).
		Scan(&tr.Language, &segs)
	if err == sql.ErrNoRows {
		return types.Transcript{}, false, nil
	}
	if err != nil {
		return types.Transcript{}, false, err
	}
	if err := json.Unmarshal([]byte(segs), &tr.Segments); err != nil {
		return types.Transcript{}, false, err
	}
	return tr, true, nil
}

func (s *Store) SaveTranslation(ctx context.Context, tl types.Translation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO translations (item_id, language, original_language, method, text, segment_count, file_size)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_id, language) DO UPDATE SET
			original_language = excluded.original_language,
			method = excluded.method,
			text = excluded.text,
			segment_count = excluded.segment_count,
			file_size = excluded.file_size`,
		tl.ItemID, tl.Language, tl.OriginalLanguage, string(tl.Method), tl.Text, tl.SegmentCount, tl.FileSize)
	return err
}

func (s *Store) GetTranslation(ctx context.Context, itemID, language string) (types.Translation, bool, error) {
	tl := types.Translation{ItemID: itemID, Language: language}
	var method string
	err := s.db.QueryRowContext(ctx, `
		SELECT original_language, method, text, segment_count, file_size
		FROM translations WHERE item_id = ? AND language = ?`, itemID, language).
		Scan(&tl.OriginalLanguage, &method, &tl.Text, &tl.SegmentCount, &tl.FileSize)
	if err == sql.ErrNoRows {
		return types.Translation{}, false, nil
	}
	if err != nil {
		return types.Translation{}, false, err
	}
	tl.Method = types.Method(method)
	return tl, true, nil
}

func (s *Store) SaveVoiceAsset(ctx context.Context, itemID string, va types.VoiceAsset) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO voice_assets (item_id, path, duration) VALUES (?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET path = excluded.path, duration = excluded.duration`,
		itemID, va.Path, types.Sec(va.Duration))
	return err
}

func (s *Store) GetVoiceAsset(ctx context.Context, itemID string) (types.VoiceAsset, bool, error) {
	var va types.VoiceAsset
	var sec float64
	err := s.db.QueryRowContext(ctx,
		`SELECT path, duration FROM voice_assets WHERE item_id = ?`, itemID).
		Scan(&va.Path, &sec)
	if err == sql.ErrNoRows {
		return types.VoiceAsset{}, false, nil
	}
	if err != nil {
		return types.VoiceAsset{}, false, err
	}
	va.Duration = types.Dur(sec)
	return va, true, nil
}

func (s *Store) SaveComposedVideo(ctx context.Context, cv types.ComposedVideo) error {
	cues, err := json.Marshal(cv.Cues)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO composed_videos (item_id, path, duration, cues) VALUES (?, ?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET path = excluded.path, duration = excluded.duration, cues = excluded.cues`,
		cv.ItemID, cv.Path, types.Sec(cv.Duration), string(cues))
	return err
}

func (s *Store) GetComposedVideo(ctx context.Context, itemID string) (types.ComposedVideo, bool, error) {
	cv := types.ComposedVideo{ItemID: itemID}
	var sec float64
	var cues string
	err := s.db.QueryRowContext(ctx,
		`SELECT path, duration, cues FROM composed_videos WHERE item_id = ?`, itemID).
		Scan(&cv.Path, &sec, &cues)
	if err == sql.ErrNoRows {
		return types.ComposedVideo{}, false, nil
	}
	if err != nil {
		return types.ComposedVideo{}, false, err
	}
	cv.Duration = types.Dur(sec)
	if err := json.Unmarshal([]byte(cues), &cv.Cues); err != nil {
		return types.ComposedVideo{}, false, err
	}
	return cv, true, nil
}

func (s *Store) SaveShort(ctx context.Context, sh types.Short) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shorts (id, item_id, platform, start_sec, end_sec, path, thumbnail_path, title, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sh.ID, sh.ItemID, sh.Platform, types.Sec(sh.Start), types.Sec(sh.End),
		sh.Path, sh.ThumbnailPath, sh.Title, sh.CreatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func (s *Store) ListShorts(ctx context.Context, itemID string) ([]types.Short, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, item_id, platform, start_sec, end_sec, path, thumbnail_path, title, created_at
		FROM shorts WHERE item_id = ? ORDER BY platform, start_sec`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Short
	for rows.Next() {
		var sh types.Short
		var start, end float64
		var created string
		if err := rows.Scan(&sh.ID, &sh.ItemID, &sh.Platform, &start, &end, &sh.Path, &sh.ThumbnailPath, &sh.Title, &created); err != nil {
			return nil, err
		}
		sh.Start = types.Dur(start)
		sh.End = types.Dur(end)
		sh.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, sh)
	}
	return out, rows.Err()
}

func (s *Store) DeleteShorts(ctx context.Context, itemID, platform string) error {
	if platform == "" {
		_, err := s.db.ExecContext(ctx, `DELETE FROM shorts WHERE item_id = ?`, itemID)
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM shorts WHERE item_id = ? AND platform = ?`, itemID, platform)
	return err
}

func (s *Store) AddAnalytics(ctx context.Context, ev ports.AnalyticsEvent) error {
	at := ev.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analytics (item_id, platform, kind, size_bytes, created_at) VALUES (?, ?, ?, ?, ?)`,
		ev.ItemID, ev.Platform, ev.Kind, ev.SizeBytes, at.UTC().Format(time.RFC3339Nano))
	return err
}

func (s *Store) CountAnalytics(ctx context.Context, platform, kind string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM analytics WHERE (? = '' OR platform = ?) AND (? = '' OR kind = ?)`,
		platform, platform, kind, kind).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*types.Item, error) {
	var it types.Item
	var sec float64
	var stages, created string
	err := row.Scan(&it.ID, &it.Title, &it.SourceURL, &sec, &it.Theme,
		&it.AudioPath, &it.CaptionPath, &stages, (*string)(&it.FailedStage),
		&it.FailureReason, &created)
	if err != nil {
		return nil, err
	}
	it.SourceDuration = types.Dur(sec)
	if err := json.Unmarshal([]byte(stages), &it.Stages); err != nil {
		return nil, err
	}
	it.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return &it, nil
}
