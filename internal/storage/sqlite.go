package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"fleetbot/internal/model"
	logx "fleetbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const timeFormat = time.RFC3339Nano

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- Fleets ----

func (s *sqliteStore) CreateFleet(ctx context.Context, f model.Fleet, values model.FieldValues) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	createdAt := f.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO fleets(category_id, name, commander_id, fleet_time, description, hidden, disable_reminder, created_at)
		 VALUES(?,?,?,?,?,?,?,?)`,
		f.CategoryID, f.Name, f.CommanderID, f.FleetTime.UTC().Format(timeFormat),
		nullStr(f.Description), f.Hidden, f.DisableReminder, createdAt.Format(timeFormat),
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if err := replaceFieldValues(ctx, tx, id, values); err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

func (s *sqliteStore) UpdateFleet(ctx context.Context, f model.Fleet, values model.FieldValues) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE fleets SET category_id=?, name=?, commander_id=?, fleet_time=?, description=?, hidden=?, disable_reminder=?
		 WHERE id=?`,
		f.CategoryID, f.Name, f.CommanderID, f.FleetTime.UTC().Format(timeFormat),
		nullStr(f.Description), f.Hidden, f.DisableReminder, f.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if values != nil {
		if err := replaceFieldValues(ctx, tx, f.ID, values); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func replaceFieldValues(ctx context.Context, tx *sql.Tx, fleetID int64, values model.FieldValues) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM fleet_field_values WHERE fleet_id=?`, fleetID); err != nil {
		return err
	}
	for fieldID, v := range values {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO fleet_field_values(fleet_id, field_id, value) VALUES(?,?,?)`,
			fleetID, fieldID, v,
		); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) DeleteFleet(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM fleet_field_values WHERE fleet_id=?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM fleet_messages WHERE fleet_id=?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM fleets WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

const fleetColumns = `id, category_id, name, commander_id, fleet_time, description, hidden, disable_reminder, created_at`

func (s *sqliteStore) GetFleet(ctx context.Context, id int64) (model.Fleet, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fleetColumns+` FROM fleets WHERE id=?`, id)
	f, err := scanFleet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Fleet{}, ErrNotFound
	}
	return f, err
}

func (s *sqliteStore) ReminderCandidates(ctx context.Context, now time.Time) ([]model.Fleet, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fleetColumns+` FROM fleets
		 WHERE hidden=0 AND disable_reminder=0 AND fleet_time > ?
		 ORDER BY fleet_time ASC`,
		now.UTC().Format(timeFormat),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFleets(rows)
}

func (s *sqliteStore) FormupCandidates(ctx context.Context, oldest, now time.Time) ([]model.Fleet, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fleetColumns+` FROM fleets
		 WHERE fleet_time <= ? AND fleet_time >= ?
		 ORDER BY fleet_time ASC`,
		now.UTC().Format(timeFormat), oldest.UTC().Format(timeFormat),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFleets(rows)
}

func (s *sqliteStore) UpcomingFleets(ctx context.Context, categoryIDs []int64, now time.Time) ([]model.Fleet, error) {
	if len(categoryIDs) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(categoryIDs)+1)
	for _, id := range categoryIDs {
		args = append(args, id)
	}
	args = append(args, now.UTC().Format(timeFormat))
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fleetColumns+` FROM fleets
		 WHERE category_id IN (`+placeholders(len(categoryIDs))+`) AND hidden=0 AND fleet_time > ?
		 ORDER BY fleet_time ASC`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFleets(rows)
}

func (s *sqliteStore) FieldValues(ctx context.Context, fleetID int64) (model.FieldValues, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT field_id, value FROM fleet_field_values WHERE fleet_id=?`, fleetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := model.FieldValues{}
	for rows.Next() {
		var id int64
		var v string
		if err := rows.Scan(&id, &v); err != nil {
			return nil, err
		}
		out[id] = v
	}
	return out, rows.Err()
}

type rowScanner interface{ Scan(dest ...any) error }

func scanFleet(r rowScanner) (model.Fleet, error) {
	var (
		f        model.Fleet
		ftRaw    string
		caRaw    string
		descRaw  sql.NullString
		hidden   int
		disabled int
	)
	if err := r.Scan(&f.ID, &f.CategoryID, &f.Name, &f.CommanderID, &ftRaw, &descRaw, &hidden, &disabled, &caRaw); err != nil {
		return model.Fleet{}, err
	}
	ft, err := time.Parse(timeFormat, ftRaw)
	if err != nil {
		return model.Fleet{}, fmt.Errorf("parse fleet_time: %w", err)
	}
	ca, err := time.Parse(timeFormat, caRaw)
	if err != nil {
		return model.Fleet{}, fmt.Errorf("parse created_at: %w", err)
	}
	f.FleetTime = ft
	f.CreatedAt = ca
	f.Description = descRaw.String
	f.Hidden = hidden != 0
	f.DisableReminder = disabled != 0
	return f, nil
}

func scanFleets(rows *sql.Rows) ([]model.Fleet, error) {
	var out []model.Fleet
	for rows.Next() {
		f, err := scanFleet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ---- Categories and ping formats ----

func (s *sqliteStore) CreateCategory(ctx context.Context, c model.FleetCategory) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO fleet_categories(guild_id, ping_format_id, name, lead_time_secs, reminder_cooldown_secs, max_pre_ping_secs)
		 VALUES(?,?,?,?,?,?)`,
		c.GuildID, c.PingFormatID, c.Name,
		int64(c.LeadTime.Seconds()), int64(c.ReminderCooldown.Seconds()), int64(c.MaxPrePing.Seconds()),
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	for _, ch := range c.ChannelIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO fleet_category_channels(fleet_category_id, channel_id) VALUES(?,?)`, id, ch); err != nil {
			return 0, err
		}
	}
	for _, role := range c.PingRoleIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO fleet_category_ping_roles(fleet_category_id, role_id) VALUES(?,?)`, id, role); err != nil {
			return 0, err
		}
	}
	return id, tx.Commit()
}

func (s *sqliteStore) GetCategory(ctx context.Context, id int64) (model.FleetCategory, error) {
	var (
		c                            model.FleetCategory
		leadSecs, cooldownSecs, maxS int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, guild_id, ping_format_id, name, lead_time_secs, reminder_cooldown_secs, max_pre_ping_secs
		 FROM fleet_categories WHERE id=?`, id,
	).Scan(&c.ID, &c.GuildID, &c.PingFormatID, &c.Name, &leadSecs, &cooldownSecs, &maxS)
	if errors.Is(err, sql.ErrNoRows) {
		return model.FleetCategory{}, ErrNotFound
	}
	if err != nil {
		return model.FleetCategory{}, err
	}
	c.LeadTime = time.Duration(leadSecs) * time.Second
	c.ReminderCooldown = time.Duration(cooldownSecs) * time.Second
	c.MaxPrePing = time.Duration(maxS) * time.Second

	c.ChannelIDs, err = s.stringList(ctx,
		`SELECT channel_id FROM fleet_category_channels WHERE fleet_category_id=? ORDER BY channel_id`, id)
	if err != nil {
		return model.FleetCategory{}, err
	}
	c.PingRoleIDs, err = s.stringList(ctx,
		`SELECT role_id FROM fleet_category_ping_roles WHERE fleet_category_id=? ORDER BY role_id`, id)
	if err != nil {
		return model.FleetCategory{}, err
	}
	return c, nil
}

func (s *sqliteStore) CategoryIDsByChannel(ctx context.Context, channelID string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT fleet_category_id FROM fleet_category_channels WHERE channel_id=?`, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *sqliteStore) CategoryNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	if len(ids) == 0 {
		return map[int64]string{}, nil
	}
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name FROM fleet_categories WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[int64]string{}
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[id] = name
	}
	return out, rows.Err()
}

func (s *sqliteStore) TrackedChannelIDs(ctx context.Context) ([]string, error) {
	return s.stringList(ctx,
		`SELECT DISTINCT channel_id FROM fleet_category_channels ORDER BY channel_id`)
}

func (s *sqliteStore) CreatePingFormat(ctx context.Context, guildID, name string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO ping_formats(guild_id, name) VALUES(?,?)`, guildID, name)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) CreateFormatField(ctx context.Context, f model.PingFormatField) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO ping_format_fields(ping_format_id, name, priority, default_value, value_type)
		 VALUES(?,?,?,?,?)`,
		f.PingFormatID, f.Name, f.Priority, nullStr(f.DefaultValue), string(f.Type),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) FormatFields(ctx context.Context, pingFormatID int64) ([]model.PingFormatField, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ping_format_id, name, priority, default_value, value_type
		 FROM ping_format_fields WHERE ping_format_id=? ORDER BY priority ASC, id ASC`, pingFormatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.PingFormatField
	for rows.Next() {
		var (
			f      model.PingFormatField
			defVal sql.NullString
			vt     string
		)
		if err := rows.Scan(&f.ID, &f.PingFormatID, &f.Name, &f.Priority, &defVal, &vt); err != nil {
			return nil, err
		}
		f.DefaultValue = defVal.String
		f.Type = model.FieldType(vt)
		out = append(out, f)
	}
	return out, rows.Err()
}

// ---- Fleet messages ----

func (s *sqliteStore) ReserveMessage(ctx context.Context, fleetID int64, channelID string, kind model.MessageKind) (bool, error) {
	now := time.Now().UTC().Format(timeFormat)
	// The conflict branch reclaims stale unfinalized reservations left by a
	// crash between reserve and finalize; a finalized row never matches.
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO fleet_messages(fleet_id, channel_id, message_id, kind, created_at)
		 VALUES(?,?,'',?,?)
		 ON CONFLICT(fleet_id, channel_id, kind) DO UPDATE SET created_at=excluded.created_at
		 WHERE fleet_messages.message_id=''`,
		fleetID, channelID, string(kind), now,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteStore) FinalizeMessage(ctx context.Context, fleetID int64, channelID string, kind model.MessageKind, messageID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE fleet_messages SET message_id=?, created_at=?
		 WHERE fleet_id=? AND channel_id=? AND kind=? AND message_id=''`,
		messageID, time.Now().UTC().Format(timeFormat), fleetID, channelID, string(kind),
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) ReleaseMessage(ctx context.Context, fleetID int64, channelID string, kind model.MessageKind) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM fleet_messages
		 WHERE fleet_id=? AND channel_id=? AND kind=? AND message_id=''`,
		fleetID, channelID, string(kind),
	)
	return err
}

func (s *sqliteStore) MessagesByFleet(ctx context.Context, fleetID int64) ([]model.FleetMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, fleet_id, channel_id, message_id, kind, created_at
		 FROM fleet_messages WHERE fleet_id=? AND message_id != ''
		 ORDER BY created_at ASC, id ASC`, fleetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.FleetMessage
	for rows.Next() {
		var (
			m     model.FleetMessage
			kind  string
			caRaw string
		)
		if err := rows.Scan(&m.ID, &m.FleetID, &m.ChannelID, &m.MessageID, &kind, &caRaw); err != nil {
			return nil, err
		}
		ca, err := time.Parse(timeFormat, caRaw)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		m.Kind = model.MessageKind(kind)
		m.CreatedAt = ca
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *sqliteStore) HasMessage(ctx context.Context, fleetID int64, kind model.MessageKind) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM fleet_messages WHERE fleet_id=? AND kind=? AND message_id != '' LIMIT 1`,
		fleetID, string(kind),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ---- Channel fleet lists ----

func (s *sqliteStore) ChannelList(ctx context.Context, channelID string) (model.ChannelFleetList, bool, error) {
	var (
		l                  model.ChannelFleetList
		lmRaw, crRaw, upRaw string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT channel_id, message_id, last_message_at, created_at, updated_at
		 FROM channel_fleet_lists WHERE channel_id=?`, channelID,
	).Scan(&l.ChannelID, &l.MessageID, &lmRaw, &crRaw, &upRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ChannelFleetList{}, false, nil
	}
	if err != nil {
		return model.ChannelFleetList{}, false, err
	}
	if l.LastMessageAt, err = time.Parse(timeFormat, lmRaw); err != nil {
		return model.ChannelFleetList{}, false, fmt.Errorf("parse last_message_at: %w", err)
	}
	if l.CreatedAt, err = time.Parse(timeFormat, crRaw); err != nil {
		return model.ChannelFleetList{}, false, fmt.Errorf("parse created_at: %w", err)
	}
	if l.UpdatedAt, err = time.Parse(timeFormat, upRaw); err != nil {
		return model.ChannelFleetList{}, false, fmt.Errorf("parse updated_at: %w", err)
	}
	return l, true, nil
}

func (s *sqliteStore) UpsertChannelList(ctx context.Context, channelID, messageID string) error {
	now := time.Now().UTC().Format(timeFormat)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channel_fleet_lists(channel_id, message_id, last_message_at, created_at, updated_at)
		 VALUES(?,?,?,?,?)
		 ON CONFLICT(channel_id) DO UPDATE SET
		   message_id=excluded.message_id,
		   last_message_at=excluded.last_message_at,
		   updated_at=excluded.updated_at`,
		channelID, messageID, now, now, now,
	)
	return err
}

func (s *sqliteStore) TouchChannelActivity(ctx context.Context, channelID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE channel_fleet_lists SET last_message_at=? WHERE channel_id=?`,
		at.UTC().Format(timeFormat), channelID,
	)
	return err
}

// ---- helpers ----

func (s *sqliteStore) stringList(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
