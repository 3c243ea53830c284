package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Op is one write in a Batch. The set of operations is closed: only the types
// in this file implement it.
type Op interface {
	apply(ctx context.Context, tx *txExec, result *BatchResult) error
}

// Batch is applied in order inside a single transaction.
type Batch []Op

type BatchResult struct {
	// Pruned lists speakers removed because nothing references them anymore.
	Pruned []string
}

type UpsertSpeech struct {
	Filename    string
	DisplayName string
}

type EnsureSpeaker struct {
	Slug string
	Name string
}

type InsertSection struct {
	Section Section
	// TopLevel marks an ID taken from the global sequence rather than derived
	// from an anchor. Only top-level rows move MaxTopLevelSectionID.
	TopLevel bool
}

type UpdateSection struct {
	Section Section
}

type DeleteSection struct {
	ID int64
}

type AddRelation struct {
	Filename string
	Speaker  string
}

type RemoveRelation struct {
	Filename string
	Speaker  string
}

// PruneSpeaker deletes the speaker only when no section and no relation in any
// speech still points at it.
type PruneSpeaker struct {
	Slug string
}

type DeleteSpeech struct {
	Filename string
}

func (op UpsertSpeech) apply(ctx context.Context, tx *txExec, _ *BatchResult) error {
	_, err := tx.exec(ctx, `
		INSERT INTO speeches (filename, display_name)
		VALUES (?, ?)
		ON CONFLICT (filename) DO UPDATE
		SET display_name = excluded.display_name, updated_at = CURRENT_TIMESTAMP
	`, op.Filename, op.DisplayName)
	if err != nil {
		return fmt.Errorf("upsert speech %s: %w", op.Filename, err)
	}
	return nil
}

func (op EnsureSpeaker) apply(ctx context.Context, tx *txExec, _ *BatchResult) error {
	_, err := tx.exec(ctx, `
		INSERT INTO speakers (route_pathname, name)
		VALUES (?, ?)
		ON CONFLICT (route_pathname) DO NOTHING
	`, op.Slug, op.Name)
	if err != nil {
		return fmt.Errorf("ensure speaker %s: %w", op.Slug, err)
	}
	return nil
}

func (op InsertSection) apply(ctx context.Context, tx *txExec, _ *BatchResult) error {
	s := op.Section
	_, err := tx.exec(ctx, `
		INSERT INTO sections (section_id, filename, previous_section_id, next_section_id, section_speaker, section_content, top_level)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.Filename, nullInt64(s.Previous), nullInt64(s.Next), nullString(s.Speaker), s.Content, op.TopLevel)
	if err != nil {
		return fmt.Errorf("insert section %d: %w", s.ID, err)
	}
	return nil
}

func (op UpdateSection) apply(ctx context.Context, tx *txExec, _ *BatchResult) error {
	s := op.Section
	res, err := tx.exec(ctx, `
		UPDATE sections
		SET filename = ?, previous_section_id = ?, next_section_id = ?, section_speaker = ?, section_content = ?
		WHERE section_id = ?
	`, s.Filename, nullInt64(s.Previous), nullInt64(s.Next), nullString(s.Speaker), s.Content, s.ID)
	if err != nil {
		return fmt.Errorf("update section %d: %w", s.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update section %d: %w", s.ID, sql.ErrNoRows)
	}
	return nil
}

func (op DeleteSection) apply(ctx context.Context, tx *txExec, _ *BatchResult) error {
	if _, err := tx.exec(ctx, `DELETE FROM sections WHERE section_id = ?`, op.ID); err != nil {
		return fmt.Errorf("delete section %d: %w", op.ID, err)
	}
	return nil
}

func (op AddRelation) apply(ctx context.Context, tx *txExec, _ *BatchResult) error {
	_, err := tx.exec(ctx, `
		INSERT INTO speech_speakers (speech_filename, speaker_route_pathname)
		VALUES (?, ?)
		ON CONFLICT (speech_filename, speaker_route_pathname) DO NOTHING
	`, op.Filename, op.Speaker)
	if err != nil {
		return fmt.Errorf("add relation %s/%s: %w", op.Filename, op.Speaker, err)
	}
	return nil
}

func (op RemoveRelation) apply(ctx context.Context, tx *txExec, _ *BatchResult) error {
	_, err := tx.exec(ctx, `
		DELETE FROM speech_speakers WHERE speech_filename = ? AND speaker_route_pathname = ?
	`, op.Filename, op.Speaker)
	if err != nil {
		return fmt.Errorf("remove relation %s/%s: %w", op.Filename, op.Speaker, err)
	}
	return nil
}

func (op PruneSpeaker) apply(ctx context.Context, tx *txExec, result *BatchResult) error {
	res, err := tx.exec(ctx, `
		DELETE FROM speakers
		WHERE route_pathname = ?
		  AND NOT EXISTS (SELECT 1 FROM sections WHERE section_speaker = ?)
		  AND NOT EXISTS (SELECT 1 FROM speech_speakers WHERE speaker_route_pathname = ?)
	`, op.Slug, op.Slug, op.Slug)
	if err != nil {
		return fmt.Errorf("prune speaker %s: %w", op.Slug, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		result.Pruned = append(result.Pruned, op.Slug)
	}
	return nil
}

func (op DeleteSpeech) apply(ctx context.Context, tx *txExec, _ *BatchResult) error {
	if _, err := tx.exec(ctx, `DELETE FROM speeches WHERE filename = ?`, op.Filename); err != nil {
		return fmt.Errorf("delete speech %s: %w", op.Filename, err)
	}
	return nil
}

type txExec struct {
	tx      *sql.Tx
	dialect Dialect
}

func (t *txExec) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.dialect.rebind(query), args...)
}

// ApplyBatch runs every operation in one transaction. Any failure rolls the
// whole batch back.
func (s *SQLStore) ApplyBatch(ctx context.Context, batch Batch) (BatchResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return BatchResult{}, fmt.Errorf("begin batch: %w", err)
	}
	exec := &txExec{tx: tx, dialect: s.dialect}

	var result BatchResult
	for _, op := range batch {
		if err := op.apply(ctx, exec, &result); err != nil {
			_ = tx.Rollback()
			return BatchResult{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return BatchResult{}, fmt.Errorf("commit batch: %w", err)
	}
	return result, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
