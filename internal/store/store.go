package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var ErrSpeechExists = errors.New("speech already exists")

// SQLStore is the persistence layer for speeches, sections and speakers on
// either Postgres or SQLite.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
}

func (s *SQLStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.dialect.rebind(query), args...)
}

// LoadSections returns the sections of a speech in ID order. Callers that
// need reading order walk the links.
func (s *SQLStore) LoadSections(ctx context.Context, filename string) ([]Section, error) {
	rows, err := s.query(ctx, `
		SELECT section_id, filename, previous_section_id, next_section_id, section_speaker, section_content
		FROM sections
		WHERE filename = ?
		ORDER BY section_id
	`, filename)
	if err != nil {
		return nil, fmt.Errorf("load sections: %w", err)
	}
	defer rows.Close()

	items := make([]Section, 0)
	for rows.Next() {
		item, err := scanSection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sections: %w", err)
	}
	return items, nil
}

func (s *SQLStore) LoadRelations(ctx context.Context, filename string) ([]string, error) {
	rows, err := s.query(ctx, `
		SELECT speaker_route_pathname FROM speech_speakers
		WHERE speech_filename = ?
		ORDER BY speaker_route_pathname
	`, filename)
	if err != nil {
		return nil, fmt.Errorf("load relations: %w", err)
	}
	defer rows.Close()

	items := make([]string, 0)
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		items = append(items, slug)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate relations: %w", err)
	}
	return items, nil
}

// MaxTopLevelSectionID returns the largest ID handed out by the global
// sequence, or 0 when there is none. IDs derived from an anchor are ignored
// even when they fall below TopLevelLimit.
func (s *SQLStore) MaxTopLevelSectionID(ctx context.Context) (int64, error) {
	var maxID int64
	err := s.queryRow(ctx, `
		SELECT COALESCE(MAX(section_id), 0) FROM sections
		WHERE top_level AND section_id < ?
	`, int64(TopLevelLimit)).Scan(&maxID)
	if err != nil {
		return 0, fmt.Errorf("max section id: %w", err)
	}
	return maxID, nil
}

// SectionIDsBetween returns the IDs in [lo, hi] across every speech.
func (s *SQLStore) SectionIDsBetween(ctx context.Context, lo, hi int64) ([]int64, error) {
	rows, err := s.query(ctx, `
		SELECT section_id FROM sections
		WHERE section_id BETWEEN ? AND ?
		ORDER BY section_id
	`, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("section ids between %d and %d: %w", lo, hi, err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan section id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate section ids: %w", err)
	}
	return ids, nil
}

// CreateSpeech registers a new, empty speech. It fails with ErrSpeechExists
// when the filename is taken.
func (s *SQLStore) CreateSpeech(ctx context.Context, filename, displayName string) error {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO speeches (filename, display_name) VALUES (?, ?)
		ON CONFLICT (filename) DO NOTHING
	`), filename, displayName)
	if err != nil {
		return fmt.Errorf("create speech: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSpeechExists
	}
	return nil
}

func (s *SQLStore) GetSpeech(ctx context.Context, filename string) (Speech, error) {
	var (
		item             Speech
		created, updated dbTime
	)
	err := s.queryRow(ctx, `
		SELECT filename, display_name, created_at, updated_at FROM speeches WHERE filename = ?
	`, filename).Scan(&item.Filename, &item.DisplayName, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Speech{}, sql.ErrNoRows
		}
		return Speech{}, fmt.Errorf("get speech: %w", err)
	}
	item.CreatedAt = created.Time
	item.UpdatedAt = updated.Time
	return item, nil
}

func (s *SQLStore) ListSpeeches(ctx context.Context) ([]SpeechSummary, error) {
	rows, err := s.query(ctx, `
		SELECT sp.filename, sp.display_name, sp.created_at, sp.updated_at,
			(SELECT COUNT(*) FROM sections sc WHERE sc.filename = sp.filename)
		FROM speeches sp
		ORDER BY sp.filename DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list speeches: %w", err)
	}
	defer rows.Close()

	items := make([]SpeechSummary, 0)
	index := map[string]int{}
	for rows.Next() {
		var (
			item             SpeechSummary
			created, updated dbTime
		)
		if err := rows.Scan(&item.Filename, &item.DisplayName, &created, &updated, &item.SectionCount); err != nil {
			return nil, fmt.Errorf("scan speech: %w", err)
		}
		item.CreatedAt = created.Time
		item.UpdatedAt = updated.Time
		item.Speakers = []string{}
		index[item.Filename] = len(items)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate speeches: %w", err)
	}

	relRows, err := s.query(ctx, `
		SELECT speech_filename, speaker_route_pathname FROM speech_speakers
		ORDER BY speech_filename, speaker_route_pathname
	`)
	if err != nil {
		return nil, fmt.Errorf("list speech speakers: %w", err)
	}
	defer relRows.Close()
	for relRows.Next() {
		var filename, slug string
		if err := relRows.Scan(&filename, &slug); err != nil {
			return nil, fmt.Errorf("scan speech speaker: %w", err)
		}
		if i, ok := index[filename]; ok {
			items[i].Speakers = append(items[i].Speakers, slug)
		}
	}
	if err := relRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate speech speakers: %w", err)
	}
	return items, nil
}

const sectionDetailColumns = `
	sc.section_id, sc.filename, sc.previous_section_id, sc.next_section_id, sc.section_speaker, sc.section_content,
	COALESCE(spk.name, ''), COALESCE(sp.display_name, '')
`

const sectionDetailJoins = `
	FROM sections sc
	LEFT JOIN speeches sp ON sp.filename = sc.filename
	LEFT JOIN speakers spk ON spk.route_pathname = sc.section_speaker
`

// SpeechSections returns the sections of a speech with speaker and speech
// names, in ID order.
func (s *SQLStore) SpeechSections(ctx context.Context, filename string) ([]SectionDetail, error) {
	rows, err := s.query(ctx, `SELECT `+sectionDetailColumns+sectionDetailJoins+`
		WHERE sc.filename = ?
		ORDER BY sc.section_id
	`, filename)
	if err != nil {
		return nil, fmt.Errorf("speech sections: %w", err)
	}
	return collectSectionDetails(rows)
}

func (s *SQLStore) GetSection(ctx context.Context, id int64) (SectionDetail, error) {
	rows, err := s.query(ctx, `SELECT `+sectionDetailColumns+sectionDetailJoins+`
		WHERE sc.section_id = ?
	`, id)
	if err != nil {
		return SectionDetail{}, fmt.Errorf("get section: %w", err)
	}
	items, err := collectSectionDetails(rows)
	if err != nil {
		return SectionDetail{}, err
	}
	if len(items) == 0 {
		return SectionDetail{}, sql.ErrNoRows
	}
	return items[0], nil
}

func (s *SQLStore) ListSpeakers(ctx context.Context) ([]Speaker, error) {
	rows, err := s.query(ctx, `
		SELECT route_pathname, name, COALESCE(photo_url, '') FROM speakers ORDER BY name, route_pathname
	`)
	if err != nil {
		return nil, fmt.Errorf("list speakers: %w", err)
	}
	defer rows.Close()

	items := make([]Speaker, 0)
	for rows.Next() {
		var item Speaker
		if err := rows.Scan(&item.RoutePathname, &item.Name, &item.PhotoURL); err != nil {
			return nil, fmt.Errorf("scan speaker: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate speakers: %w", err)
	}
	return items, nil
}

func (s *SQLStore) GetSpeaker(ctx context.Context, slug string) (Speaker, error) {
	var item Speaker
	err := s.queryRow(ctx, `
		SELECT route_pathname, name, COALESCE(photo_url, '') FROM speakers WHERE route_pathname = ?
	`, slug).Scan(&item.RoutePathname, &item.Name, &item.PhotoURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Speaker{}, sql.ErrNoRows
		}
		return Speaker{}, fmt.Errorf("get speaker: %w", err)
	}
	return item, nil
}

func (s *SQLStore) SpeakerSections(ctx context.Context, slug string, limit int) ([]SectionDetail, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.query(ctx, `SELECT `+sectionDetailColumns+sectionDetailJoins+`
		WHERE sc.section_speaker = ?
		ORDER BY sc.filename DESC, sc.section_id
		LIMIT ?
	`, slug, limit)
	if err != nil {
		return nil, fmt.Errorf("speaker sections: %w", err)
	}
	return collectSectionDetails(rows)
}

// SearchSections is a substring match over section content and speaker names.
// It backs search when no search engine is reachable.
func (s *SQLStore) SearchSections(ctx context.Context, text string, limit, offset int) ([]SectionDetail, int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, 0, nil
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	pattern := "%" + escapeLike(text) + "%"
	where := `
		WHERE sc.section_content LIKE ? ESCAPE '\'
		   OR spk.name LIKE ? ESCAPE '\'
	`

	var total int
	if err := s.queryRow(ctx, `SELECT COUNT(*)`+sectionDetailJoins+where, pattern, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count search results: %w", err)
	}

	rows, err := s.query(ctx, `SELECT `+sectionDetailColumns+sectionDetailJoins+where+`
		ORDER BY sc.filename DESC, sc.section_id
		LIMIT ? OFFSET ?
	`, pattern, pattern, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("search sections: %w", err)
	}
	items, err := collectSectionDetails(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// SearchSpeakers matches speaker names and slugs by substring.
func (s *SQLStore) SearchSpeakers(ctx context.Context, text string, limit int) ([]Speaker, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []Speaker{}, nil
	}
	if limit <= 0 {
		limit = 5
	}
	pattern := "%" + escapeLike(text) + "%"
	rows, err := s.query(ctx, `
		SELECT route_pathname, name, COALESCE(photo_url, '') FROM speakers
		WHERE name LIKE ? ESCAPE '\' OR route_pathname LIKE ? ESCAPE '\'
		ORDER BY name, route_pathname
		LIMIT ?
	`, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search speakers: %w", err)
	}
	defer rows.Close()

	items := make([]Speaker, 0)
	for rows.Next() {
		var item Speaker
		if err := rows.Scan(&item.RoutePathname, &item.Name, &item.PhotoURL); err != nil {
			return nil, fmt.Errorf("scan speaker: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate speakers: %w", err)
	}
	return items, nil
}

// AllSectionDetails streams every section for reindexing.
func (s *SQLStore) AllSectionDetails(ctx context.Context) ([]SectionDetail, error) {
	rows, err := s.query(ctx, `SELECT `+sectionDetailColumns+sectionDetailJoins+`
		ORDER BY sc.filename, sc.section_id
	`)
	if err != nil {
		return nil, fmt.Errorf("all sections: %w", err)
	}
	return collectSectionDetails(rows)
}

// DeleteSpeechBatch builds the batch that removes a speech with its sections
// and relations, then prunes speakers left without references.
func (s *SQLStore) DeleteSpeechBatch(ctx context.Context, filename string) (Batch, []int64, error) {
	sections, err := s.LoadSections(ctx, filename)
	if err != nil {
		return nil, nil, err
	}
	relations, err := s.LoadRelations(ctx, filename)
	if err != nil {
		return nil, nil, err
	}

	speakers := map[string]struct{}{}
	ids := make([]int64, 0, len(sections))
	batch := Batch{}
	for _, section := range sections {
		batch = append(batch, DeleteSection{ID: section.ID})
		ids = append(ids, section.ID)
		if section.Speaker != "" {
			speakers[section.Speaker] = struct{}{}
		}
	}
	for _, slug := range relations {
		batch = append(batch, RemoveRelation{Filename: filename, Speaker: slug})
		speakers[slug] = struct{}{}
	}
	batch = append(batch, DeleteSpeech{Filename: filename})
	for _, slug := range sortedKeys(speakers) {
		batch = append(batch, PruneSpeaker{Slug: slug})
	}
	return batch, ids, nil
}

func collectSectionDetails(rows *sql.Rows) ([]SectionDetail, error) {
	defer rows.Close()
	items := make([]SectionDetail, 0)
	for rows.Next() {
		var (
			item       SectionDetail
			prev, next sql.NullInt64
			speaker    sql.NullString
		)
		if err := rows.Scan(&item.ID, &item.Filename, &prev, &next, &speaker, &item.Content, &item.SpeakerName, &item.DisplayName); err != nil {
			return nil, fmt.Errorf("scan section detail: %w", err)
		}
		item.Previous = ptrFromNull(prev)
		item.Next = ptrFromNull(next)
		item.Speaker = speaker.String
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate section details: %w", err)
	}
	return items, nil
}

func scanSection(rows *sql.Rows) (Section, error) {
	var (
		item       Section
		prev, next sql.NullInt64
		speaker    sql.NullString
	)
	if err := rows.Scan(&item.ID, &item.Filename, &prev, &next, &speaker, &item.Content); err != nil {
		return Section{}, err
	}
	item.Previous = ptrFromNull(prev)
	item.Next = ptrFromNull(next)
	item.Speaker = speaker.String
	return item, nil
}

func ptrFromNull(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return Int64Ptr(v.Int64)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// dbTime scans timestamps from drivers that return either time.Time or text.
type dbTime struct {
	Time time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
}

func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("unsupported time value %T", src)
	}
}

func (t *dbTime) parse(value string) error {
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("parse time %q", value)
}
