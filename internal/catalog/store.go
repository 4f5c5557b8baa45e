// Package catalog is the course catalog behind the reference data service.
// It runs on SQLite (modernc.org/sqlite) or Postgres (pgx stdlib).
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver

	cascade "github.com/goliatone/go-cascade"
	"github.com/goliatone/go-cascade/pkg/dataservice"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

const (
	defaultSQLitePath = "catalog.db"
	memoryDSN         = ":memory:"
)

var (
	// ErrNotFound indicates a lookup that matched no row.
	ErrNotFound = errors.New("catalog: not found")
	// ErrUnsupportedDriver indicates a driver other than sqlite or pgx.
	ErrUnsupportedDriver = errors.New("catalog: unsupported driver")
)

// Store answers option list, search and detail queries.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the catalog and applies the schema. Driver "postgres" is
// accepted as an alias of pgx. An empty SQLite DSN uses catalog.db.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	driver = normaliseDriver(driver)
	switch driver {
	case DriverSQLite:
		if dsn == "" {
			dsn = defaultSQLitePath
		}
		if dsn != memoryDSN && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
				return nil, fmt.Errorf("catalog: create dirs: %w", err)
			}
		}
	case DriverPostgres:
		if dsn == "" {
			return nil, fmt.Errorf("catalog: postgres dsn is required")
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", driver, err)
	}
	if driver == DriverSQLite && dsn == memoryDSN {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("catalog: ping %s: %w", driver, err)
	}
	s := &Store{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// OpenMemory opens an empty in-memory SQLite catalog.
func OpenMemory(ctx context.Context) (*Store, error) {
	return Open(ctx, DriverSQLite, memoryDSN)
}

func normaliseDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3":
		return DriverSQLite
	case "pgx", "postgres", "postgresql":
		return DriverPostgres
	default:
		return driver
	}
}

// Driver reports the database/sql driver in use.
func (s *Store) Driver() string { return s.driver }

// DB exposes the underlying sql.DB for tests and health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

var schema = []string{
	`CREATE TABLE IF NOT EXISTS academic_institutions (
		institution_id INTEGER PRIMARY KEY,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS courses (
		course_id INTEGER PRIMARY KEY,
		institution_id INTEGER NOT NULL REFERENCES academic_institutions(institution_id),
		code TEXT NOT NULL,
		title TEXT NOT NULL,
		term TEXT NOT NULL,
		outline TEXT NOT NULL DEFAULT '',
		schedule TEXT NOT NULL DEFAULT '',
		preferred_qualifications TEXT NOT NULL DEFAULT '',
		delivery_method TEXT NOT NULL DEFAULT '',
		compensation DOUBLE PRECISION NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS courses_institution_code ON courses (institution_id, code)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("catalog: apply schema: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func parseID(kind, raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("catalog: invalid %s id %q: %w", kind, raw, err)
	}
	return id, nil
}

// Institutions lists every institution ordered by name.
func (s *Store) Institutions(ctx context.Context) ([]dataservice.Institution, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT institution_id, name FROM academic_institutions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("catalog: select institutions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []dataservice.Institution{}
	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("catalog: scan institution: %w", err)
		}
		out = append(out, dataservice.Institution{ID: strconv.FormatInt(id, 10), Name: name})
	}
	return out, rows.Err()
}

// CourseCodes lists the distinct course codes of an institution.
func (s *Store) CourseCodes(ctx context.Context, institutionID string) ([]string, error) {
	id, err := parseID("institution", institutionID)
	if err != nil {
		return nil, err
	}
	return s.column(ctx, `SELECT DISTINCT code FROM courses WHERE institution_id = ? ORDER BY code`, id)
}

// CourseTitles lists the distinct course titles of an institution.
func (s *Store) CourseTitles(ctx context.Context, institutionID string) ([]string, error) {
	id, err := parseID("institution", institutionID)
	if err != nil {
		return nil, err
	}
	return s.column(ctx, `SELECT DISTINCT title FROM courses WHERE institution_id = ? ORDER BY title`, id)
}

// CourseTitle returns the title of a course code, or ErrNotFound.
func (s *Store) CourseTitle(ctx context.Context, institutionID, courseCode string) (string, error) {
	id, err := parseID("institution", institutionID)
	if err != nil {
		return "", err
	}
	titles, err := s.column(ctx, `SELECT DISTINCT title FROM courses WHERE institution_id = ? AND code = ? ORDER BY title`, id, courseCode)
	if err != nil {
		return "", err
	}
	if len(titles) == 0 {
		return "", ErrNotFound
	}
	return titles[0], nil
}

// Terms lists the distinct terms of an institution, narrowed to a course
// code when one is given.
func (s *Store) Terms(ctx context.Context, institutionID, courseCode string) ([]string, error) {
	id, err := parseID("institution", institutionID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(courseCode) == "" {
		return s.column(ctx, `SELECT DISTINCT term FROM courses WHERE institution_id = ? ORDER BY term`, id)
	}
	return s.column(ctx, `SELECT DISTINCT term FROM courses WHERE institution_id = ? AND code = ? ORDER BY term`, id, courseCode)
}

func (s *Store) column(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []string{}
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("catalog: scan: %w", err)
		}
		out = append(out, value)
	}
	return out, rows.Err()
}

const courseColumns = `c.course_id, c.institution_id, i.name, c.title, c.code, c.term, c.outline,
	c.schedule, c.preferred_qualifications, c.delivery_method, c.compensation`

// Search returns the courses matching every non-empty filter, ordered by
// institution name then course code. Schedule matches as a substring.
func (s *Store) Search(ctx context.Context, query cascade.SearchQuery) ([]cascade.CourseResult, error) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause, value string) {
		if value = strings.TrimSpace(value); value != "" {
			clauses = append(clauses, clause)
			args = append(args, value)
		}
	}
	add("i.name = ?", query.InstitutionName)
	add("c.code = ?", query.CourseCode)
	add("c.title = ?", query.CourseTitle)
	add("c.term = ?", query.Term)
	if schedule := strings.TrimSpace(query.Schedule); schedule != "" {
		clauses = append(clauses, "c.schedule LIKE ?")
		args = append(args, "%"+schedule+"%")
	}
	add("c.delivery_method = ?", query.DeliveryMethod)

	stmt := `SELECT ` + courseColumns + `
		FROM courses c JOIN academic_institutions i ON c.institution_id = i.institution_id
		WHERE 1=1`
	for _, clause := range clauses {
		stmt += " AND " + clause
	}
	stmt += " ORDER BY i.name, c.code, c.course_id"

	details, err := s.courses(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	out := make([]cascade.CourseResult, 0, len(details))
	for _, detail := range details {
		out = append(out, detail.Result())
	}
	return out, nil
}

// CourseDetail returns one course, or ErrNotFound.
func (s *Store) CourseDetail(ctx context.Context, courseID string) (dataservice.CourseDetail, error) {
	id, err := parseID("course", courseID)
	if err != nil {
		return dataservice.CourseDetail{}, err
	}
	details, err := s.courses(ctx, `SELECT `+courseColumns+`
		FROM courses c JOIN academic_institutions i ON c.institution_id = i.institution_id
		WHERE c.course_id = ?`, id)
	if err != nil {
		return dataservice.CourseDetail{}, err
	}
	if len(details) == 0 {
		return dataservice.CourseDetail{}, fmt.Errorf("%w: course %s", ErrNotFound, courseID)
	}
	return details[0], nil
}

func (s *Store) courses(ctx context.Context, query string, args ...any) ([]dataservice.CourseDetail, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: select courses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []dataservice.CourseDetail{}
	for rows.Next() {
		var (
			courseID, institutionID int64
			d                       dataservice.CourseDetail
		)
		if err := rows.Scan(&courseID, &institutionID, &d.InstitutionName, &d.Title, &d.Code, &d.Term,
			&d.Outline, &d.Schedule, &d.PreferredQualifications, &d.DeliveryMethod, &d.Compensation); err != nil {
			return nil, fmt.Errorf("catalog: scan course: %w", err)
		}
		d.CourseID = strconv.FormatInt(courseID, 10)
		d.InstitutionID = strconv.FormatInt(institutionID, 10)
		out = append(out, d)
	}
	return out, rows.Err()
}
