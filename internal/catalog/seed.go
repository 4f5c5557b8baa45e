package catalog

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Seed is the YAML layout accepted by LoadSeed.
//
//	institutions:
//	  - id: 1
//	    name: Acme U
//	    courses:
//	      - id: 10
//	        code: CS101
//	        title: Intro to CS
//	        term: Fall2024
type Seed struct {
	Institutions []SeedInstitution `yaml:"institutions"`
}

// SeedInstitution is one institution and its courses.
type SeedInstitution struct {
	ID      int64        `yaml:"id"`
	Name    string       `yaml:"name"`
	Courses []SeedCourse `yaml:"courses"`
}

// SeedCourse is one course row.
type SeedCourse struct {
	ID                      int64   `yaml:"id"`
	Code                    string  `yaml:"code"`
	Title                   string  `yaml:"title"`
	Term                    string  `yaml:"term"`
	Outline                 string  `yaml:"outline"`
	Schedule                string  `yaml:"schedule"`
	PreferredQualifications string  `yaml:"preferredQualifications"`
	DeliveryMethod          string  `yaml:"deliveryMethod"`
	Compensation            float64 `yaml:"compensation"`
}

// LoadSeed reads and validates a seed file.
func LoadSeed(path string) (Seed, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("catalog: read seed: %w", err)
	}
	return ParseSeed(b)
}

// ParseSeed decodes a YAML seed document. Unknown keys are rejected.
func ParseSeed(b []byte) (Seed, error) {
	var seed Seed
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		return Seed{}, fmt.Errorf("catalog: parse seed: %w", err)
	}
	if err := seed.Validate(); err != nil {
		return Seed{}, err
	}
	return seed, nil
}

// Validate checks ids are positive and unique and required columns are set.
func (s Seed) Validate() error {
	institutions := map[int64]bool{}
	courses := map[int64]bool{}
	for _, inst := range s.Institutions {
		if inst.ID <= 0 {
			return fmt.Errorf("catalog: institution %q: id must be positive", inst.Name)
		}
		if institutions[inst.ID] {
			return fmt.Errorf("catalog: duplicate institution id %d", inst.ID)
		}
		institutions[inst.ID] = true
		if strings.TrimSpace(inst.Name) == "" {
			return fmt.Errorf("catalog: institution %d: name is required", inst.ID)
		}
		for _, course := range inst.Courses {
			if course.ID <= 0 {
				return fmt.Errorf("catalog: institution %d course %q: id must be positive", inst.ID, course.Code)
			}
			if courses[course.ID] {
				return fmt.Errorf("catalog: duplicate course id %d", course.ID)
			}
			courses[course.ID] = true
			if course.Code == "" || course.Title == "" || course.Term == "" {
				return fmt.Errorf("catalog: course %d: code, title and term are required", course.ID)
			}
		}
	}
	return nil
}

// Apply inserts the seed in one transaction, replacing rows with the same
// ids.
func (s *Store) Apply(ctx context.Context, seed Seed) (retErr error) {
	if err := seed.Validate(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	for _, inst := range seed.Institutions {
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM courses WHERE institution_id = ?`), inst.ID); err != nil {
			return fmt.Errorf("catalog: clear institution %d: %w", inst.ID, err)
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM academic_institutions WHERE institution_id = ?`), inst.ID); err != nil {
			return fmt.Errorf("catalog: clear institution %d: %w", inst.ID, err)
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO academic_institutions (institution_id, name) VALUES (?, ?)`),
			inst.ID, inst.Name); err != nil {
			return fmt.Errorf("catalog: insert institution %d: %w", inst.ID, err)
		}
		for _, c := range inst.Courses {
			if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM courses WHERE course_id = ?`), c.ID); err != nil {
				return fmt.Errorf("catalog: clear course %d: %w", c.ID, err)
			}
			if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO courses (course_id, institution_id, code, title, term,
				outline, schedule, preferred_qualifications, delivery_method, compensation)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
				c.ID, inst.ID, c.Code, c.Title, c.Term, c.Outline, c.Schedule,
				c.PreferredQualifications, c.DeliveryMethod, c.Compensation); err != nil {
				return fmt.Errorf("catalog: insert course %d: %w", c.ID, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("catalog: commit: %w", err)
	}
	return nil
}
