// Package registry persists project metadata in a key-value store.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/boltdb/bolt"
	"github.com/google/uuid"

	"github.com/wes/duckbake/internal/models"
)

var bucketProjects = []byte("projects")

// ErrNotFound is returned when a project does not exist.
var ErrNotFound = fmt.Errorf("project not found")

// Registry stores project records in a BoltDB file.
type Registry struct {
	db *bolt.DB
}

// Open opens (or creates) the registry database at path.
func Open(path string) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create registry dir: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketProjects)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create projects bucket: %w", err)
	}
	return &Registry{db: db}, nil
}

// Close closes the registry database.
func (r *Registry) Close() error {
	return r.db.Close()
}

// Create adds a new project. Names must be non-empty and unique
// (case-insensitive).
func (r *Registry) Create(name, description string) (*models.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("project name cannot be empty")
	}
	now := time.Now().UTC()
	project := &models.Project{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProjects)
		var exists bool
		if err := b.ForEach(func(_, v []byte) error {
			var p models.Project
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			if strings.EqualFold(p.Name, name) {
				exists = true
			}
			return nil
		}); err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("project %q already exists", name)
		}
		data, err := json.Marshal(project)
		if err != nil {
			return fmt.Errorf("failed to marshal project: %w", err)
		}
		return b.Put([]byte(project.ID), data)
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

// Get retrieves a project by id.
func (r *Registry) Get(id string) (*models.Project, error) {
	var project models.Project
	err := r.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketProjects).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &project)
	})
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// GetByName retrieves a project by name (case-insensitive).
func (r *Registry) GetByName(name string) (*models.Project, error) {
	var found *models.Project
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProjects).ForEach(func(_, v []byte) error {
			var p models.Project
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			if strings.EqualFold(p.Name, name) {
				found = &p
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

// List returns all projects sorted by name.
func (r *Registry) List() ([]*models.Project, error) {
	var projects []*models.Project
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProjects).ForEach(func(_, v []byte) error {
			var p models.Project
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("failed to unmarshal project: %w", err)
			}
			projects = append(projects, &p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(projects, func(i, j int) bool {
		return strings.ToLower(projects[i].Name) < strings.ToLower(projects[j].Name)
	})
	return projects, nil
}

// Update sets the description of an existing project.
func (r *Registry) Update(id, description string) (*models.Project, error) {
	var project models.Project
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProjects)
		data := b.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		if err := json.Unmarshal(data, &project); err != nil {
			return err
		}
		project.Description = description
		project.UpdatedAt = time.Now().UTC()
		updated, err := json.Marshal(&project)
		if err != nil {
			return fmt.Errorf("failed to marshal project: %w", err)
		}
		return b.Put([]byte(id), updated)
	})
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// Delete removes a project record. Deleting a missing project is an error so
// callers do not silently tear down files for a bad id.
func (r *Registry) Delete(id string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProjects)
		if b.Get([]byte(id)) == nil {
			return ErrNotFound
		}
		return b.Delete([]byte(id))
	})
}
