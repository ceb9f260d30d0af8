package device

import (
	"errors"
	"fmt"
	"os"

	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/shared/types"
	"github.com/goccy/go-yaml"
	"go.uber.org/zap"
)

// Manifest describes an initial device population
type Manifest struct {
	Users      []int             `yaml:"users"`
	Packages   []PackageSpec     `yaml:"packages"`
	Properties map[string]string `yaml:"properties"`
}

// PackageSpec installs one package for a set of users.
// With no users the package is installed for user 0.
type PackageSpec struct {
	Name                 string `yaml:"name"`
	AppID                int    `yaml:"app_id"`
	Users                []int  `yaml:"users"`
	Bucket               string `yaml:"bucket"`
	Hibernating          bool   `yaml:"hibernating"`
	BackgroundRestricted bool   `yaml:"background_restricted"`
}

// LoadManifest reads a YAML manifest from path
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes and validates a YAML manifest
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks names, buckets and app ids
func (m *Manifest) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(m.Packages))
	for i, p := range m.Packages {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("package %d: missing name", i))
			continue
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("package %s: listed twice", p.Name))
		}
		seen[p.Name] = true
		if p.AppID < 0 || p.AppID >= types.PerUserRange {
			errs = append(errs, fmt.Errorf("package %s: app id %d out of range", p.Name, p.AppID))
		}
		if p.Bucket != "" {
			if _, err := types.ParseStandbyBucket(p.Bucket); err != nil {
				errs = append(errs, fmt.Errorf("package %s: %w", p.Name, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Seed populates the device from m without notifying the observer. It is
// meant to run before the controller is attached.
func (d *Device) Seed(m *Manifest) error {
	for _, userID := range m.Users {
		if err := d.addUser(userID); err != nil && !errors.Is(err, ErrUserExists) {
			return err
		}
		d.mu.Lock()
		d.users[userID] = true
		d.mu.Unlock()
	}

	for _, p := range m.Packages {
		bucket := types.BucketActive
		if p.Bucket != "" {
			b, err := types.ParseStandbyBucket(p.Bucket)
			if err != nil {
				return fmt.Errorf("package %s: %w", p.Name, err)
			}
			bucket = b
		}
		users := p.Users
		if len(users) == 0 {
			users = []int{0}
		}
		for _, userID := range users {
			if _, _, err := d.install(p.Name, userID, p.AppID, bucket); err != nil {
				return fmt.Errorf("package %s: %w", p.Name, err)
			}
			d.mu.Lock()
			st := d.packages[pkgKey{p.Name, userID}]
			st.hibernating = p.Hibernating
			st.restricted = p.BackgroundRestricted
			d.mu.Unlock()
		}
	}

	d.mu.Lock()
	for k, v := range m.Properties {
		d.properties[k] = v
	}
	packages := len(d.packages)
	d.mu.Unlock()

	d.logger.Info("Device seeded", zap.Ints("users", d.UserIDs()), zap.Int("packages", packages))
	return nil
}
