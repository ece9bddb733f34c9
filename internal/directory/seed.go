package directory

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/prefeitura-rio/app-scim-sync/internal/models"
	"gopkg.in/yaml.v3"
)

// Seed is the YAML layout accepted by LoadSeed
type Seed struct {
	Realms []SeedRealm `yaml:"realms"`
}

// SeedRealm is one realm and everything it owns
type SeedRealm struct {
	models.Realm `yaml:",inline"`
	Components   []models.Component `yaml:"components"`
	Users        []models.User      `yaml:"users"`
	Groups       []models.Group     `yaml:"groups"`
	Roles        []models.Role      `yaml:"roles"`
}

// LoadSeedFile reads a seed file into a new Memory directory
func LoadSeedFile(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	m := NewMemory()
	if err := m.LoadSeed(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return m, nil
}

// DecodeSeed parses a YAML seed, rejecting unknown fields, and stamps
// every child object with its realm id.
func DecodeSeed(r io.Reader) (*Seed, error) {
	var seed Seed
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed YAML: %w", err)
	}

	for i := range seed.Realms {
		realm := &seed.Realms[i]
		if realm.ID == "" {
			return nil, fmt.Errorf("seed realm %d: id is required", i)
		}
		for j := range realm.Components {
			realm.Components[j].RealmID = realm.ID
		}
		for j := range realm.Roles {
			realm.Roles[j].RealmID = realm.ID
		}
		for j := range realm.Groups {
			realm.Groups[j].RealmID = realm.ID
		}
		for j := range realm.Users {
			u := &realm.Users[j]
			if u.ID == "" || u.Username == "" {
				return nil, fmt.Errorf("seed realm %s: user %d needs id and username", realm.ID, j)
			}
			u.RealmID = realm.ID
		}
	}
	return &seed, nil
}

// LoadSeed decodes a YAML seed and adds its contents to m
func (m *Memory) LoadSeed(r io.Reader) error {
	seed, err := DecodeSeed(r)
	if err != nil {
		return err
	}

	for i := range seed.Realms {
		realm := &seed.Realms[i]
		m.PutRealm(&realm.Realm)
		for j := range realm.Components {
			m.PutComponent(&realm.Components[j])
		}
		for j := range realm.Roles {
			m.PutRole(&realm.Roles[j])
		}
		for j := range realm.Groups {
			m.PutGroup(&realm.Groups[j])
		}
		for j := range realm.Users {
			m.PutUser(&realm.Users[j])
		}
	}
	return nil
}
