// Package profile describes how one gridded product is ingested: which
// variables are tracked, which missing-value policy applies, where basins
// come from and how the resulting documents are labelled.
package profile

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/couchcryptid/grid-basin-etl/internal/domain"
)

//go:embed profiles/*.yaml
var embedded embed.FS

// Mode selects the missing-value policy.
type Mode string

const (
	ModeJointNaN     Mode = "joint_nan"
	ModeQualityGated Mode = "quality_gated"
)

// Profile is the YAML dataset description.
type Profile struct {
	ID           string      `yaml:"id"`
	DataType     string      `yaml:"data_type"`
	Mode         Mode        `yaml:"mode"`
	Dimensions   Dimensions  `yaml:"dimensions"`
	Variables    []Variable  `yaml:"variables"`
	Attributes   []string    `yaml:"attributes"`
	MetadataKeys []string    `yaml:"metadata_keys"`
	Collections  Collections `yaml:"collections"`
	Quality      *Quality    `yaml:"quality"`
	Basin        Basin       `yaml:"basin"`
	Source       []Source    `yaml:"source"`
}

// Dimensions names the coordinate variables in the source file.
type Dimensions struct {
	Latitude  string `yaml:"latitude"`
	Longitude string `yaml:"longitude"`
	Time      string `yaml:"time"`
}

// Variable is one tracked variable. Count names its observation-count
// companion for quality-gated ingests.
type Variable struct {
	Name     string            `yaml:"name"`
	Count    string            `yaml:"count"`
	Defaults map[string]string `yaml:"defaults"`
}

// Collections names where records and metadata land in the store.
type Collections struct {
	Records  string `yaml:"records"`
	Metadata string `yaml:"metadata"`
}

// Quality holds the aggregate-mode gate constants.
type Quality struct {
	Sentinel  float64 `yaml:"sentinel"`
	FullCount int     `yaml:"full_count"`
}

// Basin locates the classification variable and its grid origin.
type Basin struct {
	Variable  string   `yaml:"variable"`
	LonOrigin *float64 `yaml:"lon_origin"`
	LatOrigin *float64 `yaml:"lat_origin"`
}

// Source is a citation entry.
type Source struct {
	Source []string `yaml:"source"`
	URL    string   `yaml:"url"`
}

// Names lists the embedded profiles.
func Names() []string {
	entries, err := embedded.ReadDir("profiles")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	return names
}

// Load resolves nameOrPath as a YAML file on disk, falling back to an
// embedded profile of that name.
func Load(nameOrPath string) (*Profile, error) {
	data, err := os.ReadFile(nameOrPath)
	if errors.Is(err, os.ErrNotExist) {
		data, err = embedded.ReadFile("profiles/" + nameOrPath + ".yaml")
		if err != nil {
			return nil, fmt.Errorf("profile %q: not a file and not one of %v", nameOrPath, Names())
		}
	} else if err != nil {
		return nil, fmt.Errorf("read profile %q: %w", nameOrPath, err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates a profile.
func Parse(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	p.applyDefaults()
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Profile) applyDefaults() {
	if p.Dimensions.Latitude == "" {
		p.Dimensions.Latitude = "latitude"
	}
	if p.Dimensions.Longitude == "" {
		p.Dimensions.Longitude = "longitude"
	}
	if p.Dimensions.Time == "" {
		p.Dimensions.Time = "time"
	}
	if len(p.MetadataKeys) == 0 && p.ID != "" {
		p.MetadataKeys = []string{p.ID}
	}
	if p.Collections.Records == "" {
		p.Collections.Records = p.ID
	}
	if p.Collections.Metadata == "" {
		p.Collections.Metadata = p.ID + "Meta"
	}
	if p.Basin.Variable == "" {
		p.Basin.Variable = "BASIN_TAG"
	}
	if p.Basin.LonOrigin == nil {
		v := domain.DefaultBasinLonOrigin
		p.Basin.LonOrigin = &v
	}
	if p.Basin.LatOrigin == nil {
		v := domain.DefaultBasinLatOrigin
		p.Basin.LatOrigin = &v
	}
}

func (p *Profile) validate() error {
	if p.ID == "" {
		return errors.New("profile: id is required")
	}
	if len(p.Variables) == 0 {
		return fmt.Errorf("profile %s: at least one variable is required", p.ID)
	}
	seen := make(map[string]bool, len(p.Variables))
	for _, v := range p.Variables {
		if v.Name == "" {
			return fmt.Errorf("profile %s: variable without a name", p.ID)
		}
		if seen[v.Name] {
			return fmt.Errorf("profile %s: variable %s listed twice", p.ID, v.Name)
		}
		seen[v.Name] = true
	}

	switch p.Mode {
	case ModeJointNaN:
		if p.Quality != nil {
			return fmt.Errorf("profile %s: quality block is only valid for mode %s", p.ID, ModeQualityGated)
		}
	case ModeQualityGated:
		if p.Quality == nil {
			return fmt.Errorf("profile %s: mode %s needs a quality block", p.ID, ModeQualityGated)
		}
		if p.Quality.FullCount <= 0 {
			return fmt.Errorf("profile %s: quality.full_count must be positive", p.ID)
		}
		for _, v := range p.Variables {
			if v.Count == "" {
				return fmt.Errorf("profile %s: variable %s needs a count variable", p.ID, v.Name)
			}
		}
	default:
		return fmt.Errorf("profile %s: unknown mode %q", p.ID, p.Mode)
	}
	return nil
}

// Policy builds the missing-value policy for the profile's mode.
func (p *Profile) Policy() domain.MissingValuePolicy {
	if p.Mode == ModeQualityGated {
		return domain.NewQualityGatedPolicy(p.Quality.Sentinel, p.Quality.FullCount)
	}
	return domain.JointNaNPolicy{}
}

// VariableNames returns the tracked variables in output order.
func (p *Profile) VariableNames() []string {
	names := make([]string, len(p.Variables))
	for i, v := range p.Variables {
		names[i] = v.Name
	}
	return names
}

// CountNames returns the count companions aligned with VariableNames, or nil
// when the mode does not use them.
func (p *Profile) CountNames() []string {
	if p.Mode != ModeQualityGated {
		return nil
	}
	names := make([]string, len(p.Variables))
	for i, v := range p.Variables {
		names[i] = v.Count
	}
	return names
}

// SourceDocs converts the citations for the metadata document.
func (p *Profile) SourceDocs() []domain.SourceDoc {
	docs := make([]domain.SourceDoc, len(p.Source))
	for i, s := range p.Source {
		docs[i] = domain.SourceDoc{Source: s.Source, URL: s.URL}
	}
	return docs
}
