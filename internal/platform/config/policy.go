package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	id "ghostpass/pkg/domain"
)

// VenuePolicy toggles door-side behaviour for one venue.
type VenuePolicy struct {
	Name           string `yaml:"name"`
	RequiresHealth bool   `yaml:"requires_health"`
}

// Policy maps stations to venues and venues to their door policy.
type Policy struct {
	venues   map[id.VenueID]VenuePolicy
	stations map[id.StationID]id.VenueID
}

type policyFile struct {
	Venues   map[string]VenuePolicy `yaml:"venues"`
	Stations map[string]string      `yaml:"stations"`
}

type stationKeysFile struct {
	Stations map[string]string `yaml:"stations"`
}

func EmptyPolicy() *Policy {
	return &Policy{
		venues:   map[id.VenueID]VenuePolicy{},
		stations: map[id.StationID]id.VenueID{},
	}
}

// LoadPolicy reads the venue/station policy YAML file.
//
//	venues:
//	  0b6e...: {name: Basement, requires_health: true}
//	stations:
//	  door-1: 0b6e...
func LoadPolicy(path string) (*Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicy(raw)
}

func ParsePolicy(raw []byte) (*Policy, error) {
	var file policyFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}

	p := EmptyPolicy()
	for rawID, venue := range file.Venues {
		venueID, err := id.ParseVenueID(rawID)
		if err != nil {
			return nil, fmt.Errorf("policy venue %q: %w", rawID, err)
		}
		p.venues[venueID] = venue
	}
	for rawStation, rawVenue := range file.Stations {
		station, err := id.ParseStationID(rawStation)
		if err != nil {
			return nil, fmt.Errorf("policy station %q: %w", rawStation, err)
		}
		venueID, err := id.ParseVenueID(rawVenue)
		if err != nil {
			return nil, fmt.Errorf("policy station %q venue: %w", rawStation, err)
		}
		if _, ok := p.venues[venueID]; !ok {
			return nil, fmt.Errorf("policy station %q references unknown venue %s", rawStation, venueID)
		}
		p.stations[station] = venueID
	}
	return p, nil
}

// StationVenue returns the venue a station belongs to.
func (p *Policy) StationVenue(station id.StationID) (id.VenueID, bool) {
	v, ok := p.stations[station]
	return v, ok
}

// RequiresHealth reports whether scans at the station's venue need the health flag.
// Stations with no venue never require it.
func (p *Policy) RequiresHealth(station id.StationID) bool {
	venueID, ok := p.stations[station]
	if !ok {
		return false
	}
	return p.venues[venueID].RequiresHealth
}

// LoadStationKeys reads the bcrypt hashes of door terminal keys.
//
//	stations:
//	  door-1: $2a$10$...
func LoadStationKeys(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read station keys file: %w", err)
	}
	var file stationKeysFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse station keys file: %w", err)
	}
	for station := range file.Stations {
		if _, err := id.ParseStationID(station); err != nil {
			return nil, fmt.Errorf("station keys %q: %w", station, err)
		}
	}
	return file.Stations, nil
}
