package types

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML decodes arbitrary routes/settings trees and stores them as JSON
func (p *ProxySettings) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Image    string      `yaml:"image"`
		Routes   interface{} `yaml:"routes"`
		Settings interface{} `yaml:"settings"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	p.Image = raw.Image
	var err error
	if p.Routes, err = toJSON(raw.Routes); err != nil {
		return fmt.Errorf("proxy routes: %w", err)
	}
	if p.Settings, err = toJSON(raw.Settings); err != nil {
		return fmt.Errorf("proxy settings: %w", err)
	}
	return nil
}

func toJSON(v interface{}) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}
