package workflow

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"maps"
	"slices"
)

type configuration struct {
	XMLName    xml.Name   `xml:"configuration"`
	Properties []property `xml:"property"`
}

type property struct {
	Name  string `xml:"name"`
	Value string `xml:"value"`
}

// encodeConf renders conf as a Hadoop configuration document with keys sorted.
func encodeConf(conf map[string]string) ([]byte, error) {
	c := configuration{}
	for _, k := range slices.Sorted(maps.Keys(conf)) {
		c.Properties = append(c.Properties, property{Name: k, Value: conf[k]})
	}
	body, err := xml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode configuration: %w", err)
	}
	return body, nil
}

// decodeConf parses a Hadoop configuration document. An empty document is an
// empty map.
func decodeConf(raw string) (map[string]string, error) {
	conf := map[string]string{}
	if len(bytes.TrimSpace([]byte(raw))) == 0 {
		return conf, nil
	}
	var c configuration
	if err := xml.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	for _, p := range c.Properties {
		conf[p.Name] = p.Value
	}
	return conf, nil
}
