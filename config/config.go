// Package config reads stabilizer options from YAML files. A file only
// needs the keys it changes; everything else keeps the defaults of
// vidstab.NewOptions.
//
// Example:
//
//	motion:
//	  detector: fast
//	  tracking:
//	    radius: 15
//	path:
//	  model: similarity
//	  salient:
//	    enabled: true
//	    mode: anchored
//	crop_box:
//	  ratio: 0.75
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/opd-ai/vidstab"
)

// Configuration errors.
var (
	// ErrRead indicates the file could not be read.
	ErrRead = errors.New("failed to read config file")

	// ErrParse indicates malformed YAML or an unknown key.
	ErrParse = errors.New("failed to parse config")
)

// Load reads path and overlays it onto the default options. The result is
// validated.
func Load(path string) (*vidstab.Options, error) {
	logrus.WithFields(logrus.Fields{
		"function": "config.Load",
		"path":     path,
	}).Debug("Loading configuration")

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode overlays the YAML document in r onto the default options. An
// empty document yields the defaults.
func Decode(r io.Reader) (*vidstab.Options, error) {
	opts := vidstab.NewOptions()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(opts); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return opts, nil
}

// Write encodes opts as a complete YAML document, suitable as a starting
// point for a config file.
func Write(w io.Writer, opts *vidstab.Options) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(opts); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}
