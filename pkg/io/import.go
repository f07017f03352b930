package io

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/matzehuels/gridrisk/pkg/errors"
	"github.com/matzehuels/gridrisk/pkg/topology"
)

// ReadAssets decodes a normalized asset document from r.
//
// Every line class must be a known [topology.AssetClass]. ReadAssets does not
// close r.
func ReadAssets(r io.Reader) (topology.Assets, error) {
	var a topology.Assets
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&a); err != nil {
		return a, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode assets")
	}
	for class := range a.Lines {
		if !knownClass(class) {
			return a, errors.New(errors.ErrCodeInvalidAsset, "unknown line class %q", class)
		}
	}
	return a, nil
}

func knownClass(c topology.AssetClass) bool {
	switch c {
	case topology.ClassHTLine, topology.ClassHTCable, topology.ClassLTLine, topology.ClassLTCable:
		return true
	}
	return false
}

// ImportAssets reads the asset file at path.
func ImportAssets(path string) (topology.Assets, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return topology.Assets{}, errors.New(errors.ErrCodeFileNotFound, "asset file %s not found", path)
	}
	if err != nil {
		return topology.Assets{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return ReadAssets(f)
}
