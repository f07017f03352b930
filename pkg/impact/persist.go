package impact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/matzehuels/gridrisk/pkg/errors"
)

// File names of the persisted index, one per category plus the customer list.
const (
	LineFile        = "line_cust_down.json"
	TransformerFile = "transformer_cust_down.json"
	NodeFile        = "node_cust_down.json"
	CustomerFile    = "customers.json"
)

type customerFile struct {
	Source    string   `json:"source"`
	Customers []string `json:"customers"`
}

func (x *Index) files() map[string]any {
	return map[string]any{
		LineFile:        x.Lines,
		TransformerFile: x.Transformers,
		NodeFile:        x.Nodes,
		CustomerFile:    customerFile{Source: x.Source, Customers: x.Customers},
	}
}

// Save writes the index to dir as one JSON file per category. The directory
// is created if needed.
func (x *Index) Save(dir string) error {
	if err := errors.ValidatePath(dir); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPath, err, "create index directory %s", dir)
	}
	for name, v := range x.files() {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal %s: %w", name, err)
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidPath, err, "write %s", path)
		}
	}
	return nil
}

// Load reads an index written by [Index.Save]. Every category file must be
// present.
func Load(dir string) (*Index, error) {
	x := newIndex()
	var cust customerFile
	targets := []struct {
		name string
		v    any
	}{
		{LineFile, &x.Lines},
		{TransformerFile, &x.Transformers},
		{NodeFile, &x.Nodes},
		{CustomerFile, &cust},
	}
	for _, t := range targets {
		path := filepath.Join(dir, t.name)
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			return nil, errors.New(errors.ErrCodeFileNotFound, "impact index file %s not found", path)
		}
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "read %s", path)
		}
		if err := json.Unmarshal(data, t.v); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode %s", path)
		}
	}
	x.Source, x.Customers = cust.Source, cust.Customers
	x.ensureMaps()
	return x, nil
}

// Marshal encodes the whole index as one JSON document for caching.
func (x *Index) Marshal() ([]byte, error) {
	return json.Marshal(x)
}

// Unmarshal decodes a document produced by [Index.Marshal].
func Unmarshal(data []byte) (*Index, error) {
	x := newIndex()
	if err := json.Unmarshal(data, x); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode impact index")
	}
	x.ensureMaps()
	return x, nil
}

// ensureMaps replaces maps decoded from JSON null with empty ones.
func (x *Index) ensureMaps() {
	if x.Lines == nil {
		x.Lines = make(map[string][]string)
	}
	if x.Transformers == nil {
		x.Transformers = make(map[string][]string)
	}
	if x.Nodes == nil {
		x.Nodes = make(map[string][]string)
	}
	if x.Customers == nil {
		x.Customers = []string{}
	}
}
