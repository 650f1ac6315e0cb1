// Package proxy loads proxy credentials, resolves a selector against them and
// writes the selected credential where a plugin process can read it.
package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
)

// Record is a single proxy credential as stored in proxies.json.
type Record struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Address renders the record as "host:port".
func (r Record) Address() string {
	return r.Host + ":" + strconv.Itoa(r.Port)
}

// Label renders the record as shown in selection lists: "host:port (username)".
func (r Record) Label() string {
	return fmt.Sprintf("%s (%s)", r.Address(), r.Username)
}

// LoadAll reads the ordered proxy list at path.
// A missing file is not an error: proxy use is optional.
func LoadAll(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("failed to read proxies file: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal proxies file: %w", err)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// Pool is a proxy source bound to a file. It holds no records itself; every
// call reads the file again so edits between launches are picked up.
type Pool struct {
	path string
}

// NewPool creates a Pool reading from path.
func NewPool(path string) *Pool {
	return &Pool{path: path}
}

// Path returns the proxy source path.
func (p *Pool) Path() string {
	return p.path
}

// List loads the current proxy list.
func (p *Pool) List() ([]Record, error) {
	return LoadAll(p.path)
}

// Resolve loads the current proxy list and applies sel to it.
// ok is false when no proxy matches, which callers treat as "run without a proxy".
func (p *Pool) Resolve(sel Selector) (rec Record, ok bool, err error) {
	records, err := p.List()
	if err != nil {
		return Record{}, false, err
	}
	rec, ok = Select(records, sel)
	return rec, ok, nil
}
