package domain

import (
	"sort"
	"strconv"
	"strings"
)

// Conn describes how to reach a legacy SQL Anywhere database. JSON names
// match the ODBC connection parameters stored on repo records.
type Conn struct {
	AutoStart   string `json:"astart,omitempty"`
	FilePath    string `json:"dbf,omitempty"`
	LogicalName string `json:"dbn,omitempty"`
	Driver      string `json:"driver,omitempty"`
	Host        string `json:"host,omitempty"`
	Password    string `json:"pwd,omitempty"`
	Server      string `json:"server,omitempty"`
	User        string `json:"uid,omitempty"`
	Port        *int   `json:"port,omitempty"`
}

// WithoutFilePath returns a copy of c that attaches to an already-running
// database by logical name instead of starting one from its file.
func (c Conn) WithoutFilePath() Conn {
	c.FilePath = ""
	return c
}

// ConnectionString renders c as an ODBC connection string. Keys are
// emitted in a fixed order and empty values are omitted.
func (c Conn) ConnectionString() string {
	params := map[string]string{
		"ASTART": c.AutoStart,
		"DBF":    c.FilePath,
		"DBN":    c.LogicalName,
		"HOST":   c.Host,
		"PWD":    c.Password,
		"SERVER": c.Server,
		"UID":    c.User,
	}
	if c.Port != nil {
		params["PORT"] = strconv.Itoa(*c.Port)
	}

	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+1)
	if c.Driver != "" {
		parts = append(parts, "DRIVER={"+c.Driver+"}")
	}
	for _, k := range keys {
		parts = append(parts, k+"="+params[k])
	}
	return strings.Join(parts, ";")
}
