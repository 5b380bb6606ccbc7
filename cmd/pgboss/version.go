package main

import (
	"encoding/json"

	// Packages
	version "github.com/timgit/pg-boss-sub002/pkg/version"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// buildInfo is printed by --version. Linker values which were not set are
// omitted.
type buildInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Compiler  string `json:"compiler"`
	Source    string `json:"source,omitempty"`
	Branch    string `json:"branch,omitempty"`
	Hash      string `json:"hash,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
}

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func VersionJSON() string {
	data, err := json.MarshalIndent(buildInfo{
		Name:      version.ExecName(),
		Version:   version.Version(),
		Compiler:  version.Compiler(),
		Source:    version.GitSource,
		Branch:    version.GitBranch,
		Hash:      version.GitHash,
		BuildTime: version.GoBuildTime,
	}, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}
