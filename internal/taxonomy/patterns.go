package taxonomy

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"
)

// Pattern maps a lower-case substring to a category.
type Pattern struct {
	Match    string   `yaml:"match"`
	Category Category `yaml:"category"`
}

// DefaultPatterns is the built-in pattern table. Order here does not matter:
// NewClassifier sorts patterns longest-first.
func DefaultPatterns() []Pattern {
	return []Pattern{
		// Package references
		{"version conflict", PackageReference},
		{"package downgrade", PackageReference},
		{"unable to find package", PackageReference},
		{"package restore failed", PackageReference},
		{"missing go.sum entry", PackageReference},
		{"no required module provides package", PackageReference},
		{"cannot find module providing package", PackageReference},
		{"unknown revision", PackageReference},
		{"checksum mismatch", PackageReference},
		{"nu1101", PackageReference},
		{"nu1102", PackageReference},
		{"nu1605", PackageReference},

		// Project references
		{"circular dependency", ProjectReference},
		{"import cycle not allowed", ProjectReference},
		{"project reference", ProjectReference},
		{"referenced project", ProjectReference},
		{"missing assembly", ProjectReference},
		{"replacement directory", ProjectReference},

		// Compilation
		{"syntax error", CompilationError},
		{"undefined:", CompilationError},
		{"cannot use", CompilationError},
		{"declared and not used", CompilationError},
		{"imported and not used", CompilationError},
		{"missing return", CompilationError},
		{"too many arguments", CompilationError},
		{"not enough arguments", CompilationError},
		{"compilation failed", CompilationError},
		{"build failed", CompilationError},
		{"cs1002", CompilationError},

		// Framework / toolchain compatibility
		{"requires go >=", FrameworkCompatibility},
		{"target framework", FrameworkCompatibility},
		{"unsupported framework", FrameworkCompatibility},
		{"incompatible framework", FrameworkCompatibility},
		{"toolchain not available", FrameworkCompatibility},
		{"netsdk1045", FrameworkCompatibility},

		// Containers
		{"dockerfile", DockerBuild},
		{"docker build", DockerBuild},
		{"failed to solve", DockerBuild},
		{"docker daemon", DockerBuild},
		{"pull access denied", DockerBuild},

		// Database
		{"database", DatabaseConnectivity},
		{"connection string", DatabaseConnectivity},
		{"sqlstate", DatabaseConnectivity},
		{"could not connect to server", DatabaseConnectivity},

		// Authentication
		{"unauthorized", Authentication},
		{"authentication failed", Authentication},
		{"invalid credentials", Authentication},
		{"access token", Authentication},
		{"token expired", Authentication},
		{"forbidden", Authentication},

		// Network
		{"connection refused", NetworkConnectivity},
		{"network timeout", NetworkConnectivity},
		{"i/o timeout", NetworkConnectivity},
		{"no such host", NetworkConnectivity},
		{"connection reset", NetworkConnectivity},
		{"network is unreachable", NetworkConnectivity},
		{"tls handshake", NetworkConnectivity},
		{"timed out", NetworkConnectivity},

		// Environment
		{"environment variable", EnvironmentConfiguration},
		{"executable file not found", EnvironmentConfiguration},
		{"permission denied", EnvironmentConfiguration},
		{"certificate", EnvironmentConfiguration},
		{"is not set", EnvironmentConfiguration},

		// Configuration
		{"configuration", ConfigurationError},
		{"invalid setting", ConfigurationError},
		{"appsettings", ConfigurationError},

		// Runtime
		{"panic:", RuntimeException},
		{"nil pointer dereference", RuntimeException},
		{"index out of range", RuntimeException},
		{"unhandled exception", RuntimeException},

		// System
		{"out of memory", SystemError},
		{"no space left on device", SystemError},
		{"too many open files", SystemError},
	}
}

type patternFile struct {
	Patterns []Pattern `yaml:"patterns"`
}

// LoadPatterns reads additional patterns from a YAML file of the form:
//
//	patterns:
//	  - match: "rate limit exceeded"
//	    category: NetworkConnectivity
func LoadPatterns(path string) ([]Pattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pattern file: %w", err)
	}

	var file patternFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse pattern file %s: %w", path, err)
	}

	for i, p := range file.Patterns {
		if p.Match == "" {
			return nil, fmt.Errorf("pattern %d in %s has empty match", i, path)
		}
	}
	return file.Patterns, nil
}
