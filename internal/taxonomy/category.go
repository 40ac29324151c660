// Package taxonomy classifies raw build output and Go errors into a fixed
// Category x Severity taxonomy shared by every stage of the pipeline.
package taxonomy

import (
	"fmt"
	"strings"
)

// Category identifies the failure domain of a BuildError.
type Category int

const (
	// Unknown is used when no pattern or heuristic matched.
	Unknown Category = iota
	CompilationError
	PackageReference
	ProjectReference
	FrameworkCompatibility
	DockerBuild
	DatabaseConnectivity
	Authentication
	NetworkConnectivity
	EnvironmentConfiguration
	ConfigurationError
	RuntimeException
	// SystemError is reserved for faults of the validation logic itself.
	SystemError
)

var categoryNames = [...]string{
	Unknown:                  "Unknown",
	CompilationError:         "CompilationError",
	PackageReference:         "PackageReference",
	ProjectReference:         "ProjectReference",
	FrameworkCompatibility:   "FrameworkCompatibility",
	DockerBuild:              "DockerBuild",
	DatabaseConnectivity:     "DatabaseConnectivity",
	Authentication:           "Authentication",
	NetworkConnectivity:      "NetworkConnectivity",
	EnvironmentConfiguration: "EnvironmentConfiguration",
	ConfigurationError:       "ConfigurationError",
	RuntimeException:         "RuntimeException",
	SystemError:              "SystemError",
}

// String returns the category name.
func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return "Unknown"
	}
	return categoryNames[c]
}

// MarshalText encodes the category by name.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a category name.
func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCategory parses a category name case-insensitively.
func ParseCategory(s string) (Category, error) {
	for i, name := range categoryNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return Category(i), nil
		}
	}
	return Unknown, fmt.Errorf("unknown error category %q", s)
}

// Categories returns every category in declaration order.
func Categories() []Category {
	out := make([]Category, len(categoryNames))
	for i := range categoryNames {
		out[i] = Category(i)
	}
	return out
}
