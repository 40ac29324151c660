package taxonomy

var resolutionHints = map[Category]string{
	Unknown:                  "Inspect the full build log; no automated strategy applies to unclassified errors.",
	CompilationError:         "Clean build caches and rebuild; fix reported source errors if the rebuild still fails.",
	PackageReference:         "Tidy and re-download module requirements; align conflicting versions to a single release.",
	ProjectReference:         "Check local replace/reference paths and break dependency cycles between projects.",
	FrameworkCompatibility:   "Align the toolchain version with the version required by the project manifest.",
	DockerBuild:              "Review the Dockerfile and build context; pin base images and keep COPY sources context-relative.",
	DatabaseConnectivity:     "Verify the database is reachable and the connection settings are correct; requires operator action.",
	Authentication:           "Refresh credentials or tokens and verify the identity provider configuration.",
	NetworkConnectivity:      "Check DNS, proxies and firewall rules, then retry the affected endpoint.",
	EnvironmentConfiguration: "Define the missing environment variables or fix file permissions and paths.",
	ConfigurationError:       "Validate configuration files against the expected schema and correct invalid settings.",
	RuntimeException:         "Reproduce with logging enabled and fix the failing code path.",
	SystemError:              "The validation pipeline itself failed; re-run with debug logging and report the fault.",
}

// ResolutionHint returns the informational resolution hint for a category.
func ResolutionHint(c Category) string {
	if hint, ok := resolutionHints[c]; ok {
		return hint
	}
	return resolutionHints[Unknown]
}
