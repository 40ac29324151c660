package dockerdiag

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"go.yaml.in/yaml/v3"
)

// ComposeFileNames are recognised compose file names.
var ComposeFileNames = []string{"compose.yaml", "compose.yml", "docker-compose.yaml", "docker-compose.yml"}

type composeFile struct {
	Services map[string]composeService `yaml:"services"`
}

type composeService struct {
	Image string       `yaml:"image"`
	Build composeBuild `yaml:"build"`
}

// composeBuild accepts both the short form (a context path) and the long
// form (a mapping).
type composeBuild struct {
	Context    string `yaml:"context"`
	Dockerfile string `yaml:"dockerfile"`
}

func (b *composeBuild) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		b.Context = node.Value
		return nil
	}
	type plain composeBuild
	return node.Decode((*plain)(b))
}

// AnalyzeCompose checks that every service in a compose file has an image or
// a build context, and that build contexts and Dockerfiles exist.
func AnalyzeCompose(path string) ([]Issue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read compose file: %w", err)
	}

	var file composeFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return []Issue{{Kind: KindError, Stage: StageCompose, Message: "compose file is not valid YAML", Subject: err.Error()}}, nil
	}
	if len(file.Services) == 0 {
		return []Issue{{Kind: KindWarning, Stage: StageCompose, Message: "compose file defines no services"}}, nil
	}

	names := make([]string, 0, len(file.Services))
	for name := range file.Services {
		names = append(names, name)
	}
	slices.Sort(names)

	base := filepath.Dir(path)
	var issues []Issue
	for _, name := range names {
		svc := file.Services[name]
		if svc.Build.Context == "" {
			if svc.Image == "" {
				issues = append(issues, Issue{Kind: KindError, Stage: StageCompose, Message: "service has neither image nor build", Subject: name})
			}
			continue
		}

		ctxDir := svc.Build.Context
		if !filepath.IsAbs(ctxDir) {
			ctxDir = filepath.Join(base, ctxDir)
		}
		if info, err := os.Stat(ctxDir); err != nil || !info.IsDir() {
			issues = append(issues, Issue{Kind: KindError, Stage: StageCompose, Message: "service build context does not exist", Subject: name + ": " + svc.Build.Context})
			continue
		}

		dockerfile := svc.Build.Dockerfile
		if dockerfile == "" {
			dockerfile = "Dockerfile"
		}
		if _, err := os.Stat(filepath.Join(ctxDir, dockerfile)); err != nil {
			issues = append(issues, Issue{Kind: KindError, Stage: StageCompose, Message: "service Dockerfile does not exist", Subject: name + ": " + dockerfile})
		}
	}
	return issues, nil
}
