package sample

import (
	"bytes"
	"fmt"
	"path/filepath"
	"text/template"
)

// DefaultCheckpoint is the checkpoint label outputs belong to unless set.
const DefaultCheckpoint = "main"

// Output is a file to be copied to a destination once the run finishes.
type Output struct {
	Src        string `json:"src"`
	Dst        string `json:"dst"`
	Optional   bool   `json:"optional,omitempty"`
	Checkpoint string `json:"checkpoint,omitempty"`
}

func (o Output) same(other Output) bool {
	return o.Src == other.Src && o.Dst == other.Dst
}

// OutputGlob declares outputs by pattern. Pattern, DstDir, and DstName are
// Go templates evaluated per sample with GlobData. A relative pattern is
// resolved against the context workdir; a relative DstDir against the
// result directory. DstName is ignored when the pattern matches more than
// one file.
type OutputGlob struct {
	Pattern    string `json:"pattern"`
	DstDir     string `json:"dst_dir,omitempty"`
	DstName    string `json:"dst_name,omitempty"`
	Optional   bool   `json:"optional,omitempty"`
	Checkpoint string `json:"checkpoint,omitempty"`
}

func (g OutputGlob) same(other OutputGlob) bool {
	return g.Pattern == other.Pattern && g.DstDir == other.DstDir && g.DstName == other.DstName
}

// GlobData is the template data available to output patterns.
type GlobData struct {
	Sample  *Sample
	Samples *Samples
	Workdir string
	Config  any
}

// Resolve expands the pattern for every sample. Warnings describe patterns
// that matched nothing (unless optional) and ignored destination names.
func (g OutputGlob) Resolve(samples *Samples, workdir, resultDir string, cfg any) ([]Output, []string, error) {
	var (
		outputs  []Output
		warnings []string
	)
	checkpoint := g.Checkpoint
	if checkpoint == "" {
		checkpoint = DefaultCheckpoint
	}
	for _, item := range samples.Items {
		data := GlobData{Sample: item, Samples: samples, Workdir: workdir, Config: cfg}

		pattern, err := render(g.Pattern, data)
		if err != nil {
			return nil, nil, fmt.Errorf("output pattern %q: %w", g.Pattern, err)
		}
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(workdir, pattern)
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, nil, fmt.Errorf("output pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 && !g.Optional {
			warnings = append(warnings, fmt.Sprintf("no files matched pattern %q", pattern))
		}

		dstDir := resultDir
		if g.DstDir != "" {
			rendered, err := render(g.DstDir, data)
			if err != nil {
				return nil, nil, fmt.Errorf("output destination %q: %w", g.DstDir, err)
			}
			if filepath.IsAbs(rendered) {
				dstDir = rendered
			} else {
				dstDir = filepath.Join(resultDir, rendered)
			}
		}

		multiple := len(matches) > 1
		if g.DstName != "" && multiple {
			warnings = append(warnings, fmt.Sprintf("destination name %q ignored: %q matches %d files", g.DstName, g.Pattern, len(matches)))
		}
		for _, match := range matches {
			name := filepath.Base(match)
			if g.DstName != "" && !multiple {
				rendered, err := render(g.DstName, data)
				if err != nil {
					return nil, nil, fmt.Errorf("output name %q: %w", g.DstName, err)
				}
				name = rendered
			}
			out := Output{
				Src:        match,
				Dst:        filepath.Join(dstDir, name),
				Optional:   g.Optional,
				Checkpoint: checkpoint,
			}
			if !containsOutput(outputs, out) {
				outputs = append(outputs, out)
			}
		}
	}
	return outputs, warnings, nil
}

// ResolveGlobs expands every pattern of the collection into concrete outputs
// and clears the patterns.
func (s *Samples) ResolveGlobs(workdir, resultDir string, cfg any) ([]string, error) {
	var warnings []string
	for _, g := range s.Globs {
		outputs, warn, err := g.Resolve(s, workdir, resultDir, cfg)
		if err != nil {
			return warnings, err
		}
		warnings = append(warnings, warn...)
		s.AddOutput(outputs...)
	}
	s.Globs = nil
	return warnings, nil
}

func containsOutput(outputs []Output, out Output) bool {
	for _, existing := range outputs {
		if existing.same(out) {
			return true
		}
	}
	return false
}

func render(text string, data GlobData) (string, error) {
	tmpl, err := template.New("output").Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
