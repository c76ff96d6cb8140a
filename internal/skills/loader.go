// Package skills loads markdown-based skill definitions from a workspace
// (and optionally a builtin) directory, exposing always-loaded full text
// and a progressive-discovery XML summary for the rest.
package skills

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

// Source identifies where a skill definition was found.
type Source string

const (
	SourceWorkspace Source = "workspace"
	SourceBuiltin   Source = "builtin"
)

// Info is the metadata parsed from a skill's YAML frontmatter.
type Info struct {
	Name                string
	Description         string
	Path                string
	Source              Source
	Always              bool
	Available           bool
	MissingRequirements []string
}

type requirements struct {
	Bins []string `json:"bins"`
	Env  []string `json:"env"`
}

type skillMetadata struct {
	Patina  *struct{ Requires requirements `json:"requires"` } `json:"patina"`
	Nanobot *struct{ Requires requirements `json:"requires"` } `json:"nanobot"`
}

var frontmatterRe = regexp.MustCompile(`(?s)^---\n(.*?)\n---`)

// Loader loads skills from a workspace directory and an optional builtin
// directory; workspace skills shadow builtin ones with the same name.
type Loader struct {
	workspaceSkills string
	builtinSkills   string
}

func NewLoader(workspace, builtin string) *Loader {
	return &Loader{
		workspaceSkills: filepath.Join(workspace, "skills"),
		builtinSkills:   builtin,
	}
}

// ListSkills returns metadata for every discoverable skill, workspace
// entries taking priority over identically named builtin ones.
func (l *Loader) ListSkills() []Info {
	var skills []Info
	seen := make(map[string]bool)

	if dirExists(l.workspaceSkills) {
		skills = l.scanDir(l.workspaceSkills, SourceWorkspace, skills)
		for _, s := range skills {
			seen[s.Name] = true
		}
	}

	if l.builtinSkills != "" && dirExists(l.builtinSkills) {
		var builtinOnly []Info
		builtinOnly = l.scanDir(l.builtinSkills, SourceBuiltin, builtinOnly)
		for _, s := range builtinOnly {
			if !seen[s.Name] {
				seen[s.Name] = true
				skills = append(skills, s)
			}
		}
	}
	return skills
}

// AlwaysSkills returns names of available skills marked always:true.
func (l *Loader) AlwaysSkills() []string {
	var names []string
	for _, s := range l.ListSkills() {
		if s.Always && s.Available {
			names = append(names, s.Name)
		}
	}
	return names
}

// LoadSkill returns a skill's raw SKILL.md content by name, checking the
// workspace before the builtin directory.
func (l *Loader) LoadSkill(name string) (string, bool) {
	wsPath := filepath.Join(l.workspaceSkills, name, "SKILL.md")
	if data, err := os.ReadFile(wsPath); err == nil {
		return string(data), true
	}
	if l.builtinSkills != "" {
		builtinPath := filepath.Join(l.builtinSkills, name, "SKILL.md")
		if data, err := os.ReadFile(builtinPath); err == nil {
			return string(data), true
		}
	}
	return "", false
}

// LoadSkillsForContext loads named skills' bodies (frontmatter stripped)
// for direct injection into the system prompt.
func (l *Loader) LoadSkillsForContext(names []string) string {
	var parts []string
	for _, name := range names {
		content, ok := l.LoadSkill(name)
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("### Skill: %s\n\n%s", name, stripFrontmatter(content)))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// BuildSkillsSummary renders an XML summary of every non-always skill,
// for progressive discovery via read_file.
func (l *Loader) BuildSkillsSummary() string {
	all := l.ListSkills()
	if len(all) == 0 {
		return ""
	}
	lines := []string{"<skills>"}
	for _, s := range all {
		if s.Always {
			continue
		}
		avail := "true"
		if !s.Available {
			avail = "false"
		}
		lines = append(lines, fmt.Sprintf(`  <skill available="%s">`, avail))
		lines = append(lines, fmt.Sprintf("    <name>%s</name>", xmlEscape(s.Name)))
		lines = append(lines, fmt.Sprintf("    <description>%s</description>", xmlEscape(s.Description)))
		lines = append(lines, fmt.Sprintf("    <location>%s</location>", s.Path))
		if len(s.MissingRequirements) > 0 {
			lines = append(lines, fmt.Sprintf("    <requires>%s</requires>", xmlEscape(strings.Join(s.MissingRequirements, ", "))))
		}
		lines = append(lines, "  </skill>")
	}
	lines = append(lines, "</skills>")
	return strings.Join(lines, "\n")
}

func (l *Loader) scanDir(dir string, source Source, out []Info) []Info {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return out
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		skillFile := filepath.Join(dir, e.Name(), "SKILL.md")
		data, err := os.ReadFile(skillFile)
		if err != nil {
			continue
		}
		content := string(data)
		meta := parseFrontmatter(content)
		available, missing := checkRequirements(meta)

		out = append(out, Info{
			Name:                e.Name(),
			Description:         meta["description"],
			Path:                skillFile,
			Source:              source,
			Always:              meta["always"] == "true",
			Available:           available,
			MissingRequirements: missing,
		})
	}
	return out
}

func parseFrontmatter(content string) map[string]string {
	meta := make(map[string]string)
	m := frontmatterRe.FindStringSubmatch(content)
	if m == nil {
		return meta
	}
	for _, line := range strings.Split(m[1], "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		meta[key] = value
	}
	return meta
}

func checkRequirements(meta map[string]string) (bool, []string) {
	raw, ok := meta["metadata"]
	if !ok {
		return true, nil
	}
	var parsed skillMetadata
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return true, nil
	}
	reqs := parsed.Patina
	if reqs == nil {
		reqs = parsed.Nanobot
	}
	if reqs == nil {
		return true, nil
	}

	var missing []string
	for _, bin := range reqs.Requires.Bins {
		if _, err := exec.LookPath(bin); err != nil {
			missing = append(missing, "CLI: "+bin)
		}
	}
	for _, env := range reqs.Requires.Env {
		if _, ok := os.LookupEnv(env); !ok {
			missing = append(missing, "ENV: "+env)
		}
	}
	return len(missing) == 0, missing
}

func stripFrontmatter(content string) string {
	loc := frontmatterRe.FindStringIndex(content)
	if loc == nil {
		return content
	}
	return strings.TrimLeft(content[loc[1]:], "\n \t")
}

func xmlEscape(s string) string {
	replacer := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return replacer.Replace(s)
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
