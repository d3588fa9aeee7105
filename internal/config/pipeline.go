package config

import (
	"errors"
	"fmt"
	"strings"
)

// StageKind selects the action a stage runs.
type StageKind string

const (
	KindFind      StageKind = "find"
	KindMeta      StageKind = "meta"
	KindImport    StageKind = "import"
	KindTransform StageKind = "transform"
	KindCopy      StageKind = "copy"
)

// Copy targets.
const (
	TargetWork   = "work"
	TargetBackup = "backup"
	TargetHDD    = "hdd"
)

// Setting values with special meaning in the Copy mapping.
const (
	SettingDisabled = "False"
	SettingLater    = "Later"
)

// Stage describes one pipeline stage in the topology.
type Stage struct {
	Name    string    `toml:"name"`
	Kind    StageKind `toml:"kind"`
	Workers int       `toml:"workers"`
	// Enable names the Copy setting that gates the stage. Empty means the
	// stage is always active.
	Enable string   `toml:"enable"`
	Aims   []string `toml:"aims"`
	// Tool names the [tools.<name>] entry used by transform stages.
	Tool string `toml:"tool"`
	// Target is the copy target for copy stages (work, backup, hdd).
	Target string `toml:"target"`
	// TarBatch archives copied files into tar batches of this many members.
	TarBatch int `toml:"tar_batch"`
}

// Tool is a command template for an external program.
type Tool struct {
	Executable string   `toml:"executable"`
	Args       string   `toml:"args"`
	Outputs    []string `toml:"outputs"`
	Forward    []string `toml:"forward"`
	Shell      bool     `toml:"shell"`
	GPUs       []string `toml:"gpus"`
	SplitGPU   bool     `toml:"split_gpu"`
}

// Singleton reports whether the kind must run with exactly one worker.
func (k StageKind) Singleton() bool {
	return k == KindFind || k == KindMeta
}

func (k StageKind) valid() bool {
	switch k {
	case KindFind, KindMeta, KindImport, KindTransform, KindCopy:
		return true
	}
	return false
}

// StageByName returns the stage with the given name.
func (c *Config) StageByName(name string) (Stage, bool) {
	for _, stg := range c.Stages {
		if stg.Name == name {
			return stg, true
		}
	}
	return Stage{}, false
}

// StageEnabled reports whether the stage's enable setting is anything but
// "False". Stages without an enable setting are always on.
func (c *Config) StageEnabled(stg Stage) bool {
	if stg.Enable == "" {
		return true
	}
	return c.Copy[stg.Enable] != SettingDisabled
}

// StageDeferred reports whether the stage is switched to "Later".
func (c *Config) StageDeferred(stg Stage) bool {
	return stg.Enable != "" && c.Copy[stg.Enable] == SettingLater
}

// ValidatePipeline checks the stage topology. It does not evaluate aims;
// routing owns aim syntax and condition lookup.
func (c *Config) ValidatePipeline() error {
	if len(c.Stages) == 0 {
		return errors.New("stages: pipeline topology is empty")
	}
	seen := make(map[string]struct{}, len(c.Stages))
	for _, stg := range c.Stages {
		name := strings.TrimSpace(stg.Name)
		if name == "" {
			return errors.New("stages: every stage needs a name")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("stages: duplicate stage %q", name)
		}
		seen[name] = struct{}{}
		if !stg.Kind.valid() {
			return fmt.Errorf("stages.%s: unknown kind %q", name, stg.Kind)
		}
		if stg.Workers < 1 {
			return fmt.Errorf("stages.%s: workers must be at least 1", name)
		}
		if stg.Kind.Singleton() && stg.Workers != 1 {
			return fmt.Errorf("stages.%s: %s stages run exactly one worker, got %d", name, stg.Kind, stg.Workers)
		}
		switch stg.Kind {
		case KindTransform:
			if strings.TrimSpace(stg.Tool) == "" {
				return fmt.Errorf("stages.%s: transform stages need a tool", name)
			}
			if _, ok := c.Tools[stg.Tool]; !ok && c.StageEnabled(stg) {
				return fmt.Errorf("stages.%s: tool %q is not configured", name, stg.Tool)
			}
		case KindCopy:
			switch stg.Target {
			case TargetWork, TargetBackup, TargetHDD:
			default:
				return fmt.Errorf("stages.%s: unknown copy target %q", name, stg.Target)
			}
			if stg.TarBatch < 0 {
				return fmt.Errorf("stages.%s: tar_batch must not be negative", name)
			}
		}
		if stg.Enable != "" {
			if _, ok := c.Copy[stg.Enable]; !ok {
				return fmt.Errorf("stages.%s: enable setting %q missing from [copy]", name, stg.Enable)
			}
		}
	}
	return nil
}

// DefaultStages returns the standard cryo-EM pipeline topology.
func DefaultStages() []Stage {
	copyAims := []string{
		"Copy to work:Copy_work",
		"Copy to backup:Copy_backup",
		"Copy to hdd:Copy_hdd",
	}
	withCopies := func(aims ...string) []string {
		return append(aims, copyAims...)
	}
	return []Stage{
		{Name: "Find", Kind: KindFind, Workers: 1, Aims: []string{"Import"}},
		{Name: "Meta", Kind: KindMeta, Workers: 1, Enable: "Meta", Aims: copyAims},
		{Name: "Import", Kind: KindImport, Workers: 1, Aims: []string{
			"Motion:Motion",
			"Compress:Compress",
			"!Compress:Copy to work:Copy_work",
			"!Compress:Copy to backup:Copy_backup",
			"!Compress:Copy to hdd:Copy_hdd",
		}},
		{Name: "Motion", Kind: KindTransform, Workers: 1, Enable: "Motion", Tool: "motion", Aims: withCopies("CTF:CTF")},
		{Name: "CTF", Kind: KindTransform, Workers: 1, Enable: "CTF", Tool: "ctf", Aims: withCopies("Picking:Picking")},
		{Name: "Picking", Kind: KindTransform, Workers: 1, Enable: "Picking", Tool: "picking", Aims: withCopies()},
		{Name: "Compress", Kind: KindTransform, Workers: 1, Enable: "Compress", Tool: "compress", Aims: withCopies()},
		{Name: "Copy_work", Kind: KindCopy, Workers: 1, Enable: "Copy to work", Target: TargetWork},
		{Name: "Copy_backup", Kind: KindCopy, Workers: 1, Enable: "Copy to backup", Target: TargetBackup},
		{Name: "Copy_hdd", Kind: KindCopy, Workers: 1, Enable: "Copy to hdd", Target: TargetHDD, TarBatch: 0},
	}
}
