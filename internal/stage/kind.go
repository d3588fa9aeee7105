package stage

import "transphire/internal/config"

// Kind selects the action family a stage runs.
type Kind int

const (
	KindFind Kind = iota
	KindMeta
	KindImport
	KindTransform
	KindCopy
)

func (k Kind) String() string {
	switch k {
	case KindFind:
		return "find"
	case KindMeta:
		return "meta"
	case KindImport:
		return "import"
	case KindTransform:
		return "transform"
	case KindCopy:
		return "copy"
	default:
		return "unknown"
	}
}

// KindFromConfig maps the configured kind onto the enum.
func KindFromConfig(kind config.StageKind) (Kind, bool) {
	switch kind {
	case config.KindFind:
		return KindFind, true
	case config.KindMeta:
		return KindMeta, true
	case config.KindImport:
		return KindImport, true
	case config.KindTransform:
		return KindTransform, true
	case config.KindCopy:
		return KindCopy, true
	}
	return 0, false
}

// Dependency is a storage location a stage needs to be reachable.
type Dependency int

const (
	DepNone Dependency = iota
	DepInputMeta
	DepInputFrames
	DepProject
	DepScratch
	DepWork
	DepBackup
	DepHDD
)

func (d Dependency) String() string {
	switch d {
	case DepInputMeta:
		return "input_meta"
	case DepInputFrames:
		return "input_frames"
	case DepProject:
		return "project"
	case DepScratch:
		return "scratch"
	case DepWork:
		return "work"
	case DepBackup:
		return "backup"
	case DepHDD:
		return "hdd"
	default:
		return "none"
	}
}

// TargetDependency returns the dependency for a copy target name.
func TargetDependency(target string) Dependency {
	switch target {
	case config.TargetWork:
		return DepWork
	case config.TargetBackup:
		return DepBackup
	case config.TargetHDD:
		return DepHDD
	default:
		return DepNone
	}
}
