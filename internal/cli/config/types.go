// Package config loads nodecheck settings from defaults, nodecheck.yaml,
// NODECHECK_* environment variables and command-line flags.
package config

// Default values for configuration keys.
const (
	DefaultRegistry      = "registry/nodes.yaml"
	DefaultMechanismsDir = "mechanisms"
	DefaultFailOn        = "ghost"
	DefaultOutput        = "auto"
	DefaultParallelism   = 4
)

// File names searched for when no --config is given.
var configFileNames = []string{"nodecheck.yaml", "nodecheck.yml"}

// Config holds all CLI configuration options.
type Config struct {
	// ProjectRoot is the directory relative paths resolve against.
	ProjectRoot string `koanf:"-"`

	Registry      string `koanf:"registry"`
	MechanismsDir string `koanf:"mechanisms_dir"`
	// FailOn is the lowest severity that makes check exit non-zero.
	FailOn        string   `koanf:"fail_on"`
	IgnoreOrphans []string `koanf:"ignore_orphans"`
	Output        string   `koanf:"output"`
	Parallelism   int      `koanf:"parallelism"`
	// StatePath enables the audit store when set.
	StatePath string `koanf:"state_path"`
	Verbose   bool   `koanf:"verbose"`
}

// Default returns a Config populated with defaults, rooted at dir.
func Default(dir string) *Config {
	return &Config{
		ProjectRoot:   dir,
		Registry:      resolvePathRelativeTo(DefaultRegistry, dir),
		MechanismsDir: resolvePathRelativeTo(DefaultMechanismsDir, dir),
		FailOn:        DefaultFailOn,
		Output:        DefaultOutput,
		Parallelism:   DefaultParallelism,
	}
}
