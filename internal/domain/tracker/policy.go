package tracker

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/shared/types"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
)

// PolicyProperty is the property key that makes the policy tracker reload
const PolicyProperty = "bg_policy"

// PolicyName is the registry name of the policy tracker
const PolicyName = "policy"

// Rule proposes Level for packages matching Package. An empty Users list
// applies the rule to every user.
type Rule struct {
	Package string `yaml:"package" toml:"package" json:"package"`
	Level   string `yaml:"level" toml:"level" json:"level"`
	Users   []int  `yaml:"users,omitempty" toml:"users,omitempty" json:"users,omitempty"`
}

// PolicyFile is the on-disk layout of a policy file, in YAML or TOML
type PolicyFile struct {
	Rules []Rule `yaml:"rules" toml:"rules"`
}

type compiledRule struct {
	Rule
	level  types.RestrictionLevel
	source string
}

func (r compiledRule) matches(uid int, pkg string) bool {
	if len(r.Users) > 0 {
		found := false
		userID := types.UserID(uid)
		for _, u := range r.Users {
			if u == userID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	ok, _ := doublestar.Match(r.Package, pkg)
	return ok
}

// PolicyTracker proposes levels from operator-written policy files. Files
// matching the glob load in lexical order and later rules override earlier
// ones.
type PolicyTracker struct {
	Base

	glob   string
	logger *logging.Logger

	mu       sync.RWMutex
	rules    []compiledRule // Protected by mu
	files    []string       // Protected by mu
	onReload func()         // Protected by mu
}

// NewPolicyTracker creates a tracker for files matching glob. Nothing is
// read until Load or OnSystemReady.
func NewPolicyTracker(glob string, logger *logging.Logger) *PolicyTracker {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &PolicyTracker{
		glob:   glob,
		logger: logger.Named("policy"),
	}
}

// OnReload sets a callback run after every successful load triggered by
// system readiness or a property change
func (p *PolicyTracker) OnReload(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onReload = fn
}

// Name implements Tracker
func (p *PolicyTracker) Name() string {
	return PolicyName
}

// Glob returns the file pattern the tracker loads
func (p *PolicyTracker) Glob() string {
	return p.glob
}

// Load reads every policy file. On error the previous rules stay in force.
func (p *PolicyTracker) Load() error {
	if p.glob == "" {
		return nil
	}

	files, err := doublestar.FilepathGlob(p.glob)
	if err != nil {
		return fmt.Errorf("glob policy files %q: %w", p.glob, err)
	}
	sort.Strings(files)

	var rules []compiledRule
	for _, path := range files {
		loaded, err := loadPolicyFile(path)
		if err != nil {
			return err
		}
		rules = append(rules, loaded...)
	}

	p.mu.Lock()
	p.rules = rules
	p.files = files
	p.mu.Unlock()

	p.logger.Info("Policy loaded",
		zap.Int("files", len(files)),
		zap.Int("rules", len(rules)),
	)
	return nil
}

func loadPolicyFile(path string) ([]compiledRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy %s: %w", path, err)
	}

	var file PolicyFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &file)
	case ".toml":
		err = toml.Unmarshal(data, &file)
	default:
		return nil, fmt.Errorf("policy %s: unsupported format", path)
	}
	if err != nil {
		return nil, fmt.Errorf("parse policy %s: %w", path, err)
	}

	rules := make([]compiledRule, 0, len(file.Rules))
	for i, r := range file.Rules {
		if r.Package == "" || !doublestar.ValidatePattern(r.Package) {
			return nil, fmt.Errorf("policy %s rule %d: invalid package pattern %q", path, i, r.Package)
		}
		level, err := types.ParseRestrictionLevel(r.Level)
		if err != nil {
			return nil, fmt.Errorf("policy %s rule %d: %w", path, i, err)
		}
		rules = append(rules, compiledRule{Rule: r, level: level, source: path})
	}
	return rules, nil
}

// Rules returns the rules in force, in evaluation order
func (p *PolicyTracker) Rules() []Rule {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Rule, len(p.rules))
	for i, r := range p.rules {
		out[i] = r.Rule
	}
	return out
}

// Files returns the files the current rules came from
func (p *PolicyTracker) Files() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.files...)
}

// ProposedLevel returns the level of the last matching rule
func (p *PolicyTracker) ProposedLevel(uid int, pkg string) types.RestrictionLevel {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for i := len(p.rules) - 1; i >= 0; i-- {
		if p.rules[i].matches(uid, pkg) {
			return p.rules[i].level
		}
	}
	return types.LevelUnknown
}

// OnSystemReady loads the policy for the first time
func (p *PolicyTracker) OnSystemReady() {
	if err := p.Load(); err != nil {
		p.logger.Error("Failed to load policy", zap.Error(err))
		return
	}
	p.notifyReload()
}

// OnPropertiesChanged reloads the policy when PolicyProperty changes
func (p *PolicyTracker) OnPropertiesChanged(key string) {
	if key != PolicyProperty {
		return
	}
	if err := p.Load(); err != nil {
		p.logger.Error("Failed to reload policy, keeping previous rules", zap.Error(err))
		return
	}
	p.notifyReload()
}

func (p *PolicyTracker) notifyReload() {
	p.mu.RLock()
	fn := p.onReload
	p.mu.RUnlock()
	if fn != nil {
		fn()
	}
}
