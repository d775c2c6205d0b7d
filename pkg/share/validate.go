package share

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dcwire/aircore/pkg/hooks"
)

// SkipMode selects how SkipList.Patterns are interpreted.
type SkipMode int

const (
	SkipModeWildcard SkipMode = iota
	SkipModeRegex
)

// SkipList rejects filesystem entries by name, either via shell-style
// wildcards (filepath.Match semantics) or compiled regular expressions.
type SkipList struct {
	mode     SkipMode
	patterns []string
	regexes  []*regexp.Regexp
}

// NewSkipList compiles patterns under the given mode. Invalid regexes are
// dropped rather than failing the whole list, since a single bad user
// pattern should not disable skiplisting entirely.
func NewSkipList(mode SkipMode, patterns []string) *SkipList {
	sl := &SkipList{mode: mode, patterns: patterns}
	if mode == SkipModeRegex {
		for _, p := range patterns {
			if re, err := regexp.Compile(p); err == nil {
				sl.regexes = append(sl.regexes, re)
			}
		}
	}
	return sl
}

// Matches reports whether name (not a full path) matches any pattern.
func (sl *SkipList) Matches(name string) bool {
	if sl == nil {
		return false
	}
	switch sl.mode {
	case SkipModeRegex:
		for _, re := range sl.regexes {
			if re.MatchString(name) {
				return true
			}
		}
	default:
		for _, pat := range sl.patterns {
			if ok, _ := filepath.Match(pat, name); ok {
				return true
			}
		}
	}
	return false
}

// ValidationHookInput is the candidate file or directory path a validation
// hook vets before it is added to a refreshed subtree. A non-nil Rejection drops the entry and
// is aggregated into the refresh's ValidationError summary.
type ValidationHookInput struct {
	Path  string
	IsDir bool
	Size  int64
}

// UnfinishedBundleChecker reports whether path is the temp target of a
// not-yet-completed queue item, so refresh can skip it without treating
// an in-progress download as a stray file.
type UnfinishedBundleChecker func(path string) bool

// Validator applies the skiplist, forbidden-extension, excluded-path and
// pluggable hook checks used while walking a share root during refresh.
type Validator struct {
	cfg           Config
	skipList      *SkipList
	hasUnfinished UnfinishedBundleChecker
	hooks         *hooks.Chain[ValidationHookInput]
	excludedPaths map[string]struct{}
}

// NewValidator returns a Validator for cfg. hasUnfinished may be nil if
// the queue engine isn't wired in yet (refresh then never excludes
// in-progress downloads).
func NewValidator(cfg Config, skipList *SkipList, hasUnfinished UnfinishedBundleChecker) *Validator {
	excluded := make(map[string]struct{}, len(cfg.ExcludedPaths))
	for _, p := range cfg.ExcludedPaths {
		excluded[filepath.Clean(p)] = struct{}{}
	}
	return &Validator{
		cfg:           cfg,
		skipList:      skipList,
		hasUnfinished: hasUnfinished,
		hooks:         hooks.NewChain[ValidationHookInput](2 * time.Second),
		excludedPaths: excluded,
	}
}

// RegisterHook adds a pluggable validation hook, run after the built-in
// checks pass.
func (v *Validator) RegisterHook(id string, fn hooks.Func[ValidationHookInput]) {
	v.hooks.Register(id, fn)
}

// ValidateDir reports whether a directory entry at path may be added to
// the refreshed tree.
func (v *Validator) ValidateDir(path string, name string) (string, bool) {
	if v.skipList.Matches(name) {
		return "skiplist-match", false
	}
	if isWindowsDirectory(path) {
		return "windows-directory", false
	}
	if _, excluded := v.excludedPaths[filepath.Clean(path)]; excluded {
		return "path-excluded", false
	}
	if _, rej := v.hooks.Run(context.Background(), ValidationHookInput{Path: path, IsDir: true}); rej != nil {
		return rej.Error(), false
	}
	return "", true
}

// ValidateFile reports whether a file entry may be added to the refreshed
// tree, given its stat info.
func (v *Validator) ValidateFile(path string, info os.FileInfo) (string, bool) {
	name := info.Name()
	if v.skipList.Matches(name) {
		return "skiplist-match", false
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, forbidden := range v.cfg.ForbiddenExtensions {
		if ext == forbidden {
			return "forbidden-extension", false
		}
	}
	if v.cfg.RejectZeroByte && info.Size() == 0 {
		return "zero-byte", false
	}
	if v.cfg.MaxFileSize > 0 && info.Size() > v.cfg.MaxFileSize {
		return "file-too-large", false
	}
	if _, excluded := v.excludedPaths[filepath.Clean(path)]; excluded {
		return "path-excluded", false
	}
	if v.hasUnfinished != nil && v.hasUnfinished(path) {
		return "unfinished-bundle", false
	}
	if _, rej := v.hooks.Run(context.Background(), ValidationHookInput{Path: path, IsDir: false, Size: info.Size()}); rej != nil {
		return rej.Error(), false
	}
	return "", true
}

// isWindowsDirectory rejects the handful of Windows system directory
// names that should never be accepted as a share root, mirroring the
// original client's defensive root check even though this core mostly
// runs on POSIX hosts.
func isWindowsDirectory(path string) bool {
	base := strings.ToLower(filepath.Base(filepath.Clean(path)))
	switch base {
	case "windows", "system32", "program files", "program files (x86)":
		return true
	default:
		return false
	}
}

// errorSummary collapses a list of ValidationErrors so more than
// MaxErrorsPerKind occurrences of the same Reason are reported as a count
// instead of individually, per the refresh-validation contract.
func errorSummary(errs []ValidationError, maxPerKind int) []ValidationError {
	if maxPerKind <= 0 {
		return errs
	}
	counts := make(map[string]int)
	var out []ValidationError
	for _, e := range errs {
		counts[e.Reason]++
		if counts[e.Reason] <= maxPerKind {
			out = append(out, e)
		}
	}
	for reason, n := range counts {
		if n > maxPerKind {
			out = append(out, ValidationError{Path: "", Reason: reason + " (+" + strconv.Itoa(n-maxPerKind) + " more)"})
		}
	}
	return out
}
