package builder

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/pypeclub/tmplbuild/internal/config"
	"github.com/pypeclub/tmplbuild/internal/host"
)

var (
	ErrTemplateLoadingFailed   = errors.New("template loading failed")
	ErrTemplateProfileNotFound = errors.New("no template profile matches")
	ErrTemplatePathMissing     = errors.New("template profile has no path")
)

// TemplateError describes a template that could not be resolved or imported
// for a task.
type TemplateError struct {
	Task     string
	TaskType string
	Host     string
	Path     string
	Err      error
}

func (e *TemplateError) Error() string {
	msg := fmt.Sprintf("template for task %q (type %q) on host %q", e.Task, e.TaskType, e.Host)
	if e.Path != "" {
		msg += fmt.Sprintf(" at %s", e.Path)
	}
	return msg + ": " + e.Err.Error()
}

func (e *TemplateError) Unwrap() error { return e.Err }

// SelectProfile picks the profile matching ctx. A profile matches when each
// of its non-empty filters contains the context value (case-insensitive).
// The profile with the most non-empty filters wins; earlier profiles win
// ties.
func SelectProfile(profiles []config.Profile, ctx config.Context) (config.Profile, bool) {
	best, bestScore := -1, -1
	for i, p := range profiles {
		score := 0
		ok := true
		for _, f := range []struct {
			values []string
			want   string
		}{
			{p.TaskTypes, ctx.TaskType},
			{p.Tasks, ctx.Task},
		} {
			if len(f.values) == 0 {
				continue
			}
			if !slices.ContainsFunc(f.values, func(v string) bool { return strings.EqualFold(v, f.want) }) {
				ok = false
				break
			}
			score++
		}
		if ok && score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return config.Profile{}, false
	}
	return profiles[best], true
}

// TemplatePath resolves the template file for ctx from profiles.
func TemplatePath(profiles []config.Profile, ctx config.Context) (string, error) {
	p, ok := SelectProfile(profiles, ctx)
	if !ok {
		return "", templateError(ctx, "", ErrTemplateProfileNotFound)
	}
	if strings.TrimSpace(p.Path) == "" {
		return "", templateError(ctx, "", ErrTemplatePathMissing)
	}
	return strings.NewReplacer(
		"{project}", ctx.Project,
		"{asset}", ctx.Asset,
		"{task}", ctx.Task,
		"{task_type}", ctx.TaskType,
		"{host}", ctx.Host,
	).Replace(p.Path), nil
}

// BuildTemplate imports the template selected for the run context and
// populates it. A scene that already holds the template fails with
// host.ErrTemplateAlreadyImported.
func (b *Builder) BuildTemplate(profiles []config.Profile) error {
	path, err := TemplatePath(profiles, b.ctx)
	if err != nil {
		return err
	}
	if err := b.host.ImportTemplate(path); err != nil {
		if errors.Is(err, host.ErrTemplateAlreadyImported) {
			return err
		}
		return templateError(b.ctx, path, fmt.Errorf("%w: %w", ErrTemplateLoadingFailed, err))
	}
	b.log.WithField("template", path).Info("template imported, populating")
	return b.Populate(nil)
}

func templateError(ctx config.Context, path string, err error) *TemplateError {
	return &TemplateError{
		Task:     ctx.Task,
		TaskType: ctx.TaskType,
		Host:     ctx.Host,
		Path:     path,
		Err:      err,
	}
}
