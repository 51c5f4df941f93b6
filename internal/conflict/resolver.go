package conflict

import (
	"os"
	"os/exec"

	"github.com/pkg/errors"

	"github.com/tra-project/tra/internal/fsutil"
	"github.com/tra-project/tra/internal/watch"
	"github.com/tra-project/tra/pkg/logging"
)

// defaultEditor is used when TRA_EDITOR is unset, matching spec.md §4.7.
const defaultEditor = "vim"

// Resolver writes conflict-marked files and hands them to an external
// editor, following the teacher's convention of shelling out via os/exec
// for user-facing external tools (pkg/agent's transport invocations use the
// same exec.Command pattern for a subprocess whose output isn't
// programmatically consumed).
type Resolver struct {
	Registry *watch.Registry
	Logger   *logging.Logger
}

// editorCommand resolves the configured merge editor.
func editorCommand() string {
	if e := os.Getenv("TRA_EDITOR"); e != "" {
		return e
	}
	return defaultEditor
}

// Resolve writes the conflict-marked merge of local and remote under path
// (freezing watchHandle for the write), then runs the external editor on
// it. If the editor exits non-zero, the original local bytes are restored
// (again under freeze) and an error is returned; a zero exit leaves the
// edited file in place for the event pipeline to pick up normally.
func (r *Resolver) Resolve(path string, watchHandle watch.Handle, local, remote []byte) error {
	marked := Mark(local, remote)

	if err := r.Registry.WithFreeze(watchHandle, func() error {
		return fsutil.WriteFileAtomic(path, marked, 0o644)
	}); err != nil {
		return errors.Wrap(err, "unable to write conflict-marked file")
	}

	cmd := exec.Command(editorCommand(), path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if runErr := cmd.Run(); runErr != nil {
		r.Logger.Warn(errors.Wrap(runErr, "conflict editor exited with an error, restoring original content"))
		if restoreErr := r.Registry.WithFreeze(watchHandle, func() error {
			return fsutil.WriteFileAtomic(path, local, 0o644)
		}); restoreErr != nil {
			return errors.Wrap(restoreErr, "unable to restore original content after failed conflict resolution")
		}
		return errors.Wrap(runErr, "conflict resolution aborted")
	}

	return nil
}
