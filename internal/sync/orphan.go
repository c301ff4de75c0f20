package sync

import (
	"fmt"
	"strings"

	appLog "icsnotes/internal/log"
	"icsnotes/internal/note"
)

// QuarantineFolder is the reserved subfolder orphaned notes are moved
// into. It is excluded from orphan scanning and only ever used as a
// destination.
const QuarantineFolder = ".quarantine"

// DetectOrphans finds managed notes in folder whose source event vanished
// from the feed and relocates them into the quarantine subfolder. Notes
// are never deleted: user annotations on a synced note survive even after
// the upstream event is gone.
//
// currentUIDs is the set of UIDs present in the latest fetch. Notes
// without a source UID are user content and are left alone. A failure to
// move one note leaves it in place and detection continues.
func DetectOrphans(store note.Store, folder string, currentUIDs map[string]struct{}) (int, []string) {
	paths, err := store.List(folder)
	if err != nil {
		msg := fmt.Sprintf("list %q: %v", folder, err)
		appLog.Error("orphan scan failed", err, "folder", folder)
		return 0, []string{msg}
	}

	moved := 0
	var errs []string

	for _, p := range paths {
		doc, err := store.Read(p)
		if err != nil {
			errs = append(errs, fmt.Sprintf("read %q: %v", p, err))
			continue
		}
		if !doc.Meta.Managed() {
			continue
		}
		if _, live := currentUIDs[doc.Meta.SourceUID]; live {
			continue
		}

		dest, err := quarantineDest(store, folder, baseName(p))
		if err != nil {
			errs = append(errs, fmt.Sprintf("quarantine %q: %v", p, err))
			appLog.Error("orphan quarantine failed", err, "path", p)
			continue
		}
		if err := store.Rename(p, dest); err != nil {
			errs = append(errs, fmt.Sprintf("move %q: %v", p, err))
			appLog.Error("orphan move failed", err, "path", p, "dest", dest)
			continue
		}
		moved++
		appLog.Info("orphaned note quarantined", "path", p, "dest", dest, "uid", doc.Meta.SourceUID)
	}

	return moved, errs
}

// quarantineDest picks a free destination path inside the quarantine
// subfolder, creating it on demand. On a name collision (e.g. re-running
// after a partial prior migration) a numeric suffix is appended before the
// extension until a free name is found.
func quarantineDest(store note.Store, folder, name string) (string, error) {
	qFolder := note.JoinPath(folder, QuarantineFolder)
	if err := store.EnsureFolder(qFolder); err != nil {
		return "", err
	}

	stem, ext := splitExt(name)
	candidate := note.JoinPath(qFolder, name)
	for n := 1; ; n++ {
		taken, err := store.Exists(candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = note.JoinPath(qFolder, fmt.Sprintf("%s_%d%s", stem, n, ext))
	}
}

func baseName(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}

func splitExt(name string) (stem, ext string) {
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		return name[:i], name[i:]
	}
	return name, ""
}
