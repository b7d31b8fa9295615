package filterobj

import "path/filepath"

// globSharedObjects lists the ".so" files directly inside dir, in
// lexicographic order, matching the insertion-ordered, absolute-path search
// described in spec.md §4.3.
func globSharedObjects(dir string) (paths []string, err error) {
	return filepath.Glob(filepath.Join(dir, "*.so"))
}
